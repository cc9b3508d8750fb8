package reminders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mindflow-hq/mindflow/internal/core"
)

func testService(t *testing.T) *Service {
	t.Helper()
	s := NewService()
	t.Cleanup(s.Stop)
	return s
}

func TestHashID(t *testing.T) {
	a := HashID("event-1")
	b := HashID("event-1")
	if a != b {
		t.Error("HashID should be deterministic")
	}
	if a < 0 {
		t.Errorf("HashID = %d, want non-negative", a)
	}
	if HashID("event-1") == HashID("event-2") {
		t.Error("distinct ids should hash apart")
	}
}

func TestSchedule_FutureReminderPending(t *testing.T) {
	s := testService(t)

	tomorrow := core.LocalDate(time.Now().Add(24 * time.Hour))
	if err := s.Schedule("evt-1", "Reminder", "Dentist", tomorrow, "09:00"); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	pending := s.Pending()
	if len(pending) != 1 {
		t.Fatalf("Pending() = %d reminders, want 1", len(pending))
	}
	if pending[0].ID != HashID("evt-1") {
		t.Errorf("pending ID = %d, want HashID(evt-1)", pending[0].ID)
	}
	if pending[0].Extra.EventID != "evt-1" {
		t.Errorf("Extra.EventID = %q, want evt-1", pending[0].Extra.EventID)
	}
}

func TestSchedule_PastTimeIsNoOp(t *testing.T) {
	s := testService(t)

	yesterday := core.LocalDate(time.Now().Add(-24 * time.Hour))
	if err := s.Schedule("evt-past", "Reminder", "Missed", yesterday, "09:00"); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if got := len(s.Pending()); got != 0 {
		t.Errorf("Pending() = %d, want 0 for a past time", got)
	}
}

func TestSchedule_BadTimeRejected(t *testing.T) {
	s := testService(t)

	err := s.Schedule("evt-bad", "Reminder", "", "not-a-date", "99:99")
	if !errors.Is(err, core.ErrInvalidInput) {
		t.Errorf("Schedule() error = %v, want ErrInvalidInput", err)
	}
}

func TestSchedule_ReplaceSameID(t *testing.T) {
	s := testService(t)

	tomorrow := core.LocalDate(time.Now().Add(24 * time.Hour))
	s.Schedule("evt-dup", "Reminder", "first", tomorrow, "09:00")
	s.Schedule("evt-dup", "Reminder", "second", tomorrow, "10:00")

	pending := s.Pending()
	if len(pending) != 1 {
		t.Fatalf("Pending() = %d reminders, want 1 after rescheduling", len(pending))
	}
	if pending[0].Body != "second" {
		t.Errorf("pending body = %q, want the replacement", pending[0].Body)
	}
}

func TestSchedule_DefaultBody(t *testing.T) {
	s := testService(t)

	tomorrow := core.LocalDate(time.Now().Add(24 * time.Hour))
	s.Schedule("evt-nobody", "Reminder", "", tomorrow, "09:00")

	pending := s.Pending()
	if len(pending) != 1 {
		t.Fatalf("Pending() = %d, want 1", len(pending))
	}
	if pending[0].Body != "Reminder for 09:00" {
		t.Errorf("body = %q, want default body", pending[0].Body)
	}
}

func TestCancel_RemovesPending(t *testing.T) {
	s := testService(t)

	tomorrow := core.LocalDate(time.Now().Add(24 * time.Hour))
	s.Schedule("evt-cancel", "Reminder", "x", tomorrow, "09:00")

	s.Cancel("evt-cancel")
	if got := len(s.Pending()); got != 0 {
		t.Errorf("Pending() = %d after Cancel, want 0", got)
	}
}

func TestCancel_UnknownIsNoOp(t *testing.T) {
	s := testService(t)
	s.Cancel("never-scheduled")
	s.Cancel("never-scheduled") // repeated cancels stay silent
}

func TestFire_DeliversToPresenter(t *testing.T) {
	s := testService(t)

	fired := make(chan Notification, 1)
	s.OnFire(func(n Notification) {
		fired <- n
	})

	s.scheduleAt(Notification{
		ID:    7,
		Title: "Soon",
		Body:  "now-ish",
	}, time.Now().Add(20*time.Millisecond))

	select {
	case n := <-fired:
		if n.ID != 7 {
			t.Errorf("fired ID = %d, want 7", n.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reminder never fired")
	}

	if got := len(s.Pending()); got != 0 {
		t.Errorf("Pending() = %d after firing, want 0", got)
	}
}

func TestSnooze_RedeliversWithMarker(t *testing.T) {
	s := testService(t)

	original := Notification{
		ID:    HashID("evt-s"),
		Title: "MindFlow Reminder",
		Body:  "Standup",
		Extra: Extra{
			EventID:       "evt-s",
			DateStr:       "2026-08-31",
			OriginalTitle: "MindFlow Reminder",
			OriginalBody:  "Standup",
		},
	}

	s.Snooze(original)

	pending := s.Pending()
	if len(pending) != 1 {
		t.Fatalf("Pending() = %d after Snooze, want 1", len(pending))
	}

	got := pending[0]
	if got.ID != original.ID+1 {
		t.Errorf("snoozed ID = %d, want %d", got.ID, original.ID+1)
	}
	if got.Body != "💤 Snoozed: Standup" {
		t.Errorf("snoozed body = %q", got.Body)
	}
	if got.Extra.EventID != "evt-s" {
		t.Error("snooze must preserve the original extra payload")
	}
}

func TestSnooze_AlreadySnoozedBodyNotDoubled(t *testing.T) {
	s := testService(t)

	// A snoozed reminder fires and is snoozed again; the marker is
	// applied to the original body, not stacked.
	n := Notification{
		ID:    100,
		Title: "MindFlow Reminder",
		Body:  "💤 Snoozed: Standup",
		Extra: Extra{EventID: "evt-s", OriginalBody: "Standup"},
	}
	s.Snooze(n)

	pending := s.Pending()
	if len(pending) != 1 {
		t.Fatalf("Pending() = %d, want 1", len(pending))
	}
	if pending[0].Body != "💤 Snoozed: Standup" {
		t.Errorf("body = %q, want a single marker", pending[0].Body)
	}
}

// recordingListener collects dispatched actions.
type recordingListener struct {
	id string

	mu      sync.Mutex
	actions []Action
}

func (l *recordingListener) ID() string { return l.id }

func (l *recordingListener) HandleAction(ctx context.Context, a Action) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.actions = append(l.actions, a)
}

func (l *recordingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.actions)
}

func TestDispatch_DeliversToListeners(t *testing.T) {
	s := testService(t)
	l := &recordingListener{id: "test"}
	s.Subscribe(l)

	s.Dispatch(context.Background(), Action{ActionID: ActionComplete})
	if l.count() != 1 {
		t.Errorf("listener received %d actions, want 1", l.count())
	}
}

func TestSubscribe_SameIDReplaces(t *testing.T) {
	s := testService(t)
	l := &recordingListener{id: "dup"}
	s.Subscribe(l)
	s.Subscribe(l)

	s.Dispatch(context.Background(), Action{ActionID: ActionComplete})
	if l.count() != 1 {
		t.Errorf("listener received %d actions, want 1 (no duplicate delivery)", l.count())
	}
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	s := testService(t)
	l := &recordingListener{id: "gone"}
	s.Subscribe(l)
	s.Unsubscribe("gone")

	s.Dispatch(context.Background(), Action{ActionID: ActionSnooze})
	if l.count() != 0 {
		t.Errorf("listener received %d actions after Unsubscribe, want 0", l.count())
	}
}

func TestStop_CancelsPending(t *testing.T) {
	s := NewService()

	fired := make(chan Notification, 1)
	s.OnFire(func(n Notification) { fired <- n })

	tomorrow := core.LocalDate(time.Now().Add(24 * time.Hour))
	s.Schedule("evt-stop", "Reminder", "x", tomorrow, "09:00")

	s.Stop()
	if got := len(s.Pending()); got != 0 {
		t.Errorf("Pending() = %d after Stop, want 0", got)
	}

	select {
	case <-fired:
		t.Error("no reminder should fire after Stop")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPending_SoonestFirst(t *testing.T) {
	s := testService(t)

	s.scheduleAt(Notification{ID: 1, Title: "later"}, time.Now().Add(2*time.Hour))
	s.scheduleAt(Notification{ID: 2, Title: "sooner"}, time.Now().Add(time.Hour))

	pending := s.Pending()
	if len(pending) != 2 {
		t.Fatalf("Pending() = %d, want 2", len(pending))
	}
	if pending[0].Title != "sooner" {
		t.Errorf("Pending()[0] = %q, want sooner", pending[0].Title)
	}
}
