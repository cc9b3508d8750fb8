package reminders

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mindflow-hq/mindflow/internal/core"
	"github.com/mindflow-hq/mindflow/internal/logging"
)

// snoozeDelay is how far out a snoozed reminder is redelivered.
const snoozeDelay = 10 * time.Minute

// Service schedules future reminders and fans user actions out to
// registered listeners. Firing is best-effort: the host may delay a
// reminder arbitrarily, so nothing downstream may assume a fired
// reminder corresponds to "now".
type Service struct {
	mu        sync.RWMutex
	pending   map[int]*pendingReminder
	listeners map[string]Listener
	presenter func(Notification)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type pendingReminder struct {
	notification Notification
	at           time.Time
	cancel       context.CancelFunc
}

// NewService creates a reminder service.
func NewService() *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		pending:   make(map[int]*pendingReminder),
		listeners: make(map[string]Listener),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// OnFire sets the presenter invoked when a reminder comes due.
func (s *Service) OnFire(fn func(Notification)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presenter = fn
}

// Schedule registers a reminder for an absolute local date+time. A
// fire time in the past is a silent no-op. Scheduling again under the
// same id replaces the pending reminder, keeping at most one per id.
func (s *Service) Schedule(id, title, body, dateStr, timeStr string) error {
	at, err := time.ParseInLocation(core.DateLayout+" "+core.TimeLayout, dateStr+" "+timeStr, time.Local)
	if err != nil {
		return fmt.Errorf("%w: bad reminder time %q %q", core.ErrInvalidInput, dateStr, timeStr)
	}

	if !at.After(time.Now()) {
		logging.Debug("reminders: %q is already past, not scheduling", id)
		return nil
	}

	if body == "" {
		body = "Reminder for " + timeStr
	}

	n := Notification{
		ID:    HashID(id),
		Title: title,
		Body:  body,
		Extra: Extra{
			EventID:       id,
			DateStr:       dateStr,
			OriginalTitle: title,
			OriginalBody:  body,
		},
	}

	s.scheduleAt(n, at)
	logging.Debug("reminders: scheduled %q for %s", id, at.Format(time.RFC3339))
	return nil
}

// scheduleAt arms one reminder, replacing any pending reminder with
// the same numeric id.
func (s *Service) scheduleAt(n Notification, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.pending[n.ID]; ok {
		old.cancel()
	}

	ctx, cancel := context.WithCancel(s.ctx)
	p := &pendingReminder{notification: n, at: at, cancel: cancel}
	s.pending[n.ID] = p

	s.wg.Add(1)
	go s.waitAndFire(ctx, p)
}

// waitAndFire is the per-reminder loop: sleep until due, then present.
func (s *Service) waitAndFire(ctx context.Context, p *pendingReminder) {
	defer s.wg.Done()

	select {
	case <-ctx.Done():
		return
	case <-time.After(time.Until(p.at)):
	}

	s.mu.Lock()
	if s.pending[p.notification.ID] == p {
		delete(s.pending, p.notification.ID)
	}
	fn := s.presenter
	s.mu.Unlock()

	if fn != nil {
		fn(p.notification)
	}
}

// Cancel removes the pending reminder for id if one exists. Cancelling
// an unknown, already-fired, or already-cancelled id is a no-op.
func (s *Service) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	numID := HashID(id)
	if p, ok := s.pending[numID]; ok {
		p.cancel()
		delete(s.pending, numID)
		logging.Debug("reminders: cancelled %q", id)
	}
}

// Snooze re-delivers a fired reminder ten minutes out, preserving the
// original extra payload so a later action still targets the right
// event.
func (s *Service) Snooze(n Notification) {
	title := n.Extra.OriginalTitle
	if title == "" {
		title = n.Title
	}
	body := n.Extra.OriginalBody
	if body == "" {
		body = n.Body
	}

	s.scheduleAt(Notification{
		ID:    n.ID + 1,
		Title: title,
		Body:  "💤 Snoozed: " + body,
		Extra: n.Extra,
	}, time.Now().Add(snoozeDelay))
}

// Subscribe registers a listener for dispatched actions. A listener
// re-registering under the same ID replaces itself rather than
// doubling delivery.
func (s *Service) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[l.ID()] = l
}

// Unsubscribe removes a listener registration.
func (s *Service) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, id)
}

// Dispatch delivers one performed action to every registered listener.
// Delivery is synchronous: when Dispatch returns, any store mutation a
// listener makes has completed.
func (s *Service) Dispatch(ctx context.Context, action Action) {
	s.mu.RLock()
	snapshot := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		snapshot = append(snapshot, l)
	}
	s.mu.RUnlock()

	for _, l := range snapshot {
		l.HandleAction(ctx, action)
	}
}

// Pending returns a snapshot of not-yet-fired reminders, soonest first.
func (s *Service) Pending() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type entry struct {
		n  Notification
		at time.Time
	}
	entries := make([]entry, 0, len(s.pending))
	for _, p := range s.pending {
		entries = append(entries, entry{p.notification, p.at})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].at.Before(entries[j].at) })

	out := make([]Notification, len(entries))
	for i, e := range entries {
		out[i] = e.n
	}
	return out
}

// Stop cancels every pending reminder and waits for their loops to
// exit. The service cannot be restarted.
func (s *Service) Stop() {
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.pending = make(map[int]*pendingReminder)
	s.mu.Unlock()
}
