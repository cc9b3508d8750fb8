package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mindflow-hq/mindflow/internal/actions"
	"github.com/mindflow-hq/mindflow/internal/assist"
	"github.com/mindflow-hq/mindflow/internal/core"
	"github.com/mindflow-hq/mindflow/internal/events"
	"github.com/mindflow-hq/mindflow/internal/ideas"
	"github.com/mindflow-hq/mindflow/internal/reminders"
	"github.com/mindflow-hq/mindflow/internal/store"
	"github.com/mindflow-hq/mindflow/internal/tasks"
)

// testServer wires a full server over an in-memory database. The HTTP
// listener is never started; requests go straight to the router.
func testServer(t *testing.T) *Server {
	t.Helper()

	db, err := store.Open(store.Config{InMemory: true})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	kv := store.NewKV(db)
	assistClient := assist.NewClient(assist.Config{})
	rem := reminders.NewService()
	t.Cleanup(rem.Stop)

	eventService := events.NewService(kv, assistClient, rem)
	handler := actions.NewHandler(eventService, rem)
	handler.Register()
	t.Cleanup(handler.Close)

	return New(Config{
		Port:      0,
		KV:        kv,
		Tasks:     tasks.NewService(kv, assistClient),
		Events:    eventService,
		Ideas:     ideas.NewService(kv, assistClient),
		Assist:    assistClient,
		Reminders: rem,
	})
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

// --- Tab ---

func TestTab_DefaultAndRoundTrip(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, "GET", "/api/v1/tab", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /tab = %d", w.Code)
	}
	got := decodeBody[map[string]core.Tab](t, w)
	if got["tab"] != core.TabTodo {
		t.Errorf("default tab = %q, want %q", got["tab"], core.TabTodo)
	}

	w = doJSON(t, s, "PUT", "/api/v1/tab", map[string]string{"tab": "CALENDAR"})
	if w.Code != http.StatusOK {
		t.Fatalf("PUT /tab = %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, "GET", "/api/v1/tab", nil)
	got = decodeBody[map[string]core.Tab](t, w)
	if got["tab"] != core.TabCalendar {
		t.Errorf("tab after PUT = %q, want CALENDAR", got["tab"])
	}
}

func TestTab_InvalidRejected(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, "PUT", "/api/v1/tab", map[string]string{"tab": "settings"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("PUT /tab with unknown tab = %d, want 400", w.Code)
	}
}

// --- Tasks ---

func TestTasks_CreateAndList(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, "POST", "/api/v1/tasks", map[string]any{"text": "write tests"})
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /tasks = %d: %s", w.Code, w.Body.String())
	}
	created := decodeBody[[]core.Task](t, w)
	if len(created) != 1 || created[0].Text != "write tests" {
		t.Errorf("created = %v", created)
	}

	w = doJSON(t, s, "GET", "/api/v1/tasks", nil)
	list := decodeBody[[]core.Task](t, w)
	if len(list) != 1 {
		t.Errorf("GET /tasks = %d tasks, want 1", len(list))
	}
}

func TestTasks_CreateWithBreakdownFallsBack(t *testing.T) {
	s := testServer(t)

	// Assist is unconfigured, so breakdown degrades to one task.
	w := doJSON(t, s, "POST", "/api/v1/tasks", map[string]any{"text": "plan trip", "breakdown": true})
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /tasks = %d: %s", w.Code, w.Body.String())
	}
	created := decodeBody[[]core.Task](t, w)
	if len(created) != 1 || created[0].Text != "plan trip" {
		t.Errorf("created = %v, want single fallback task", created)
	}
}

func TestTasks_CreateBlankRejected(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, "POST", "/api/v1/tasks", map[string]any{"text": "  "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("POST /tasks blank = %d, want 400", w.Code)
	}
}

func TestTasks_InvalidJSON(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest("POST", "/api/v1/tasks", bytes.NewBufferString("{nope"))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("POST /tasks bad json = %d, want 400", w.Code)
	}
}

func TestTasks_ToggleAndArchive(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, "POST", "/api/v1/tasks", map[string]any{"text": "done soon"})
	created := decodeBody[[]core.Task](t, w)
	id := created[0].ID

	w = doJSON(t, s, "POST", "/api/v1/tasks/"+id+"/toggle", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("toggle = %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, "POST", "/api/v1/tasks/archive", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("archive = %d: %s", w.Code, w.Body.String())
	}
	res := decodeBody[map[string]int](t, w)
	if res["archived"] != 1 {
		t.Errorf("archived = %d, want 1", res["archived"])
	}

	w = doJSON(t, s, "GET", "/api/v1/tasks?view=history", nil)
	history := decodeBody[map[string][]core.Task](t, w)
	if len(history) != 1 {
		t.Errorf("history groups = %d, want 1", len(history))
	}
}

func TestTasks_ToggleUnknown(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, "POST", "/api/v1/tasks/ghost/toggle", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("toggle unknown = %d, want 404", w.Code)
	}
}

func TestTasks_Delete(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, "POST", "/api/v1/tasks", map[string]any{"text": "temp"})
	created := decodeBody[[]core.Task](t, w)

	w = doJSON(t, s, "DELETE", "/api/v1/tasks/"+created[0].ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete = %d", w.Code)
	}

	w = doJSON(t, s, "DELETE", "/api/v1/tasks/"+created[0].ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestTasks_UnknownView(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, "GET", "/api/v1/tasks?view=bogus", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown view = %d, want 400", w.Code)
	}
}

// --- Events ---

func TestEvents_CreateAndListByDate(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, "POST", "/api/v1/events", map[string]any{
		"title": "Standup",
		"date":  "2026-09-01",
		"time":  "09:00",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /events = %d: %s", w.Code, w.Body.String())
	}
	evt := decodeBody[core.Event](t, w)
	if evt.ID == "" || evt.Title != "Standup" {
		t.Errorf("created event = %+v", evt)
	}

	w = doJSON(t, s, "GET", "/api/v1/events?date=2026-09-01", nil)
	day := decodeBody[[]core.Event](t, w)
	if len(day) != 1 {
		t.Errorf("GET /events?date = %d events, want 1", len(day))
	}

	w = doJSON(t, s, "GET", "/api/v1/events?date=2026-09-02", nil)
	day = decodeBody[[]core.Event](t, w)
	if len(day) != 0 {
		t.Errorf("other date = %d events, want 0", len(day))
	}
}

func TestEvents_SmartFallsBackToDate(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, "POST", "/api/v1/events", map[string]any{
		"title": "lunch with Sam",
		"date":  "2026-09-05",
		"smart": true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /events smart = %d: %s", w.Code, w.Body.String())
	}
	evt := decodeBody[core.Event](t, w)
	if evt.DateStr != "2026-09-05" {
		t.Errorf("DateStr = %q, want the fallback date", evt.DateStr)
	}
}

func TestEvents_CompleteAndDelete(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, "POST", "/api/v1/events", map[string]any{"title": "X", "date": "2026-09-01"})
	evt := decodeBody[core.Event](t, w)

	w = doJSON(t, s, "POST", "/api/v1/events/2026-09-01/"+evt.ID+"/complete", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("complete = %d", w.Code)
	}

	// Completing an unknown target is deliberately a 200 no-op.
	w = doJSON(t, s, "POST", "/api/v1/events/2026-09-01/ghost/complete", nil)
	if w.Code != http.StatusOK {
		t.Errorf("complete unknown = %d, want 200 no-op", w.Code)
	}

	w = doJSON(t, s, "DELETE", "/api/v1/events/2026-09-01/"+evt.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete = %d", w.Code)
	}

	w = doJSON(t, s, "DELETE", "/api/v1/events/2026-09-01/"+evt.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("delete gone event = %d, want 404", w.Code)
	}
}

func TestEvents_MissingTitleRejected(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, "POST", "/api/v1/events", map[string]any{"date": "2026-09-01"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("POST /events without title = %d, want 400", w.Code)
	}
}

// --- Ideas ---

func TestIdeas_Flow(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, "POST", "/api/v1/ideas", map[string]any{"content": "solar kettle"})
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /ideas = %d: %s", w.Code, w.Body.String())
	}
	idea := decodeBody[core.Idea](t, w)
	if idea.Color == "" {
		t.Error("idea should carry a color")
	}

	// Expand with an unconfigured client returns the idea unchanged.
	w = doJSON(t, s, "POST", "/api/v1/ideas/"+idea.ID+"/expand", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expand = %d", w.Code)
	}
	got := decodeBody[core.Idea](t, w)
	if got.Content != "solar kettle" {
		t.Errorf("Content = %q, want unchanged", got.Content)
	}

	w = doJSON(t, s, "DELETE", "/api/v1/ideas/"+idea.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete = %d", w.Code)
	}

	w = doJSON(t, s, "GET", "/api/v1/ideas", nil)
	list := decodeBody[[]core.Idea](t, w)
	if len(list) != 0 {
		t.Errorf("GET /ideas = %d, want 0", len(list))
	}
}

// --- Assist / reminders ---

func TestAssistStatus(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, "GET", "/api/v1/assist/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /assist/status = %d", w.Code)
	}
	status := decodeBody[assist.Status](t, w)
	if status.OK {
		t.Error("unconfigured assist should report not OK")
	}
}

func TestReminders_ListEmpty(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, "GET", "/api/v1/reminders", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /reminders = %d", w.Code)
	}
	pending := decodeBody[[]reminders.Notification](t, w)
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
}

func TestNotificationAction_CompletesEvent(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, "POST", "/api/v1/events", map[string]any{"title": "Dentist", "date": "2026-09-01"})
	evt := decodeBody[core.Event](t, w)

	action := reminders.Action{
		ActionID: reminders.ActionComplete,
		Notification: reminders.Notification{
			ID:    reminders.HashID(evt.ID),
			Extra: reminders.Extra{EventID: evt.ID, DateStr: "2026-09-01"},
		},
	}
	w = doJSON(t, s, "POST", "/api/v1/notifications/action", action)
	if w.Code != http.StatusAccepted {
		t.Fatalf("POST /notifications/action = %d: %s", w.Code, w.Body.String())
	}

	// Dispatch is synchronous, so the mutation already landed.
	day, err := s.events.ForDate(context.Background(), "2026-09-01")
	if err != nil {
		t.Fatalf("ForDate() error = %v", err)
	}
	if !day[0].Completed {
		t.Error("event should be completed via the notification action")
	}
}
