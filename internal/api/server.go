// Package api provides the HTTP and WebSocket API server for MindFlow.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mindflow-hq/mindflow/internal/assist"
	"github.com/mindflow-hq/mindflow/internal/core"
	"github.com/mindflow-hq/mindflow/internal/events"
	"github.com/mindflow-hq/mindflow/internal/ideas"
	"github.com/mindflow-hq/mindflow/internal/logging"
	"github.com/mindflow-hq/mindflow/internal/reminders"
	"github.com/mindflow-hq/mindflow/internal/store"
	"github.com/mindflow-hq/mindflow/internal/tasks"
)

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server

	kv        *store.KV
	tasks     *tasks.Service
	events    *events.Service
	ideas     *ideas.Service
	assist    *assist.Client
	reminders *reminders.Service

	wsHub *WebSocketHub
	subs  []*store.Subscription
	done  chan struct{}
}

// Config for the server
type Config struct {
	Port      int
	KV        *store.KV
	Tasks     *tasks.Service
	Events    *events.Service
	Ideas     *ideas.Service
	Assist    *assist.Client
	Reminders *reminders.Service
}

// New creates a new API server
func New(cfg Config) *Server {
	s := &Server{
		kv:        cfg.KV,
		tasks:     cfg.Tasks,
		events:    cfg.Events,
		ideas:     cfg.Ideas,
		assist:    cfg.Assist,
		reminders: cfg.Reminders,
		wsHub:     NewWebSocketHub(),
		done:      make(chan struct{}),
	}

	s.setupRouter()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRouter configures all routes
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Active tab
		r.Get("/tab", s.handleGetTab)
		r.Put("/tab", s.handleSetTab)

		// Tasks
		r.Get("/tasks", s.handleGetTasks)
		r.Post("/tasks", s.handleCreateTask)
		r.Post("/tasks/archive", s.handleArchiveTasks)
		r.Post("/tasks/{taskID}/toggle", s.handleToggleTask)
		r.Delete("/tasks/{taskID}", s.handleDeleteTask)

		// Calendar events
		r.Get("/events", s.handleGetEvents)
		r.Post("/events", s.handleCreateEvent)
		r.Post("/events/{date}/{eventID}/complete", s.handleCompleteEvent)
		r.Delete("/events/{date}/{eventID}", s.handleDeleteEvent)

		// Ideas
		r.Get("/ideas", s.handleGetIdeas)
		r.Post("/ideas", s.handleCreateIdea)
		r.Post("/ideas/{ideaID}/expand", s.handleExpandIdea)
		r.Delete("/ideas/{ideaID}", s.handleDeleteIdea)

		// Assist diagnostics
		r.Get("/assist/status", s.handleAssistStatus)

		// Reminders
		r.Get("/reminders", s.handleGetReminders)
		r.Post("/notifications/action", s.handleNotificationAction)
	})

	// WebSocket change feed
	r.Get("/ws", s.handleWebSocket)

	s.router = r
}

// Start starts the HTTP server and the change feed.
func (s *Server) Start() error {
	go s.wsHub.Run()
	s.watchStore()

	s.reminders.OnFire(func(n reminders.Notification) {
		s.Broadcast("reminder.fired", n)
	})

	logging.Info("API server starting on http://localhost%s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// watchStore forwards every store change to connected WebSocket
// clients so each UI instance refreshes its bindings.
func (s *Server) watchStore() {
	keys := []string{core.KeyActiveTab, core.KeyTasks, core.KeyEvents, core.KeyIdeas}
	for _, key := range keys {
		sub := s.kv.Subscribe(key)
		s.subs = append(s.subs, sub)

		go func(sub *store.Subscription) {
			for {
				select {
				case <-s.done:
					return
				case change, ok := <-sub.C():
					if !ok {
						return
					}
					s.Broadcast("store.change", map[string]string{"key": change.Key})
				}
			}
		}(sub)
	}
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	close(s.done)
	for _, sub := range s.subs {
		sub.Close()
	}
	return s.httpServer.Shutdown(ctx)
}

// Broadcast sends a message to all WebSocket clients
func (s *Server) Broadcast(msgType string, data interface{}) {
	s.wsHub.Broadcast(WebSocketMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// --- Response helpers ---

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidInput), errors.Is(err, core.ErrInvalidTab):
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, core.ErrTaskNotFound),
		errors.Is(err, core.ErrEventNotFound),
		errors.Is(err, core.ErrIdeaNotFound):
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

// --- Tab handlers ---

func (s *Server) handleGetTab(w http.ResponseWriter, r *http.Request) {
	tab := core.TabTodo
	if _, err := s.kv.Get(r.Context(), core.KeyActiveTab, &tab); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]core.Tab{"tab": tab})
}

func (s *Server) handleSetTab(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Tab core.Tab `json:"tab"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON"})
		return
	}
	if !input.Tab.Valid() {
		s.respondError(w, fmt.Errorf("%w: %q", core.ErrInvalidTab, input.Tab))
		return
	}
	if err := s.kv.Set(r.Context(), core.KeyActiveTab, input.Tab); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]core.Tab{"tab": input.Tab})
}

// --- Task handlers ---

func (s *Server) handleGetTasks(w http.ResponseWriter, r *http.Request) {
	switch view := r.URL.Query().Get("view"); view {
	case "", "active":
		list, err := s.tasks.Active(r.Context())
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, list)
	case "history":
		history, err := s.tasks.History(r.Context())
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, history)
	case "all":
		list, err := s.tasks.List(r.Context())
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, list)
	default:
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown view " + view})
	}
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Text      string `json:"text"`
		Breakdown bool   `json:"breakdown"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON"})
		return
	}

	if input.Breakdown {
		created, err := s.tasks.AddWithBreakdown(r.Context(), input.Text)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusCreated, created)
		return
	}

	task, err := s.tasks.Add(r.Context(), input.Text)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, []core.Task{task})
}

func (s *Server) handleToggleTask(w http.ResponseWriter, r *http.Request) {
	if err := s.tasks.Toggle(r.Context(), chi.URLParam(r, "taskID")); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "toggled"})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.tasks.Delete(r.Context(), chi.URLParam(r, "taskID")); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleArchiveTasks(w http.ResponseWriter, r *http.Request) {
	archived, err := s.tasks.ArchiveCompleted(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"archived": archived})
}

// --- Event handlers ---

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	if date := r.URL.Query().Get("date"); date != "" {
		day, err := s.events.ForDate(r.Context(), date)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, day)
		return
	}

	all, err := s.events.All(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, all)
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Title string `json:"title"`
		Date  string `json:"date"`
		Time  string `json:"time"`
		Smart bool   `json:"smart"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON"})
		return
	}

	if input.Date == "" {
		input.Date = core.Today()
	}

	var evt core.Event
	var err error
	if input.Smart {
		evt, err = s.events.AddSmart(r.Context(), input.Title, input.Date)
	} else {
		evt, err = s.events.Add(r.Context(), input.Date, input.Title, input.Time)
	}
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, evt)
}

func (s *Server) handleCompleteEvent(w http.ResponseWriter, r *http.Request) {
	err := s.events.Complete(r.Context(), chi.URLParam(r, "date"), chi.URLParam(r, "eventID"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	err := s.events.Delete(r.Context(), chi.URLParam(r, "date"), chi.URLParam(r, "eventID"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- Idea handlers ---

func (s *Server) handleGetIdeas(w http.ResponseWriter, r *http.Request) {
	list, err := s.ideas.List(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateIdea(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON"})
		return
	}

	idea, err := s.ideas.Add(r.Context(), input.Content)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, idea)
}

func (s *Server) handleExpandIdea(w http.ResponseWriter, r *http.Request) {
	idea, err := s.ideas.Expand(r.Context(), chi.URLParam(r, "ideaID"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, idea)
}

func (s *Server) handleDeleteIdea(w http.ResponseWriter, r *http.Request) {
	if err := s.ideas.Delete(r.Context(), chi.URLParam(r, "ideaID")); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- Assist / reminder handlers ---

func (s *Server) handleAssistStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.assist.CheckStatus(r.Context()))
}

func (s *Server) handleGetReminders(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.reminders.Pending())
}

// handleNotificationAction is the inbound edge of the external
// mutation channel: the platform posts the performed action here and
// the reminder service fans it out to registered listeners.
func (s *Server) handleNotificationAction(w http.ResponseWriter, r *http.Request) {
	var action reminders.Action
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON"})
		return
	}

	s.reminders.Dispatch(r.Context(), action)
	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "dispatched"})
}
