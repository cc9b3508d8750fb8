// Package actions is the external mutation channel: it turns
// asynchronous notification actions — performed while the app may have
// been backgrounded or closed — into ordinary store mutations, so
// every bound consumer sees them the moment it next refreshes.
package actions

import (
	"context"

	"github.com/mindflow-hq/mindflow/internal/events"
	"github.com/mindflow-hq/mindflow/internal/logging"
	"github.com/mindflow-hq/mindflow/internal/reminders"
)

// listenerID is fixed so that registering the handler again replaces
// the previous registration instead of duplicating delivery.
const listenerID = "notification-actions"

// Handler listens for performed notification actions and applies them
// through the same keyed-store contract every in-process writer uses.
type Handler struct {
	events    *events.Service
	reminders *reminders.Service
}

// NewHandler creates the action handler.
func NewHandler(ev *events.Service, rem *reminders.Service) *Handler {
	return &Handler{events: ev, reminders: rem}
}

// Register attaches the handler to the reminder service's action bus
// for the lifetime of the process.
func (h *Handler) Register() {
	h.reminders.Subscribe(h)
}

// Close releases the underlying registration. After Close no action is
// delivered into this handler.
func (h *Handler) Close() {
	h.reminders.Unsubscribe(listenerID)
}

// ID implements reminders.Listener.
func (h *Handler) ID() string {
	return listenerID
}

// HandleAction implements reminders.Listener. Unrecognized actions and
// actions whose target no longer exists are no-ops, never errors: the
// action may arrive hours late, after the event was edited or deleted.
func (h *Handler) HandleAction(ctx context.Context, action reminders.Action) {
	extra := action.Notification.Extra

	switch action.ActionID {
	case reminders.ActionComplete:
		if extra.EventID == "" || extra.DateStr == "" {
			logging.Debug("actions: complete without event reference, ignoring")
			return
		}
		if err := h.events.Complete(ctx, extra.DateStr, extra.EventID); err != nil {
			logging.Warn("actions: completing %s failed: %v", extra.EventID, err)
		}

	case reminders.ActionSnooze:
		h.reminders.Snooze(action.Notification)

	default:
		logging.Debug("actions: unrecognized action %q, ignoring", action.ActionID)
	}
}
