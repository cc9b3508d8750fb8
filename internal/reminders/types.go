// Package reminders implements local reminder scheduling and the
// action bus for out-of-band user responses.
package reminders

import "context"

// Recognized action IDs. Anything else is a no-op by design.
const (
	ActionComplete = "complete"
	ActionSnooze   = "snooze"
	ActionCancel   = "cancel"
)

// Extra is the payload carried by a reminder so a later action can be
// traced back to the event that scheduled it.
type Extra struct {
	EventID       string `json:"eventId"`
	DateStr       string `json:"dateStr"` // YYYY-MM-DD
	OriginalTitle string `json:"originalTitle,omitempty"`
	OriginalBody  string `json:"originalBody,omitempty"`
}

// Notification is one scheduled (or fired) reminder. ID is the numeric
// platform identifier derived from the event's string id; the platform
// guarantees at most one pending reminder per ID.
type Notification struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Extra Extra  `json:"extra"`
}

// Action is the inbound "user performed a notification action" event.
// It may arrive at an arbitrary later time, possibly long after the
// reminder fired, and possibly after the target event was edited or
// deleted.
type Action struct {
	ActionID     string       `json:"actionId"`
	Notification Notification `json:"notification"`
}

// Listener receives dispatched actions. Registering a listener with an
// ID that is already registered replaces the prior registration, so
// repeated registration never duplicates delivery.
type Listener interface {
	ID() string
	HandleAction(ctx context.Context, action Action)
}

// HashID converts a string id to the positive 32-bit integer id the
// notification platform requires.
func HashID(s string) int {
	var h int32
	for _, c := range s {
		h = h*31 + int32(c)
	}
	if h < 0 {
		h = -h
	}
	return int(h)
}
