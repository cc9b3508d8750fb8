// Package core defines the fundamental types and errors for MindFlow.
package core

import (
	"time"
)

// -----------------------------------------------------------------------------
// STORE KEYS - The flat persisted namespace
// -----------------------------------------------------------------------------

// Store keys. Every collection lives under exactly one key; all
// cross-cutting visibility goes through the keyed store, never through
// a privately held copy.
const (
	KeyActiveTab = "active_tab" // Tab enum string
	KeyTasks     = "tasks"      // []Task
	KeyEvents    = "events"     // EventsByDate
	KeyIdeas     = "ideas"      // []Idea
)

// -----------------------------------------------------------------------------
// TAB - Which surface the UI is showing
// -----------------------------------------------------------------------------

// Tab identifies one of the app's three surfaces.
type Tab string

const (
	TabTodo     Tab = "TODO"
	TabCalendar Tab = "CALENDAR"
	TabIdeas    Tab = "IDEAS"
)

// Valid reports whether t is a member of the closed tab set.
func (t Tab) Valid() bool {
	switch t {
	case TabTodo, TabCalendar, TabIdeas:
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// TASK
// -----------------------------------------------------------------------------

// Task is a single to-do entry. A completed task is not deleted by
// archiving; it gains an ArchivedDate and leaves the active view while
// staying in the stored sequence.
type Task struct {
	ID           string     `json:"id"`
	Text         string     `json:"text"`
	Completed    bool       `json:"completed"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	ArchivedDate string     `json:"archivedDate,omitempty"` // YYYY-MM-DD
}

// Archived reports whether the task has been demoted to history.
func (t Task) Archived() bool {
	return t.ArchivedDate != ""
}

// -----------------------------------------------------------------------------
// CALENDAR EVENT
// -----------------------------------------------------------------------------

// Event is a calendar entry. DateStr always equals the key of the date
// bucket holding the event.
type Event struct {
	ID        string `json:"id"`
	DateStr   string `json:"dateStr"`        // YYYY-MM-DD
	Title     string `json:"title"`
	Time      string `json:"time,omitempty"` // HH:MM, 24-hour
	Completed bool   `json:"completed,omitempty"`
}

// EventsByDate maps a YYYY-MM-DD date string to the events on that day.
type EventsByDate map[string][]Event

// -----------------------------------------------------------------------------
// IDEA
// -----------------------------------------------------------------------------

// Idea is a free-form note on the idea board.
type Idea struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Color     string    `json:"color"` // background color class for the card
	CreatedAt time.Time `json:"createdAt"`
	Tags      []string  `json:"tags,omitempty"`
}

// PastelColors are the card backgrounds new ideas are drawn from.
var PastelColors = []string{
	"bg-red-100",
	"bg-orange-100",
	"bg-amber-100",
	"bg-green-100",
	"bg-emerald-100",
	"bg-teal-100",
	"bg-cyan-100",
	"bg-sky-100",
	"bg-blue-100",
	"bg-indigo-100",
	"bg-violet-100",
	"bg-purple-100",
	"bg-fuchsia-100",
	"bg-pink-100",
	"bg-rose-100",
}

// -----------------------------------------------------------------------------
// DATES
// -----------------------------------------------------------------------------

// DateLayout is the wire format for calendar date strings.
const DateLayout = "2006-01-02"

// TimeLayout is the wire format for event times.
const TimeLayout = "15:04"

// LocalDate formats t as a YYYY-MM-DD string in local time.
func LocalDate(t time.Time) string {
	return t.Local().Format(DateLayout)
}

// Today returns the current local date as YYYY-MM-DD.
func Today() string {
	return LocalDate(time.Now())
}
