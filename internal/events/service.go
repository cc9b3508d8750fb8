// Package events manages the calendar event collection.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mindflow-hq/mindflow/internal/assist"
	"github.com/mindflow-hq/mindflow/internal/core"
	"github.com/mindflow-hq/mindflow/internal/logging"
	"github.com/mindflow-hq/mindflow/internal/reminders"
	"github.com/mindflow-hq/mindflow/internal/store"
)

// reminderTitle is the title every scheduled event reminder carries.
const reminderTitle = "MindFlow Reminder"

// Service mutates the events collection through whole-value
// read-modify-write against the keyed store.
type Service struct {
	kv        *store.KV
	assist    *assist.Client
	reminders *reminders.Service
}

// NewService creates an event service.
func NewService(kv *store.KV, assistClient *assist.Client, rem *reminders.Service) *Service {
	return &Service{kv: kv, assist: assistClient, reminders: rem}
}

// decode unmarshals the stored collection, treating an absent key as
// an empty map.
func decode(raw json.RawMessage) (core.EventsByDate, error) {
	all := core.EventsByDate{}
	if raw == nil {
		return all, nil
	}
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return all, nil
}

// Add appends an event to its date bucket. A timed event also gets a
// reminder; reminder scheduling is best-effort and never fails the
// mutation.
func (s *Service) Add(ctx context.Context, dateStr, title, timeStr string) (core.Event, error) {
	if title == "" {
		return core.Event{}, fmt.Errorf("%w: event title is required", core.ErrInvalidInput)
	}
	if _, err := time.ParseInLocation(core.DateLayout, dateStr, time.Local); err != nil {
		return core.Event{}, fmt.Errorf("%w: bad date %q", core.ErrInvalidInput, dateStr)
	}

	evt := core.Event{
		ID:      uuid.New().String(),
		DateStr: dateStr,
		Title:   title,
		Time:    timeStr,
	}

	err := s.kv.Update(ctx, core.KeyEvents, func(raw json.RawMessage) (any, error) {
		all, err := decode(raw)
		if err != nil {
			return nil, err
		}
		all[dateStr] = append(all[dateStr], evt)
		return all, nil
	})
	if err != nil {
		return core.Event{}, err
	}

	if timeStr != "" {
		if err := s.reminders.Schedule(evt.ID, reminderTitle, title, dateStr, timeStr); err != nil {
			logging.Warn("events: could not schedule reminder for %s: %v", evt.ID, err)
		}
	}

	return evt, nil
}

// AddSmart runs the scheduling suggestion over free text and places
// the event on the suggested date and time. With the collaborator
// unavailable the raw text lands title-only on fallbackDate.
func (s *Service) AddSmart(ctx context.Context, input, fallbackDate string) (core.Event, error) {
	suggestion := s.assist.SuggestEvent(ctx, input)

	date := suggestion.Date
	if date == "" {
		date = fallbackDate
	}
	return s.Add(ctx, date, suggestion.Title, suggestion.Time)
}

// Delete removes an event and cancels its reminder. An emptied date
// bucket is dropped from the map entirely.
func (s *Service) Delete(ctx context.Context, dateStr, id string) error {
	s.reminders.Cancel(id)

	return s.kv.Update(ctx, core.KeyEvents, func(raw json.RawMessage) (any, error) {
		all, err := decode(raw)
		if err != nil {
			return nil, err
		}

		bucket, ok := all[dateStr]
		if !ok {
			return nil, core.ErrEventNotFound
		}

		kept := bucket[:0:0]
		for _, e := range bucket {
			if e.ID != id {
				kept = append(kept, e)
			}
		}
		if len(kept) == len(bucket) {
			return nil, core.ErrEventNotFound
		}

		if len(kept) == 0 {
			delete(all, dateStr)
		} else {
			all[dateStr] = kept
		}
		return all, nil
	})
}

// Complete marks one event done. This is the mutation the out-of-band
// notification action funnels into, so it is deliberately forgiving: a
// missing bucket, a missing id, or an already-completed event leaves
// the store untouched and returns nil.
func (s *Service) Complete(ctx context.Context, dateStr, id string) error {
	return s.kv.Update(ctx, core.KeyEvents, func(raw json.RawMessage) (any, error) {
		all, err := decode(raw)
		if err != nil {
			logging.Warn("events: stored collection unreadable, ignoring completion of %s: %v", id, err)
			return nil, store.ErrUnchanged
		}

		bucket, ok := all[dateStr]
		if !ok {
			logging.Debug("events: no bucket %s for completion of %s", dateStr, id)
			return nil, store.ErrUnchanged
		}

		for i, e := range bucket {
			if e.ID != id {
				continue
			}
			if e.Completed {
				return nil, store.ErrUnchanged
			}
			bucket[i].Completed = true
			all[dateStr] = bucket
			return all, nil
		}

		logging.Debug("events: %s not found under %s, ignoring completion", id, dateStr)
		return nil, store.ErrUnchanged
	})
}

// ForDate returns the events of one day sorted by time, untimed
// entries first.
func (s *Service) ForDate(ctx context.Context, dateStr string) ([]core.Event, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}

	day := append([]core.Event(nil), all[dateStr]...)
	sort.SliceStable(day, func(i, j int) bool { return day[i].Time < day[j].Time })
	return day, nil
}

// All returns the full collection.
func (s *Service) All(ctx context.Context) (core.EventsByDate, error) {
	all := core.EventsByDate{}
	if _, err := s.kv.Get(ctx, core.KeyEvents, &all); err != nil {
		return nil, err
	}
	return all, nil
}
