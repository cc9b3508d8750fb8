// Package tasks manages the to-do collection.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mindflow-hq/mindflow/internal/assist"
	"github.com/mindflow-hq/mindflow/internal/core"
	"github.com/mindflow-hq/mindflow/internal/store"
)

// Service mutates the task sequence through whole-value
// read-modify-write against the keyed store.
type Service struct {
	kv     *store.KV
	assist *assist.Client
}

// NewService creates a task service.
func NewService(kv *store.KV, assistClient *assist.Client) *Service {
	return &Service{kv: kv, assist: assistClient}
}

func decode(raw json.RawMessage) ([]core.Task, error) {
	var all []core.Task
	if raw == nil {
		return all, nil
	}
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	return all, nil
}

func newTask(text string) core.Task {
	return core.Task{
		ID:        uuid.New().String(),
		Text:      text,
		CreatedAt: time.Now(),
	}
}

// Add prepends a new task to the sequence.
func (s *Service) Add(ctx context.Context, text string) (core.Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return core.Task{}, fmt.Errorf("%w: task text is required", core.ErrInvalidInput)
	}

	task := newTask(text)
	err := s.kv.Update(ctx, core.KeyTasks, func(raw json.RawMessage) (any, error) {
		all, err := decode(raw)
		if err != nil {
			return nil, err
		}
		return append([]core.Task{task}, all...), nil
	})
	if err != nil {
		return core.Task{}, err
	}
	return task, nil
}

// AddWithBreakdown asks the collaborator to split the text into
// subtasks and creates one task per suggestion. An empty suggestion
// list — collaborator absent, failed, or simply unhelpful — falls back
// to exactly one task from the raw text.
func (s *Service) AddWithBreakdown(ctx context.Context, text string) ([]core.Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: task text is required", core.ErrInvalidInput)
	}

	subtasks := s.assist.GenerateSubtasks(ctx, text)
	if len(subtasks) == 0 {
		task, err := s.Add(ctx, text)
		if err != nil {
			return nil, err
		}
		return []core.Task{task}, nil
	}

	created := make([]core.Task, len(subtasks))
	for i, sub := range subtasks {
		created[i] = newTask(sub)
	}

	err := s.kv.Update(ctx, core.KeyTasks, func(raw json.RawMessage) (any, error) {
		all, err := decode(raw)
		if err != nil {
			return nil, err
		}
		return append(append([]core.Task(nil), created...), all...), nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Toggle flips a task's completion, stamping CompletedAt on completion
// and clearing it when un-completing.
func (s *Service) Toggle(ctx context.Context, id string) error {
	return s.kv.Update(ctx, core.KeyTasks, func(raw json.RawMessage) (any, error) {
		all, err := decode(raw)
		if err != nil {
			return nil, err
		}

		for i, t := range all {
			if t.ID != id {
				continue
			}
			if t.Completed {
				all[i].Completed = false
				all[i].CompletedAt = nil
			} else {
				now := time.Now()
				all[i].Completed = true
				all[i].CompletedAt = &now
			}
			return all, nil
		}
		return nil, core.ErrTaskNotFound
	})
}

// Delete removes a task by id.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.kv.Update(ctx, core.KeyTasks, func(raw json.RawMessage) (any, error) {
		all, err := decode(raw)
		if err != nil {
			return nil, err
		}

		kept := all[:0:0]
		for _, t := range all {
			if t.ID != id {
				kept = append(kept, t)
			}
		}
		if len(kept) == len(all) {
			return nil, core.ErrTaskNotFound
		}
		return kept, nil
	})
}

// ArchiveCompleted stamps an archive date on every completed,
// unarchived task, demoting it to history. The date comes from the
// task's completion time, falling back to today. Returns how many
// tasks were archived.
func (s *Service) ArchiveCompleted(ctx context.Context) (int, error) {
	archived := 0
	err := s.kv.Update(ctx, core.KeyTasks, func(raw json.RawMessage) (any, error) {
		all, err := decode(raw)
		if err != nil {
			return nil, err
		}

		for i, t := range all {
			if !t.Completed || t.Archived() {
				continue
			}
			date := core.Today()
			if t.CompletedAt != nil {
				date = core.LocalDate(*t.CompletedAt)
			}
			all[i].ArchivedDate = date
			archived++
		}

		if archived == 0 {
			return nil, store.ErrUnchanged
		}
		return all, nil
	})
	if err != nil {
		return 0, err
	}
	return archived, nil
}

// List returns the raw stored sequence, archived tasks included.
func (s *Service) List(ctx context.Context) ([]core.Task, error) {
	var all []core.Task
	if _, err := s.kv.Get(ctx, core.KeyTasks, &all); err != nil {
		return nil, err
	}
	return all, nil
}

// Active returns unarchived tasks, incomplete first and newest first
// within each group.
func (s *Service) Active(ctx context.Context) ([]core.Task, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	var active []core.Task
	for _, t := range all {
		if !t.Archived() {
			active = append(active, t)
		}
	}

	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Completed != active[j].Completed {
			return !active[i].Completed
		}
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})
	return active, nil
}

// History returns archived tasks grouped by archive date.
func (s *Service) History(ctx context.Context) (map[string][]core.Task, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	history := make(map[string][]core.Task)
	for _, t := range all {
		if t.Archived() {
			history[t.ArchivedDate] = append(history[t.ArchivedDate], t)
		}
	}
	return history, nil
}
