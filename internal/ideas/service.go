// Package ideas manages the idea board collection.
package ideas

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mindflow-hq/mindflow/internal/assist"
	"github.com/mindflow-hq/mindflow/internal/core"
	"github.com/mindflow-hq/mindflow/internal/store"
)

// expansionMarker prefixes AI-generated text appended to an idea so it
// stays visually distinct from the user's own words.
const expansionMarker = "\n\n✨ "

// Service mutates the idea sequence through whole-value
// read-modify-write against the keyed store.
type Service struct {
	kv     *store.KV
	assist *assist.Client
}

// NewService creates an idea service.
func NewService(kv *store.KV, assistClient *assist.Client) *Service {
	return &Service{kv: kv, assist: assistClient}
}

func decode(raw json.RawMessage) ([]core.Idea, error) {
	var all []core.Idea
	if raw == nil {
		return all, nil
	}
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("decode ideas: %w", err)
	}
	return all, nil
}

// Add prepends a new idea with a randomly picked pastel color.
func (s *Service) Add(ctx context.Context, content string) (core.Idea, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return core.Idea{}, fmt.Errorf("%w: idea content is required", core.ErrInvalidInput)
	}

	idea := core.Idea{
		ID:        uuid.New().String(),
		Content:   content,
		Color:     core.PastelColors[rand.Intn(len(core.PastelColors))],
		CreatedAt: time.Now(),
	}

	err := s.kv.Update(ctx, core.KeyIdeas, func(raw json.RawMessage) (any, error) {
		all, err := decode(raw)
		if err != nil {
			return nil, err
		}
		return append([]core.Idea{idea}, all...), nil
	})
	if err != nil {
		return core.Idea{}, err
	}
	return idea, nil
}

// Delete removes an idea by id.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.kv.Update(ctx, core.KeyIdeas, func(raw json.RawMessage) (any, error) {
		all, err := decode(raw)
		if err != nil {
			return nil, err
		}

		kept := all[:0:0]
		for _, i := range all {
			if i.ID != id {
				kept = append(kept, i)
			}
		}
		if len(kept) == len(all) {
			return nil, core.ErrIdeaNotFound
		}
		return kept, nil
	})
}

// Expand asks the collaborator for a short expansion and appends it to
// the idea under a visual marker. An empty expansion leaves the idea
// untouched. The slow collaborator call happens outside the store's
// key lock; the append is applied to the latest persisted content.
func (s *Service) Expand(ctx context.Context, id string) (core.Idea, error) {
	current, err := s.get(ctx, id)
	if err != nil {
		return core.Idea{}, err
	}

	expansion := s.assist.ExpandIdea(ctx, current.Content)
	if expansion == "" {
		return current, nil
	}

	var expanded core.Idea
	err = s.kv.Update(ctx, core.KeyIdeas, func(raw json.RawMessage) (any, error) {
		all, err := decode(raw)
		if err != nil {
			return nil, err
		}
		for i, idea := range all {
			if idea.ID == id {
				all[i].Content += expansionMarker + expansion
				expanded = all[i]
				return all, nil
			}
		}
		// Deleted while the collaborator was thinking.
		return nil, core.ErrIdeaNotFound
	})
	if err != nil {
		return core.Idea{}, err
	}
	return expanded, nil
}

// List returns the stored sequence, newest first.
func (s *Service) List(ctx context.Context) ([]core.Idea, error) {
	var all []core.Idea
	if _, err := s.kv.Get(ctx, core.KeyIdeas, &all); err != nil {
		return nil, err
	}
	return all, nil
}

func (s *Service) get(ctx context.Context, id string) (core.Idea, error) {
	all, err := s.List(ctx)
	if err != nil {
		return core.Idea{}, err
	}
	for _, i := range all {
		if i.ID == id {
			return i, nil
		}
	}
	return core.Idea{}, core.ErrIdeaNotFound
}
