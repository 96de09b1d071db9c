package repository

import (
	"context"
	"sync"
	"time"

	"careline-agent/internal/domain"
)

// memoryStore keeps contexts in a map. Used by tests and local development.
type memoryStore struct {
	mu       sync.RWMutex
	contexts map[string]*domain.ConversationContext
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() Store {
	return &memoryStore{contexts: make(map[string]*domain.ConversationContext)}
}

func (s *memoryStore) Get(_ context.Context, identity string) (*domain.ConversationContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.contexts[identity]
	if !ok {
		return domain.NewConversationContext(identity), nil
	}
	return cloneContext(stored), nil
}

func (s *memoryStore) Apply(_ context.Context, identity string, patch domain.ContextPatch) (*domain.ConversationContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.contexts[identity]
	if !ok {
		stored = domain.NewConversationContext(identity)
		s.contexts[identity] = stored
	}
	applyPatch(stored, patch, time.Now().UTC())
	return cloneContext(stored), nil
}

func (s *memoryStore) ListIdle(_ context.Context, states []domain.State, cutoff time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var idle []string
	for identity, c := range s.contexts {
		if stateIn(c.State, states) && c.UpdatedAt.Before(cutoff) {
			idle = append(idle, identity)
		}
	}
	return idle, nil
}

func (s *memoryStore) Delete(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.contexts, identity)
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.contexts = nil
	return nil
}

func cloneContext(c *domain.ConversationContext) *domain.ConversationContext {
	clone := *c
	clone.Meta = make(map[string]any, len(c.Meta))
	for k, v := range c.Meta {
		clone.Meta[k] = v
	}
	return &clone
}
