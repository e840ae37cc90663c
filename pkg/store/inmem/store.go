// Package inmem provides an in-memory conversation state store, used by
// tests and single-process deployments.
package inmem

import (
	"context"
	"sync"

	"github.com/optiad/adpilot/pkg/store"
)

// Store keeps serialized conversation states in a mutex-guarded map.
type Store struct {
	mu     sync.RWMutex
	states map[string][]byte
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{states: map[string][]byte{}}
}

func (s *Store) Put(_ context.Context, conversationID string, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, len(state))
	copy(buf, state)
	s.states[conversationID] = buf
	return nil
}

func (s *Store) Get(_ context.Context, conversationID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[conversationID]
	if !ok {
		return nil, store.ErrNotFound
	}
	buf := make([]byte, len(state))
	copy(buf, state)
	return buf, nil
}

func (s *Store) Delete(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, conversationID)
	return nil
}
