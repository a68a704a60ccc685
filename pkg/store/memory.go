package store

import (
	"context"
	"sync"

	"github.com/peiban-ai/peiban/pkg/conversation"
)

// MemoryStore keeps sessions in process memory. Used by tests and by
// dry-run chat sessions; state does not survive a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*conversation.State
	order    []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]*conversation.State{}}
}

func (s *MemoryStore) Load(ctx context.Context, sessionID string) (*conversation.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return state.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, state *conversation.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[state.SessionID]; !ok {
		s.order = append(s.order, state.SessionID)
	}
	s.sessions[state.SessionID] = state.Clone()
	return nil
}

func (s *MemoryStore) ListSessions(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
