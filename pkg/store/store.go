package store

import (
	"context"
	"errors"

	"github.com/peiban-ai/peiban/pkg/conversation"
)

// ErrNotFound is returned by Load for sessions that have never been saved.
// Callers treat it as "new session", anything else as fatal for the turn.
var ErrNotFound = errors.New("session not found")

// Store persists conversation state per session. Implementations must make
// Save atomic per session: a reader never observes a half-written turn.
type Store interface {
	Load(ctx context.Context, sessionID string) (*conversation.State, error)
	Save(ctx context.Context, state *conversation.State) error
	ListSessions(ctx context.Context) ([]string, error)
	Close() error
}
