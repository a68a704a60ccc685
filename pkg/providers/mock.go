package providers

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider returns scripted replies in order. Used by tests and by
// `peiban chat --dry-run` to exercise the full turn pipeline offline.
type MockProvider struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   [][]Message
}

func NewMockProvider(replies ...string) *MockProvider {
	return &MockProvider{replies: replies}
}

// Fail makes every subsequent Chat call return err.
func (m *MockProvider) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockProvider) Chat(ctx context.Context, messages []Message, model string, options map[string]interface{}) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, append([]Message(nil), messages...))
	if m.err != nil {
		return nil, m.err
	}
	if len(m.replies) == 0 {
		return nil, fmt.Errorf("mock provider: no scripted reply left")
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return &Response{Content: reply, FinishReason: "stop"}, nil
}

func (m *MockProvider) GetDefaultModel() string { return "mock" }

// Calls returns the message lists received so far.
func (m *MockProvider) Calls() [][]Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]Message, len(m.calls))
	copy(out, m.calls)
	return out
}
