package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleSystemNote Role = "system_note"
)

// TagRoutingDecision marks a SystemNote that carries a serialized routing
// decision. The tag value is the decision payload itself so observers can
// recover it without parsing message content.
const TagRoutingDecision = "routing_decision"

// Message is one utterance in a conversation. Messages are append-only:
// once added to a history they are never edited in place.
type Message struct {
	ID        string            `json:"id"`
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	Tags      map[string]string `json:"tags,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// IsRoutingNote reports whether the message is a router audit record.
func (m Message) IsRoutingNote() bool {
	if m.Role != RoleSystemNote {
		return false
	}
	_, ok := m.Tags[TagRoutingDecision]
	return ok
}

// State is the unit of persistence: everything the engine knows about one
// session. History grows without bound; only sanitized views derived from it
// are windowed.
type State struct {
	SessionID string
	History   []Message

	// PendingRoute holds the persona chosen for the in-progress turn.
	// It is cleared before the turn commits and is never persisted.
	PendingRoute string
}

func NewState(sessionID string) *State {
	return &State{SessionID: sessionID}
}

func (s *State) Append(msg Message) {
	s.History = append(s.History, msg)
}

// LastAssistant returns the most recent assistant message, if any.
func (s *State) LastAssistant() (Message, bool) {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Role == RoleAssistant {
			return s.History[i], true
		}
	}
	return Message{}, false
}

// Clone returns a deep copy so stores can hand out state without aliasing
// the caller's history slice.
func (s *State) Clone() *State {
	out := &State{SessionID: s.SessionID, PendingRoute: s.PendingRoute}
	out.History = make([]Message, len(s.History))
	copy(out.History, s.History)
	for i, m := range s.History {
		if len(m.Tags) > 0 {
			tags := make(map[string]string, len(m.Tags))
			for k, v := range m.Tags {
				tags[k] = v
			}
			out.History[i].Tags = tags
		}
	}
	return out
}
