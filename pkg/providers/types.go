package providers

import "context"

// Message is one role-tagged entry in a chat-completions request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response is the provider's final text result. Streaming is a UI concern;
// the engine only ever consumes the complete reply.
type Response struct {
	Content      string
	FinishReason string
}

// LLMProvider is the single capability the engine needs from a model
// backend: a role-tagged message list in, plain text out.
type LLMProvider interface {
	Chat(ctx context.Context, messages []Message, model string, options map[string]interface{}) (*Response, error)
	GetDefaultModel() string
}
