package personas

import (
	"context"
	"fmt"
	"strings"

	"github.com/peiban-ai/peiban/pkg/conversation"
	"github.com/peiban-ai/peiban/pkg/providers"
	"github.com/peiban-ai/peiban/pkg/router"
)

// Handler is the one capability every persona implements: given a sanitized
// history, produce a reply. Handlers never touch conversation state; all
// mutation happens in the dispatcher after the call returns.
type Handler interface {
	Respond(ctx context.Context, history []conversation.Message) (conversation.Message, error)
}

// Classifier decides which persona should answer the current turn. Its raw
// output goes through the routing parser, never directly into history.
type Classifier interface {
	Classify(ctx context.Context, history []conversation.Message) (string, error)
}

// Options carries the model call parameters shared by all personas.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

type llmCall struct {
	provider    providers.LLMProvider
	instruction string
	opts        Options
}

func (c *llmCall) invoke(ctx context.Context, history []conversation.Message) (string, error) {
	messages := make([]providers.Message, 0, len(history)+1)
	messages = append(messages, providers.Message{Role: "system", Content: c.instruction})
	for _, msg := range history {
		role := string(msg.Role)
		if msg.Role == conversation.RoleSystemNote {
			// Sanitized views exclude routing notes; any other note
			// travels as a system line.
			role = "system"
		}
		messages = append(messages, providers.Message{Role: role, Content: msg.Content})
	}

	options := map[string]interface{}{
		"temperature": c.opts.Temperature,
	}
	if c.opts.MaxTokens > 0 {
		options["max_tokens"] = c.opts.MaxTokens
	}

	resp, err := c.provider.Chat(ctx, messages, c.opts.Model, options)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// LLMHandler answers as one fixed persona over the shared provider.
type LLMHandler struct {
	persona router.Persona
	call    llmCall
}

func (h *LLMHandler) Respond(ctx context.Context, history []conversation.Message) (conversation.Message, error) {
	content, err := h.call.invoke(ctx, history)
	if err != nil {
		return conversation.Message{}, fmt.Errorf("persona %s: %w", h.persona.ID, err)
	}
	reply := conversation.NewMessage(conversation.RoleAssistant, content)
	reply.Tags = map[string]string{"persona": h.persona.ID}
	return reply, nil
}

// LLMClassifier runs the router prompt over the shared provider.
type LLMClassifier struct {
	call llmCall
}

func (c *LLMClassifier) Classify(ctx context.Context, history []conversation.Message) (string, error) {
	raw, err := c.call.invoke(ctx, history)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

// NewClassifier builds the routing classifier.
func NewClassifier(provider providers.LLMProvider, opts Options) *LLMClassifier {
	// Routing should be deterministic regardless of the chat temperature.
	classifierOpts := opts
	classifierOpts.Temperature = 0
	return &LLMClassifier{call: llmCall{
		provider:    provider,
		instruction: routerInstruction(),
		opts:        classifierOpts,
	}}
}

// BuildHandlers returns the fixed persona table. Adding a persona means one
// registry entry plus one instruction, not a new code path.
func BuildHandlers(provider providers.LLMProvider, opts Options) map[string]Handler {
	instructions := map[string]string{
		"wan_qing": wanQingPrompt,
		"xin_jing": xinJingPrompt,
		"xing_zhe": xingZhePrompt,
	}

	handlers := make(map[string]Handler, len(router.Registry))
	for _, persona := range router.Registry {
		instruction, ok := instructions[persona.ID]
		if !ok {
			continue
		}
		handlers[persona.ID] = &LLMHandler{
			persona: persona,
			call: llmCall{
				provider:    provider,
				instruction: instruction,
				opts:        opts,
			},
		}
	}
	return handlers
}
