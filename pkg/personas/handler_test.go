package personas

import (
	"context"
	"errors"
	"testing"

	"github.com/peiban-ai/peiban/pkg/conversation"
	"github.com/peiban-ai/peiban/pkg/providers"
	"github.com/peiban-ai/peiban/pkg/router"
)

func TestBuildHandlers_CoversRegistry(t *testing.T) {
	handlers := BuildHandlers(providers.NewMockProvider(), Options{Model: "mock"})
	for _, persona := range router.Registry {
		if _, ok := handlers[persona.ID]; !ok {
			t.Fatalf("no handler built for persona %q", persona.ID)
		}
	}
}

func TestLLMHandler_Respond(t *testing.T) {
	mock := providers.NewMockProvider("今天天气不错，要不要去楼下晒晒太阳？")
	handlers := BuildHandlers(mock, Options{Model: "mock", Temperature: 0.7})

	history := []conversation.Message{
		conversation.NewMessage(conversation.RoleUser, "有点无聊"),
	}
	reply, err := handlers["wan_qing"].Respond(context.Background(), history)
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if reply.Role != conversation.RoleAssistant {
		t.Fatalf("reply role = %q", reply.Role)
	}
	if reply.Tags["persona"] != "wan_qing" {
		t.Fatalf("reply persona tag = %q", reply.Tags["persona"])
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 provider call, got %d", len(calls))
	}
	sent := calls[0]
	if len(sent) != 2 {
		t.Fatalf("expected system instruction plus 1 history message, got %d", len(sent))
	}
	if sent[0].Role != "system" || sent[0].Content == "" {
		t.Fatalf("first message must be the persona instruction, got %#v", sent[0])
	}
	if sent[1].Role != "user" || sent[1].Content != "有点无聊" {
		t.Fatalf("history not forwarded: %#v", sent[1])
	}
}

func TestLLMHandler_WrapsProviderError(t *testing.T) {
	mock := providers.NewMockProvider()
	mock.Fail(errors.New("connection refused"))
	handlers := BuildHandlers(mock, Options{Model: "mock"})

	_, err := handlers["xin_jing"].Respond(context.Background(), nil)
	if err == nil {
		t.Fatal("expected provider error to surface")
	}
}

func TestLLMClassifier_TrimsOutput(t *testing.T) {
	mock := providers.NewMockProvider("\n  {\"分发目标\": \"心镜\"}  \n")
	c := NewClassifier(mock, Options{Model: "mock", Temperature: 0.9})

	raw, err := c.Classify(context.Background(), []conversation.Message{
		conversation.NewMessage(conversation.RoleUser, "心里有点难受"),
	})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if raw != `{"分发目标": "心镜"}` {
		t.Fatalf("output not trimmed: %q", raw)
	}
}

func TestLLMCall_SystemNoteRoleMapping(t *testing.T) {
	mock := providers.NewMockProvider("好的")
	handlers := BuildHandlers(mock, Options{Model: "mock"})

	note := conversation.NewMessage(conversation.RoleSystemNote, "operator reminder")
	history := []conversation.Message{
		note,
		conversation.NewMessage(conversation.RoleUser, "你好"),
	}
	if _, err := handlers["xing_zhe"].Respond(context.Background(), history); err != nil {
		t.Fatalf("respond: %v", err)
	}

	sent := mock.Calls()[0]
	// instruction + note + user
	if len(sent) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(sent))
	}
	if sent[1].Role != "system" {
		t.Fatalf("system_note must travel as a system line, got role %q", sent[1].Role)
	}
}
