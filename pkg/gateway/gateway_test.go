package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/peiban-ai/peiban/pkg/conversation"
	"github.com/peiban-ai/peiban/pkg/dispatch"
	"github.com/peiban-ai/peiban/pkg/personas"
	"github.com/peiban-ai/peiban/pkg/router"
	"github.com/peiban-ai/peiban/pkg/store"
)

type fixedClassifier string

func (f fixedClassifier) Classify(ctx context.Context, history []conversation.Message) (string, error) {
	return string(f), nil
}

type fixedHandler struct {
	persona string
	reply   string
}

func (h fixedHandler) Respond(ctx context.Context, history []conversation.Message) (conversation.Message, error) {
	msg := conversation.NewMessage(conversation.RoleAssistant, h.reply)
	msg.Tags = map[string]string{"persona": h.persona}
	return msg, nil
}

type saveFailStore struct {
	store.Store
}

func (s saveFailStore) Save(ctx context.Context, state *conversation.State) error {
	return fmt.Errorf("disk full")
}

func newTestServer(t *testing.T, st store.Store) *Server {
	t.Helper()
	handlers := map[string]personas.Handler{}
	for _, p := range router.Registry {
		handlers[p.ID] = fixedHandler{persona: p.ID, reply: "你好呀，今天想聊点什么？"}
	}
	d, err := dispatch.New(st, fixedClassifier(`{"分发目标": "晚晴", "建议话术": "日常陪伴"}`), handlers, dispatch.Config{})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return NewServer("127.0.0.1", 0, d, st)
}

func TestHandleChat(t *testing.T) {
	srv := newTestServer(t, store.NewMemoryStore())

	body := `{"session_id": "Router:王奶奶", "message": "你好"}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.handleChat(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Reply == "" {
		t.Fatal("empty reply")
	}
	if resp.Persona != "wan_qing" || resp.PersonaCN != "晚晴" {
		t.Fatalf("persona fields = %q / %q", resp.Persona, resp.PersonaCN)
	}
	if resp.Rationale != "日常陪伴" {
		t.Fatalf("rationale = %q", resp.Rationale)
	}
	if resp.Warning != "" {
		t.Fatalf("unexpected warning: %q", resp.Warning)
	}
}

func TestHandleChat_Validation(t *testing.T) {
	srv := newTestServer(t, store.NewMemoryStore())

	tests := []struct {
		name string
		body string
	}{
		{"not json", "nope"},
		{"missing message", `{"session_id": "s1"}`},
		{"missing session", `{"message": "你好"}`},
		{"blank fields", `{"session_id": "  ", "message": " "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			srv.handleChat(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	rec := httptest.NewRecorder()
	srv.handleChat(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /api/chat status = %d, want 405", rec.Code)
	}
}

func TestHandleChat_SaveFailureStillReplies(t *testing.T) {
	srv := newTestServer(t, saveFailStore{store.NewMemoryStore()})

	body := `{"session_id": "s1", "message": "你好"}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.handleChat(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, the reply must still be delivered", rec.Code)
	}
	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Reply == "" {
		t.Fatal("empty reply")
	}
	if resp.Warning == "" {
		t.Fatal("expected a persistence warning")
	}
}

func TestHandleHistory(t *testing.T) {
	st := store.NewMemoryStore()
	srv := newTestServer(t, st)

	// Seed one turn through the dispatcher so history has the full shape.
	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"session_id": "s1", "message": "你好"}`))
	srv.handleChat(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/api/history?session_id=s1", nil)
	rec := httptest.NewRecorder()
	srv.handleHistory(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var entries []historyEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Role != "user" || entries[1].Role != "system_note" || entries[2].Role != "assistant" {
		t.Fatalf("unexpected roles: %#v", entries)
	}
}

func TestHandleHistory_UnknownSession(t *testing.T) {
	srv := newTestServer(t, store.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/api/history?session_id=nobody", nil)
	rec := httptest.NewRecorder()
	srv.handleHistory(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty array, got %s", rec.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, store.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body: %#v", body)
	}
}
