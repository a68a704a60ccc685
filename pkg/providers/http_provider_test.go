package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/peiban-ai/peiban/pkg/config"
)

func TestHTTPProvider_Chat(t *testing.T) {
	var gotAuth string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "你好呀"}, "finish_reason": "stop"}]}`))
	}))
	defer server.Close()

	p := NewHTTPProvider("sk-test", server.URL, "")
	resp, err := p.Chat(context.Background(), []Message{
		{Role: "system", Content: "你是晚晴"},
		{Role: "user", Content: "你好"},
	}, "doubao-pro-32k", map[string]interface{}{"temperature": 0.7, "max_tokens": 256})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if resp.Content != "你好呀" || resp.FinishReason != "stop" {
		t.Fatalf("unexpected response: %#v", resp)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotBody["model"] != "doubao-pro-32k" {
		t.Fatalf("model = %v", gotBody["model"])
	}
	if gotBody["temperature"] != 0.7 {
		t.Fatalf("temperature = %v", gotBody["temperature"])
	}
	if msgs, ok := gotBody["messages"].([]interface{}); !ok || len(msgs) != 2 {
		t.Fatalf("messages = %v", gotBody["messages"])
	}
}

func TestHTTPProvider_ChatErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "invalid api key"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	p := NewHTTPProvider("bad-key", server.URL, "")
	_, err := p.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, "", nil)
	if err == nil {
		t.Fatal("expected error for non-200 status")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Fatalf("error should carry the status code: %v", err)
	}
}

func TestParseResponse_NoChoices(t *testing.T) {
	resp, err := parseResponse([]byte(`{"choices": []}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if resp.Content != "" {
		t.Fatalf("expected empty content, got %q", resp.Content)
	}
}

func TestCreateProvider_RequiresAPIKey(t *testing.T) {
	cfg := config.DefaultConfig()
	if _, err := CreateProvider(cfg); err == nil {
		t.Fatal("expected error without an API key")
	}

	cfg.Provider.APIKey = "sk-test"
	p, err := CreateProvider(cfg)
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}
	if p.GetDefaultModel() == "" {
		t.Fatal("provider must report a default model")
	}
}
