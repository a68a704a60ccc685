package channels

import (
	"context"
	"strings"
	"testing"

	"github.com/peiban-ai/peiban/pkg/bus"
)

func TestBaseChannel_IsAllowed(t *testing.T) {
	tests := []struct {
		name      string
		allowList []string
		senderID  string
		want      bool
	}{
		{"empty list allows everyone", nil, "123|alice", true},
		{"id match", []string{"123"}, "123|alice", true},
		{"username match", []string{"alice"}, "123|alice", true},
		{"at-prefixed username", []string{"@alice"}, "123|alice", true},
		{"full compound match", []string{"123|alice"}, "123|alice", true},
		{"no match", []string{"456", "bob"}, "123|alice", false},
		{"plain sender id", []string{"789"}, "789", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewBaseChannel("discord", bus.NewMessageBus(), tt.allowList)
			if got := c.IsAllowed(tt.senderID); got != tt.want {
				t.Fatalf("IsAllowed(%q) = %v, want %v", tt.senderID, got, tt.want)
			}
		})
	}
}

func TestBaseChannel_HandleMessageSessionID(t *testing.T) {
	mb := bus.NewMessageBus()
	defer mb.Close()

	c := NewBaseChannel("discord", mb, nil)
	c.HandleMessage("123|alice", "chat-9", "你好")

	msg, ok := mb.ConsumeInbound(context.Background())
	if !ok {
		t.Fatal("expected an inbound message")
	}
	if msg.SessionID != "discord:chat-9" {
		t.Fatalf("session id = %q, want %q", msg.SessionID, "discord:chat-9")
	}
	if msg.Channel != "discord" || msg.Content != "你好" {
		t.Fatalf("unexpected message: %#v", msg)
	}
}

func TestBaseChannel_HandleMessageBlocksDisallowedSender(t *testing.T) {
	mb := bus.NewMessageBus()
	defer mb.Close()

	c := NewBaseChannel("discord", mb, []string{"someone-else"})
	c.HandleMessage("123|alice", "chat-9", "你好")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := mb.ConsumeInbound(ctx); ok {
		t.Fatal("disallowed sender must not publish")
	}
}

func TestSplitMessage(t *testing.T) {
	if got := splitMessage("short", 1800); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short message must pass through unchanged, got %#v", got)
	}

	long := strings.Repeat("一句话。", 1000)
	chunks := splitMessage(long, 1800)
	if len(chunks) < 2 {
		t.Fatalf("expected long message to split, got %d chunk(s)", len(chunks))
	}
	for i, chunk := range chunks {
		if n := len([]rune(chunk)); n > 1800 {
			t.Fatalf("chunk %d has %d runes, over the limit", i, n)
		}
	}

	// All content survives chunking apart from trimmed break whitespace.
	joined := strings.Join(chunks, "")
	if strings.ReplaceAll(joined, " ", "") != strings.ReplaceAll(long, " ", "") {
		t.Fatal("chunking lost content")
	}
}

func TestSplitMessage_PrefersNewlineBreak(t *testing.T) {
	content := strings.Repeat("a", 90) + "\n" + strings.Repeat("b", 90)
	chunks := splitMessage(content, 100)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if strings.ContainsRune(chunks[0], 'b') {
		t.Fatalf("break did not land on the newline: %q", chunks[0])
	}
}
