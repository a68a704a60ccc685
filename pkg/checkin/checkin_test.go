package checkin

import (
	"context"
	"testing"
	"time"

	"github.com/peiban-ai/peiban/pkg/bus"
	"github.com/peiban-ai/peiban/pkg/config"
	"github.com/peiban-ai/peiban/pkg/router"
)

func TestNew_ValidatesConfig(t *testing.T) {
	mb := bus.NewMessageBus()
	defer mb.Close()

	tests := []struct {
		name    string
		cfg     config.CheckinConfig
		wantErr bool
	}{
		{"valid", config.CheckinConfig{Cron: "0 9 * * *", Channel: "discord", ChatID: "123"}, false},
		{"bad cron", config.CheckinConfig{Cron: "not a cron", Channel: "discord", ChatID: "123"}, true},
		{"missing channel", config.CheckinConfig{Cron: "0 9 * * *", ChatID: "123"}, true},
		{"missing chat id", config.CheckinConfig{Cron: "0 9 * * *", Channel: "discord"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, mb)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestScheduler_FirePublishesGreeting(t *testing.T) {
	mb := bus.NewMessageBus()
	defer mb.Close()

	s, err := New(config.CheckinConfig{Cron: "0 9 * * *", Channel: "discord", ChatID: "chat-1"}, mb)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	s.fire(time.Date(2026, 3, 2, 9, 0, 0, 0, time.Local))

	msg, ok := mb.SubscribeOutbound(context.Background())
	if !ok {
		t.Fatal("expected an outbound greeting")
	}
	if msg.Channel != "discord" || msg.ChatID != "chat-1" {
		t.Fatalf("greeting addressed wrong: %#v", msg)
	}
	if msg.Content == "" {
		t.Fatal("greeting content empty")
	}
	if msg.Persona != router.DisplayName(router.DefaultTarget) {
		t.Fatalf("greeting persona = %q", msg.Persona)
	}
}

func TestScheduler_GreetingsRotateByWeekday(t *testing.T) {
	seen := map[string]bool{}
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.Local)
	for day := 0; day < 7; day++ {
		now := base.AddDate(0, 0, day)
		seen[greetings[int(now.Weekday())%len(greetings)]] = true
	}
	if len(seen) != len(greetings) {
		t.Fatalf("expected %d distinct greetings over a week, got %d", len(greetings), len(seen))
	}
}
