package checkin

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/peiban-ai/peiban/pkg/bus"
	"github.com/peiban-ai/peiban/pkg/config"
	"github.com/peiban-ai/peiban/pkg/logger"
	"github.com/peiban-ai/peiban/pkg/router"
)

// Greetings rotate by weekday so daily check-ins don't read identically.
var greetings = []string{
	"早上好呀，今天睡得好吗？",
	"今天天气怎么样？记得多喝水哦。",
	"想您啦，今天有什么安排吗？",
	"吃过饭了吗？今天胃口好不好？",
	"今天出门走动了吗？慢慢来，不着急。",
	"最近有没有和家里人通电话呀？",
	"今天心情怎么样？想聊聊吗？",
}

// Scheduler publishes a proactive companion greeting on a cron schedule.
// It only initiates contact; the reply, like any turn, flows back through
// the dispatcher when the user answers.
type Scheduler struct {
	cfg  config.CheckinConfig
	bus  *bus.MessageBus
	gron *gronx.Gronx
}

func New(cfg config.CheckinConfig, messageBus *bus.MessageBus) (*Scheduler, error) {
	gron := gronx.New()
	if !gron.IsValid(cfg.Cron) {
		return nil, fmt.Errorf("invalid check-in cron expression %q", cfg.Cron)
	}
	if cfg.Channel == "" || cfg.ChatID == "" {
		return nil, fmt.Errorf("check-in requires checkin.channel and checkin.chat_id")
	}
	return &Scheduler{cfg: cfg, bus: messageBus, gron: gron}, nil
}

// Run blocks until ctx is done, firing at most once per matching minute.
func (s *Scheduler) Run(ctx context.Context) {
	logger.InfoCF("checkin", "Check-in scheduler started", map[string]interface{}{
		"cron":    s.cfg.Cron,
		"channel": s.cfg.Channel,
	})

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.InfoC("checkin", "Check-in scheduler stopped")
			return
		case now := <-ticker.C:
			due, err := s.gron.IsDue(s.cfg.Cron, now)
			if err != nil {
				logger.WarnCF("checkin", "Cron evaluation failed", map[string]interface{}{"error": err.Error()})
				continue
			}
			if !due {
				continue
			}
			s.fire(now)
		}
	}
}

func (s *Scheduler) fire(now time.Time) {
	greeting := greetings[int(now.Weekday())%len(greetings)]
	s.bus.PublishOutbound(bus.OutboundMessage{
		Channel: s.cfg.Channel,
		ChatID:  s.cfg.ChatID,
		Content: greeting,
		Persona: router.DisplayName(router.DefaultTarget),
	})
	logger.InfoCF("checkin", "Check-in greeting sent", map[string]interface{}{
		"channel": s.cfg.Channel,
		"chat_id": s.cfg.ChatID,
	})
}
