package main

import (
	"context"
	"errors"
	"time"

	"github.com/peiban-ai/peiban/pkg/bus"
	"github.com/peiban-ai/peiban/pkg/config"
	"github.com/peiban-ai/peiban/pkg/dispatch"
	"github.com/peiban-ai/peiban/pkg/logger"
	"github.com/peiban-ai/peiban/pkg/personas"
	"github.com/peiban-ai/peiban/pkg/providers"
	"github.com/peiban-ai/peiban/pkg/router"
	"github.com/peiban-ai/peiban/pkg/store"
)

// engine bundles the wired turn pipeline for the CLI and the gateway.
type engine struct {
	dispatcher *dispatch.Dispatcher
	store      store.Store
}

func newEngine(cfg *config.Config, dryRun bool) (*engine, error) {
	var provider providers.LLMProvider
	if dryRun {
		provider = scriptedMock()
	} else {
		p, err := providers.CreateProvider(cfg)
		if err != nil {
			return nil, err
		}
		provider = p
	}

	var st store.Store
	if dryRun {
		st = store.NewMemoryStore()
	} else {
		s, err := store.NewSQLiteStore(cfg.StorePath())
		if err != nil {
			return nil, err
		}
		st = s
	}

	opts := personas.Options{
		Model:       cfg.Agent.Model,
		Temperature: cfg.Agent.Temperature,
		MaxTokens:   cfg.Agent.MaxTokens,
	}

	dispatcher, err := dispatch.New(
		st,
		personas.NewClassifier(provider, opts),
		personas.BuildHandlers(provider, opts),
		dispatch.Config{
			HistoryWindow:     cfg.Agent.HistoryWindow,
			DefaultPersona:    cfg.Agent.DefaultPersona,
			ClassifierTimeout: time.Duration(cfg.Agent.ClassifierTimeoutSecs) * time.Second,
			HandlerTimeout:    time.Duration(cfg.Agent.HandlerTimeoutSecs) * time.Second,
		},
	)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &engine{dispatcher: dispatcher, store: st}, nil
}

func (e *engine) Close() {
	_ = e.store.Close()
}

// scriptedMock keeps `chat --dry-run` usable without credentials: it
// alternates routing decisions and canned persona replies.
func scriptedMock() providers.LLMProvider {
	return providers.NewMockProvider(
		`{"分发目标": "晚晴", "建议话术": "日常问候"}`,
		"您好呀，很高兴见到您。今天过得怎么样？",
		`{"分发目标": "晚晴", "建议话术": "继续陪伴"}`,
		"嗯嗯，我在听呢，您慢慢说。",
		`{"分发目标": "心镜", "建议话术": "情绪低落，需要倾听"}`,
		"听起来您心里有些不好受。愿意多说一点吗？",
		`{"分发目标": "行者", "建议话术": "活动话题"}`,
		"今天天气不错，要不要出去走一小圈？十分钟就好。",
	)
}

// runBusLoop consumes inbound channel messages, runs each as a turn, and
// publishes the persona reply. Errors become a short apology so the user is
// never silently dropped.
func runBusLoop(ctx context.Context, msgBus *bus.MessageBus, e *engine) {
	for {
		msg, ok := msgBus.ConsumeInbound(ctx)
		if !ok {
			return
		}

		result, err := e.dispatcher.Turn(ctx, msg.SessionID, msg.Content)
		if err != nil && result == nil {
			logger.ErrorCF("engine", "Turn failed", map[string]interface{}{
				"session": msg.SessionID,
				"error":   err.Error(),
			})
			msgBus.PublishOutbound(bus.OutboundMessage{
				Channel: msg.Channel,
				ChatID:  msg.ChatID,
				Content: "哎呀，我这边出了点小问题，您再说一遍好吗？",
			})
			continue
		}
		if err != nil {
			// Reply computed but persistence is behind; deliver anyway.
			logger.WarnCF("engine", "Turn reply delivered without persistence", map[string]interface{}{
				"session": msg.SessionID,
				"error":   err.Error(),
			})
		}

		msgBus.PublishOutbound(bus.OutboundMessage{
			Channel: msg.Channel,
			ChatID:  msg.ChatID,
			Content: result.Reply.Content,
			Persona: router.DisplayName(result.Decision.Target),
		})
	}
}

// describeTurnError maps the dispatch taxonomy to a short operator-facing
// explanation for the REPL.
func describeTurnError(err error) string {
	switch {
	case errors.Is(err, dispatch.ErrClassifierInvocation):
		return "路由分类调用失败（模型不可达或超时），这一轮未完成，可直接重发。"
	case errors.Is(err, dispatch.ErrHandlerInvocation):
		return "角色回复调用失败（模型不可达或超时），这一轮未完成，可直接重发。"
	case errors.Is(err, dispatch.ErrStoreLoad):
		return "会话记录读取失败。"
	case errors.Is(err, dispatch.ErrStoreSave):
		return "回复已生成但没有保存成功，下一轮对话可能缺少这条记录。"
	default:
		return err.Error()
	}
}
