package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/peiban-ai/peiban/pkg/channels"
	"github.com/peiban-ai/peiban/pkg/checkin"
	"github.com/peiban-ai/peiban/pkg/config"
	"github.com/peiban-ai/peiban/pkg/gateway"
	"github.com/peiban-ai/peiban/pkg/logger"
	"github.com/peiban-ai/peiban/pkg/store"

	pbus "github.com/peiban-ai/peiban/pkg/bus"
)

func executeCLI() error {
	return buildRootCommand().Execute()
}

func buildRootCommand() *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:   "peiban",
		Short: "Companion chat agent that routes every turn to one of three personas",
		Long: strings.TrimSpace(`peiban is a companion chat agent for elderly users.

Every turn is classified and routed to one of three fixed personas
(晚晴 daily companion, 心镜 emotional support, 行者 activity coach),
with per-user conversation state persisted across restarts.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion()
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")

	root.AddCommand(newOnboardCommand())
	root.AddCommand(newChatCommand())
	root.AddCommand(newGatewayCommand())
	root.AddCommand(newStatusCommand())
	root.AddCommand(newVersionCommand())

	return root
}

func newOnboardCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "onboard",
		Short:   "Initialize ~/.peiban config",
		Example: "  peiban onboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultConfigPath()
			if _, err := os.Stat(path); err == nil {
				fmt.Printf("Config already exists at %s\n", path)
				return nil
			}
			if err := config.SaveConfig(path, config.DefaultConfig()); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Printf("Wrote default config to %s\n", path)
			fmt.Println("Set provider.api_key (or PEIBAN_PROVIDER_API_KEY), then run: peiban chat")
			return nil
		},
	}
}

func newChatCommand() *cobra.Command {
	var (
		name        string
		session     string
		message     string
		dryRun      bool
		debug       bool
		showRouting bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the companion in the terminal",
		Long:  "Run an interactive companion session, or send a one-shot message with --message.",
		Example: strings.Join([]string{
			"  peiban chat --name 王奶奶",
			"  peiban chat --session Router:王奶奶 --message 你好",
			"  peiban chat --dry-run",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Init(debug)
			defer logger.Sync()

			cfg, err := config.LoadConfig(config.DefaultConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			eng, err := newEngine(cfg, dryRun)
			if err != nil {
				return err
			}
			defer eng.Close()

			sessionID := strings.TrimSpace(session)
			if sessionID == "" {
				sessionID = sessionForName(name)
			}

			if strings.TrimSpace(message) != "" {
				return runOneShot(cmd.Context(), eng, sessionID, message, showRouting)
			}
			return runREPL(cmd.Context(), eng, sessionID, showRouting)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "User name for the long-term memory session (prompted if empty)")
	cmd.Flags().StringVar(&session, "session", "", "Explicit session id (overrides --name)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Send one message and exit")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Use scripted replies and in-memory state (no credentials needed)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&showRouting, "show-routing", false, "Print the routing decision with each reply")

	return cmd
}

func newGatewayCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Run the HTTP gateway (and Discord channel when configured)",
		Example: strings.Join([]string{
			"  peiban gateway",
			"  curl -X POST localhost:18920/api/chat -d '{\"session_id\":\"Router:王奶奶\",\"message\":\"你好\"}'",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Init(debug)
			defer logger.Sync()
			return runGateway(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	return cmd
}

func runGateway(parent context.Context) error {
	cfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	eng, err := newEngine(cfg, false)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	msgBus := pbus.NewMessageBus()
	defer msgBus.Close()

	manager, err := channels.NewManager(cfg, msgBus)
	if err != nil {
		return err
	}
	if manager.HasChannels() {
		if err := manager.StartAll(ctx); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = manager.StopAll(stopCtx)
		}()
		go runBusLoop(ctx, msgBus, eng)
	}

	if cfg.Checkin.Enabled {
		scheduler, err := checkin.New(cfg.Checkin, msgBus)
		if err != nil {
			return err
		}
		go scheduler.Run(ctx)
	}

	server := gateway.NewServer(cfg.Gateway.Host, cfg.Gateway.Port, eng.dispatcher, eng.store)
	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show config and session store status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(config.DefaultConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			fmt.Printf("Config:   %s\n", config.DefaultConfigPath())
			fmt.Printf("Model:    %s\n", cfg.Agent.Model)
			fmt.Printf("Store:    %s\n", cfg.StorePath())
			if cfg.GetAPIKey() == "" {
				fmt.Println("Provider: not configured (set provider.api_key)")
			} else {
				fmt.Printf("Provider: configured (%s)\n", cfg.GetAPIBase())
			}

			st, err := store.NewSQLiteStore(cfg.StorePath())
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			sessions, err := st.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Sessions: %d\n", len(sessions))
			for _, id := range sessions {
				fmt.Printf("  - %s\n", id)
			}
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			printVersion()
		},
	}
}
