package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"GPTAssistant/internal/audit"
	"GPTAssistant/internal/backend"
	"GPTAssistant/internal/chat"
	"GPTAssistant/internal/config"
	"GPTAssistant/internal/telemetry"
	"GPTAssistant/internal/tui"
)

type options struct {
	configPath     string
	model          string
	revealInterval time.Duration
	plain          bool
	debug          bool
	noAudit        bool
}

// loadConfig resolves the configuration and rejects it before anything else
// starts if a request could not be built from it.
func loadConfig(cmd *cobra.Command, opts options) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return cfg, err
	}

	if opts.model != "" {
		cfg.Model = opts.model
	}
	if cmd.Flags().Changed("reveal-interval") {
		cfg.RevealInterval = opts.revealInterval
	}
	if opts.plain {
		cfg.Plain = true
	}
	if opts.debug {
		cfg.Debug = true
	}
	if opts.noAudit {
		cfg.AuditDB = ""
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func run(cmd *cobra.Command, opts options) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	logger, closeLog, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer closeLog()

	ctx := context.Background()
	tracer, meter, shutdown, err := telemetry.InitTelemetry(ctx, cfg.LogDir, version)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer shutdown()

	client, err := backend.NewClient(cfg, nil, logger, tracer, meter)
	if err != nil {
		return fmt.Errorf("failed to initialize client: %w", err)
	}

	sessOpts := []chat.Option{
		chat.WithLogger(logger),
		chat.WithTracer(tracer),
		chat.WithMeter(meter),
		chat.WithGreeting(cfg.Greeting),
	}

	var store *audit.Store
	if cfg.AuditDB != "" {
		store, err = audit.Open(cfg.AuditDB)
		if err != nil {
			logger.Warn("failed to open audit database, continuing without it", "path", cfg.AuditDB, "error", err)
		} else {
			defer store.Close()
			sessOpts = append(sessOpts, chat.WithRecorder(store))
		}
	}

	sess := chat.New(client, sessOpts...)
	logger.Info("starting", "version", version, "model", cfg.Model, "plain", cfg.Plain)

	if cfg.Plain {
		var turns chat.TurnLister
		if store != nil {
			turns = store
		}
		return chat.NewRunner(sess, cmd.InOrStdin(), cmd.OutOrStdout(), cfg.RevealInterval, logger, turns).Run(ctx)
	}

	return runTUI(sess, cfg, logger)
}

func runTUI(sess *chat.Session, cfg config.Config, logger *slog.Logger) error {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(76),
	)
	if err != nil {
		logger.Warn("markdown rendering disabled", "error", err)
	}

	m := tui.NewModel(sess, tui.Options{
		Title:    cfg.Title,
		Interval: cfg.RevealInterval,
		Renderer: renderer,
	})

	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("failed to run interface: %w", err)
	}
	return nil
}
