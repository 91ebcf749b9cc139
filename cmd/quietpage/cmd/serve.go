package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quietpage/quietpage/internal/index"
	"github.com/quietpage/quietpage/internal/logging"
	"github.com/quietpage/quietpage/internal/scanner"
	"github.com/quietpage/quietpage/internal/watcher"
	"github.com/quietpage/quietpage/internal/web"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the website server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

// runServe wires the whole system together and blocks until shutdown.
func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logCfg := logging.DefaultConfig(cfg.LogsPath())
	logCfg.Level = cfg.LogLevel
	cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer cleanup()

	if err := os.MkdirAll(cfg.PagesPath(), 0o755); err != nil {
		return fmt.Errorf("create pages directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	roles, err := index.Open(cfg.SearchPath())
	if err != nil {
		return fmt.Errorf("open search index: %w", err)
	}
	defer func() {
		if err := roles.Close(); err != nil {
			slog.Warn("closing search index", slog.String("error", err.Error()))
		}
	}()

	source := scanner.New(cfg.PagesPath(), scanner.Options{})
	orch := index.NewOrchestrator(roles, source, cfg.ReindexInterval.Std())

	// Fresh data dir bootstrap: an empty active slot would serve
	// nothing until the first periodic cycle, so populate it once.
	// An existing index is served as-is (no reindex on startup).
	if count, err := roles.Count(index.RoleActive); err == nil && count == 0 {
		slog.Info("active slot empty, running initial index build")
		if err := orch.Reindex(ctx); err != nil {
			slog.Error("initial index build failed", slog.String("error", err.Error()))
		}
	}

	fsw, err := watcher.New(watcher.DefaultDebounceWindow)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	go func() {
		if err := fsw.Start(ctx, cfg.PagesPath()); err != nil && ctx.Err() == nil {
			slog.Error("watcher stopped", slog.String("error", err.Error()))
		}
	}()
	go forwardTriggers(ctx, fsw.Triggers(), orch.Trigger)
	go orch.Run(ctx)

	server, err := web.New(cfg, index.NewSearcher(roles, cfg.SearchLimit))
	if err != nil {
		return err
	}
	return server.Start(ctx)
}

// forwardTriggers relays watcher triggers to the orchestrator until the
// context is cancelled. The trigger channel is never closed, so the
// context is the only exit.
func forwardTriggers(ctx context.Context, triggers <-chan struct{}, trigger func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-triggers:
			trigger()
		}
	}
}
