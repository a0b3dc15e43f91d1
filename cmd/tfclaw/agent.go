package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/tfclaw/tfclaw/internal/agent/capture"
	"github.com/tfclaw/tfclaw/internal/agent/config"
	"github.com/tfclaw/tfclaw/internal/agent/relayclient"
	"github.com/tfclaw/tfclaw/internal/agent/tmuxdriver"
	"github.com/tfclaw/tfclaw/internal/logging"
)

func runAgent(args []string) error {
	fs := flag.NewFlagSet("agent", flag.ExitOnError)
	showVersion := fs.Bool("version", false, "print version and exit")
	_ = fs.Parse(args)

	if *showVersion {
		fmt.Println(version)
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.PrintBanner("agent", version, cfg.RelayURL)

	mgr := tmuxdriver.NewManager(
		tmuxdriver.ExecRunner(cfg.TmuxBinary),
		cfg.TmuxSessionName,
		cfg.TmuxBaseArgs,
		cfg.TmuxCaptureLines,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := mgr.EnsureSession(ctx, cfg.TmuxBootstrapWindowName); err != nil {
		return fmt.Errorf("agent: ensure tmux session: %w", err)
	}
	defer func() { _ = mgr.Shutdown(context.Background(), cfg.TmuxPersistSessionOnShutdown) }()

	for _, title := range cfg.StartTerminals {
		tid := strings.TrimSpace(title)
		if tid == "" {
			continue
		}
		if err := mgr.CreateTerminal(ctx, tid, tid, cfg.DefaultCwd); err != nil {
			slog.Warn("agent: failed to start configured terminal", "title", tid, "error", err)
		}
	}

	client := relayclient.New(cfg, mgr, capture.Unsupported{}, slog.Default())
	client.ConnectWithReconnect(ctx)
	return nil
}
