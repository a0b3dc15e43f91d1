package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/tfclaw/tfclaw/internal/gateway/bridge"
	"github.com/tfclaw/tfclaw/internal/gateway/chatplatform"
	"github.com/tfclaw/tfclaw/internal/gateway/config"
	"github.com/tfclaw/tfclaw/internal/gateway/router"
	"github.com/tfclaw/tfclaw/internal/logging"
)

func runGateway(args []string) error {
	fs := flag.NewFlagSet("gateway", flag.ExitOnError)
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

	logging.PrintBanner("gateway", version, cfg.RelayURL)

	platform, err := chatplatform.NewDiscord(cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("gateway: chat platform: %w", err)
	}

	relay := bridge.New(cfg.RelayURL, cfg.Token, cfg.EarlyBufferTTL(), slog.Default())

	r := router.New(platform, relay, slog.Default(),
		cfg.CommandResultTimeout(), cfg.ProgressRecallDelay(), cfg.InboundDedupWindow(), cfg.CaptureMenuTTL(),
		cfg.DefaultCaptureLines, cfg.DefaultWaitMS, streamModeTag(cfg.DefaultStreamMode), cfg.IsUserAllowed)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := platform.Run(gctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})
	g.Go(func() error { relay.ConnectWithReconnect(gctx); return nil })
	g.Go(func() error { r.Run(gctx); return nil })

	return g.Wait()
}

func streamModeTag(on bool) string {
	if on {
		return "on"
	}
	return "auto"
}
