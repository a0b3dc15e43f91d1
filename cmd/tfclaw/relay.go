package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/tfclaw/tfclaw/internal/logging"
	"github.com/tfclaw/tfclaw/internal/relay/config"
	"github.com/tfclaw/tfclaw/internal/relay/server"
)

func runRelay(args []string) error {
	fs := flag.NewFlagSet("relay", flag.ExitOnError)
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
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.PrintBanner("relay", version, cfg.Addr())
	logging.PrintAccessURL(cfg.Addr())

	srv := server.New(cfg, slog.Default())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Serve(ctx)
}
