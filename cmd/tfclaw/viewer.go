package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tfclaw/tfclaw/internal/viewer"
)

func runViewer(args []string) error {
	fs := flag.NewFlagSet("viewer", flag.ExitOnError)
	relayURL := fs.String("relay-url", "ws://127.0.0.1:8787/ws", "relay websocket URL")
	token := fs.String("token", "", "session token")
	showVersion := fs.Bool("version", false, "print version and exit")
	_ = fs.Parse(args)

	if *showVersion {
		fmt.Println(version)
		return nil
	}
	if *token == "" {
		return fmt.Errorf("viewer: -token is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	v := viewer.New(*relayURL, *token, os.Stdout, nil)
	return v.Run(ctx)
}
