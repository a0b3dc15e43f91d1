package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/tfclaw/tfclaw/internal/logging"
)

var version = "dev"

func main() {
	logging.Setup()

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: tfclaw [relay|agent|gateway|viewer|version] [flags]\n")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "relay":
		if err := runRelay(os.Args[2:]); err != nil {
			slog.Error("fatal", "error", err)
			os.Exit(1)
		}
	case "agent":
		if err := runAgent(os.Args[2:]); err != nil {
			slog.Error("fatal", "error", err)
			os.Exit(1)
		}
	case "gateway":
		if err := runGateway(os.Args[2:]); err != nil {
			slog.Error("fatal", "error", err)
			os.Exit(1)
		}
	case "viewer":
		if err := runViewer(os.Args[2:]); err != nil {
			slog.Error("fatal", "error", err)
			os.Exit(1)
		}
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "usage: tfclaw [relay|agent|gateway|viewer|version] [flags]\n")
		os.Exit(1)
	}
}
