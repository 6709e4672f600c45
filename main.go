// Command umbral-nfc is the NFC tag identity agent: it registers physical
// tags, recognizes them when tapped and serves tag events over WebSocket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nedpals/umbral-nfc/buildinfo"
	"github.com/nedpals/umbral-nfc/config"
	"github.com/nedpals/umbral-nfc/logging"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", buildinfo.Name, err)
		os.Exit(2)
	}
	if cfg.ShowVersion {
		fmt.Println(buildinfo.BuildInfo())
		return
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: invalid configuration:\n%v\n", buildinfo.Name, err)
		os.Exit(2)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", buildinfo.Name, err)
		os.Exit(2)
	}
	logger := logging.New(logging.Options{Level: level, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "starting "+buildinfo.DisplayName, "version", buildinfo.FullVersion())
	if err := NewAgent(cfg, logger).Run(ctx); err != nil {
		logger.Error(ctx, "agent failed", "error", err)
		os.Exit(1)
	}
}
