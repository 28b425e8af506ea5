package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gestalt-social/gestalt/internal/config"
	"github.com/gestalt-social/gestalt/internal/logger"
	"go.uber.org/zap"
)

// These variables are set at build time via -ldflags
var (
	version = "dev"     // Set via -X main.version=...
	commit  = "unknown" // Set via -X main.commit=...
	date    = "unknown" // Set via -X main.date=...
)

func main() {
	config.SetVersion(version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		sig := <-signals
		logger.Info("Received termination signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	Execute(ctx)
}
