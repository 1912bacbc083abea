package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCLIApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		zerolog.New(os.Stderr).Error().Err(err).Msg("kitchen failed")
		os.Exit(1)
	}
}
