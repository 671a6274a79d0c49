package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"matchbook/internal/app"
	"matchbook/internal/config"

	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "Path to a TOML config file (defaults and MATCHBOOK_* env vars apply without one)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("unable to load config")
	}
	if err := app.SetupLogging(cfg, os.Stderr); err != nil {
		log.Fatal().Err(err).Msg("unable to set up logging")
	}

	// Setup the TCP server and the matching engine.
	srv, err := app.Create(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to create server")
	}

	// Block on running the server.
	if err := srv.Run(); err != nil {
		stop()
		os.Exit(1)
	}
}
