package main

import (
	"fmt"
	"os"

	"github.com/pricedash/pricedash/internal/config"
	"github.com/pricedash/pricedash/internal/dashboard"
	"github.com/pricedash/pricedash/internal/logger"
)

var version = "dev" // Will be set during build with -ldflags

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.GetLogger()

	srv, err := dashboard.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create dashboard")
	}

	log.Info().
		Str("version", version).
		Str("api", cfg.API.BaseURL).
		Msg("Starting pricedash dashboard...")

	// Blocks until SIGINT/SIGTERM
	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("Dashboard failed to start")
	}
}
