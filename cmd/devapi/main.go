package main

import (
	"fmt"
	"os"

	"github.com/pricedash/pricedash/internal/config"
	"github.com/pricedash/pricedash/internal/devapi"
	"github.com/pricedash/pricedash/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.GetLogger()

	srv, err := devapi.New(cfg.DevAPI, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create development API")
	}

	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("Development API failed")
	}
}
