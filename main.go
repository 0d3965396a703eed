package main

import (
	"log"

	"github.com/joho/godotenv"

	"rnadash/app"
	"rnadash/internal"
	"rnadash/internal/api"
	"rnadash/internal/config"
	"rnadash/internal/engine"
	"rnadash/internal/ops"
	"rnadash/internal/session"
	"rnadash/internal/views"
	"rnadash/ui"
)

func main() {
	// Load .env file if present (development convenience)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found, using system environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	logger := internal.NewDefaultLogger()

	store := session.NewStore()
	eng := engine.New()
	hub := api.NewProgressHub()
	analysis := app.NewAnalysisService(eng, store, hub, logger)
	viewSvc := views.New(store, eng)

	server, err := ui.NewServer(cfg, analysis, viewSvc, hub, logger)
	if err != nil {
		log.Fatalf("Server setup failed: %v", err)
	}

	if cfg.Profiling.Enabled {
		sidecar := ops.NewServer(store, logger)
		go func() {
			if err := sidecar.Run(cfg.Profiling.Port); err != nil {
				logger.Error("[Ops] Sidecar stopped: %v", err)
			}
		}()
	}

	if err := server.Run(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
