package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"classattend/internal/app"
	"classattend/internal/config"
)

// Worker consumes queued check-in attempts, verifies faces and records verdicts.
func main() {
	cfg := config.Load()
	app.ConfigureLogging(cfg, "worker")

	if cfg.QueueBackend != "redis" || cfg.StoreBackend == "memory" {
		log.Fatal().Str("queue", cfg.QueueBackend).Str("store", cfg.StoreBackend).
			Msg("standalone worker needs a shared queue and store; the api runs an in-process worker otherwise")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	svc, err := app.New(startCtx, cfg)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Warn().Err(err).Msg("close backends")
		}
	}()

	if !cfg.FaceSkip {
		if err := svc.Face.Health(ctx); err != nil {
			log.Warn().Err(err).Msg("face service not available, attempts will be rejected as face_unavailable")
		} else {
			log.Info().Str("url", cfg.FaceServiceURL).Msg("face service connected")
		}
	}

	if err := svc.Worker().Run(ctx); err != nil {
		log.Error().Err(err).Msg("worker failed")
	}
}
