package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"classattend/internal/app"
	"classattend/internal/auth"
	"classattend/internal/cloudinary"
	"classattend/internal/config"
	"classattend/internal/handler"
	"classattend/internal/httpmiddleware"
)

func main() {
	cfg := config.Load()
	app.ConfigureLogging(cfg, "api")

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatal().Err(err).Msg("http server failed")
	}
}

func runHTTP(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	svc, err := app.New(startCtx, cfg)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Warn().Err(err).Msg("close backends")
		}
	}()

	// an in-memory queue cannot cross processes, so judge attempts here
	if cfg.QueueBackend == "memory" {
		go func() {
			if err := svc.Worker().Run(ctx); err != nil {
				log.Error().Err(err).Msg("in-process worker stopped")
			}
		}()
	}

	var uploader handler.Uploader
	if cfg.CloudinaryConfigured() {
		uploader = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Info().Str("cloud", cfg.CloudinaryCloudName).Msg("cloudinary configured")
	} else {
		log.Warn().Msg("cloudinary not configured, evidence upload disabled")
	}

	checks := []handler.HealthCheck{{Name: "store", Check: svc.Store.Ping}}
	if svc.Redis != nil {
		checks = append(checks, handler.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return svc.Redis.Client.Ping(ctx).Err()
		}})
	}

	var checkinLimiter *httpmiddleware.Limiter
	if cfg.CheckinRateLimitPerMin > 0 {
		checkinLimiter = httpmiddleware.NewLimiter(0, cfg.CheckinRateLimitPerMin, svc.Clock)
	}

	h := handler.New(handler.Deps{
		Sessions:       svc.Sessions,
		Ledger:         svc.Ledger,
		Requests:       svc.Requests,
		Analytics:      svc.Analytics,
		Queue:          svc.Queue,
		Results:        svc.Results,
		Uploader:       uploader,
		Clock:          svc.Clock,
		Location:       cfg.Timezone,
		Health:         checks,
		RequireFace:    !cfg.FaceSkip,
		CheckinLimiter: checkinLimiter,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLog("/healthz", "/metrics"))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:   []string{"X-Request-ID"},
		MaxAge:          24 * time.Hour,
	}))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.NewLimiter(cfg.RateLimitPerMin, cfg.RateLimitPerMin, svc.Clock).Middleware(httpmiddleware.ClientIP))
	r.Use(httpmiddleware.Timeout(cfg.RequestTimeout))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	h.Register(r, auth.Authenticate(cfg.JWTSigningKey, cfg.JWTIssuer))

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down server")

	// give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server forced shutdown")
	}
	log.Info().Msg("server exited")
	return nil
}
