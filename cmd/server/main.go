package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fibredesk/backend/internal/config"
	"github.com/fibredesk/backend/internal/db"
	"github.com/fibredesk/backend/internal/geocode"
	httpapi "github.com/fibredesk/backend/internal/http"
	"github.com/fibredesk/backend/internal/notify"
	"github.com/fibredesk/backend/internal/planning"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "fibredesk-backend").Logger()

	ctx := context.Background()
	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect db")
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure schema")
	}

	var pusher notify.Pusher
	if cfg.PushGatewayURL == "" {
		pusher = notify.NoopPusher{}
		logger.Info().Msg("no push gateway configured")
	} else {
		pusher = &notify.HTTPPusher{BaseURL: cfg.PushGatewayURL}
	}

	engine := &planning.Engine{
		Store:  store,
		Logger: logger.With().Str("component", "planning").Logger(),
	}

	geocoder := &geocode.NominatimGeocoder{BaseURL: cfg.NominatimURL}

	sweeper := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))
	_, err = sweeper.AddFunc("@every "+cfg.SLASweepInterval.String(), func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), cfg.SLASweepInterval)
		defer cancel()

		marked, err := engine.CheckSLAViolations(sweepCtx)
		if err != nil {
			logger.Error().Err(err).Msg("sla sweep failed")
			return
		}
		if marked > 0 {
			logger.Warn().Int("marked", marked).Msg("sla violations detected")
			if err := pusher.Push(sweepCtx, notify.Event{Type: "sla_alert", Count: marked}); err != nil {
				logger.Error().Err(err).Msg("sla alert push failed")
			}
		}
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to schedule sla sweep")
	}
	sweeper.Start()
	defer sweeper.Stop()

	router := httpapi.Router(cfg, store, engine, geocoder, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}
