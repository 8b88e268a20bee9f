package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"unitfund-backend/internal/config"
	"unitfund-backend/internal/interfaces/router"
	"unitfund-backend/internal/pkg/logger"
	"unitfund-backend/internal/scheduler"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load")
	}
	logger.Setup(cfg.LogLevel, cfg.Env)

	app, svc, err := router.CreateApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("app create")
	}

	// Verify connections before serving
	sqlDB, err := svc.DB.DB()
	if err != nil {
		log.Fatal().Err(err).Msg("database handle")
	}
	if err := sqlDB.Ping(); err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	log.Info().Msg("database connected")
	if svc.Rdb != nil {
		if err := svc.Rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		log.Info().Msg("redis connected")
	} else {
		log.Warn().Msg("REDIS_URL not set; locks, fences and caches are process-local")
	}

	sched, err := scheduler.New(svc.Pipeline, svc.Quotes, scheduler.Config{
		ValuationSpec: cfg.ValuationCron,
		QuoteSpec:     cfg.QuoteExpiryCron,
		PollRetries:   cfg.PollRetries,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler")
	}
	sched.Start()

	go func() {
		log.Info().Str("port", cfg.Port).Msg("server running")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sched.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("scheduled jobs cancelled before finishing")
	}
	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if svc.Rdb != nil {
		_ = svc.Rdb.Close()
	}
	_ = sqlDB.Close()
	log.Info().Msg("server exited")
}
