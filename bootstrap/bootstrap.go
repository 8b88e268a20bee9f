package bootstrap

import (
	"unitfund-backend/internal/config"
	"unitfund-backend/internal/interfaces/router"
	"unitfund-backend/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// New creates the Fiber app for serverless hosting (the api handler imports this
// package, not internal). Scheduled jobs do not run here; the platform's cron calls
// POST /api/v1/valuation/poll instead.
func New() (*fiber.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Setup(cfg.LogLevel, cfg.Env)
	app, _, err := router.CreateApp(cfg)
	return app, err
}
