package router

import (
	"errors"
	"net/http"
	"time"

	"unitfund-backend/internal/application/allocation"
	healthsvc "unitfund-backend/internal/application/health"
	"unitfund-backend/internal/application/history"
	"unitfund-backend/internal/application/holdings"
	"unitfund-backend/internal/application/intake"
	invsvc "unitfund-backend/internal/application/investors"
	"unitfund-backend/internal/application/nav"
	"unitfund-backend/internal/application/notifications"
	quotesvc "unitfund-backend/internal/application/quotes"
	"unitfund-backend/internal/application/revaluation"
	"unitfund-backend/internal/application/snapshots"
	"unitfund-backend/internal/application/valuations"
	"unitfund-backend/internal/config"
	"unitfund-backend/internal/infrastructure/cache"
	"unitfund-backend/internal/infrastructure/database"
	"unitfund-backend/internal/infrastructure/feed"
	"unitfund-backend/internal/infrastructure/lock"
	accounthandler "unitfund-backend/internal/interfaces/handlers/accounts"
	healthhandler "unitfund-backend/internal/interfaces/handlers/health"
	invhandler "unitfund-backend/internal/interfaces/handlers/investors"
	quotehandler "unitfund-backend/internal/interfaces/handlers/quotes"
	valhandler "unitfund-backend/internal/interfaces/handlers/valuation"
	hookhandler "unitfund-backend/internal/interfaces/handlers/webhooks"
	"unitfund-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	resultCacheTTL   = 24 * time.Hour
	snapshotCacheTTL = time.Hour
	generationKey    = "revaluation:generation"
	stripeStatusURL  = "https://api.stripe.com/healthcheck"
)

// Services are the wired components the entry points drive outside HTTP.
type Services struct {
	DB       *gorm.DB
	Rdb      *redis.Client
	Pipeline *nav.Pipeline
	Quotes   *quotesvc.Service
}

// CreateApp opens the stores, wires every component and registers the routes.
func CreateApp(cfg *config.Config) (*fiber.App, *Services, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, errors.New("database url is not configured")
	}
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, nil, err
	}
	rdb, err := cache.Connect(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}

	var (
		locker allocation.Locker = &lock.Local{}
		fence  revaluation.Fence = &lock.LocalFence{}
	)
	if rdb != nil {
		locker = &lock.Redis{Rdb: rdb, TTL: cfg.LockTTL}
		fence = &lock.RedisFence{Rdb: rdb, Key: generationKey}
	}

	valuationStore := &valuations.Store{DB: db}
	holdingSvc := &holdings.Service{DB: db}
	snapshotSvc := &snapshots.Service{
		DB:         db,
		Holdings:   holdingSvc,
		Valuations: valuationStore,
		Cache:      &cache.Snapshots{Rdb: rdb, TTL: snapshotCacheTTL},
	}
	investorSvc := &invsvc.Service{DB: db}

	quoteSvc := &quotesvc.Service{DB: db, Snapshots: snapshotSvc, TTL: cfg.QuoteTTL}
	if cfg.StripeSecretKey != "" {
		quoteSvc.Stripe = &quotesvc.StripeCreator{SecretKey: cfg.StripeSecretKey}
	}

	var rails []intake.Rail
	if cfg.StripeWebhookSecret != "" {
		rails = append(rails, intake.StripeRail{WebhookSecret: cfg.StripeWebhookSecret})
	}
	if cfg.NowPaymentsSecret != "" {
		rails = append(rails, intake.NowPaymentsRail{IPNSecret: cfg.NowPaymentsSecret})
	}
	if cfg.InternalSecret != "" {
		rails = append(rails, intake.InternalRail{Secret: cfg.InternalSecret})
	}
	intakeSvc := &intake.Service{
		Rails:        rails,
		Quotes:       quoteSvc,
		Rates:        cfg.FXRates,
		TolerancePct: cfg.AmountTolerancePct,
	}

	sinks := []allocation.Sink{allocation.AuditSink{}}
	if cfg.SendinblueAPIKey != "" {
		sinks = append(sinks, &notifications.Notifier{
			DB:    db,
			Brevo: &notifications.BrevoClient{APIKey: cfg.SendinblueAPIKey, MailFrom: cfg.MailFrom},
		})
	}
	processor := &allocation.Processor{
		DB:            db,
		Valuations:    valuationStore,
		Holdings:      holdingSvc,
		Snapshots:     snapshotSvc,
		Locker:        locker,
		KYC:           investorSvc,
		Results:       &cache.Results{Rdb: rdb, TTL: resultCacheTTL},
		Sinks:         sinks,
		MinDeposit:    cfg.MinDeposit,
		MinRedemption: cfg.MinRedemptionUSD,
		MaxAttempts:   cfg.AllocationMaxAttempts,
	}

	engine := &nav.Engine{
		Valuations:  valuationStore,
		Holdings:    holdingSvc,
		FeedTimeout: cfg.FeedTimeout,
		MaxAttempts: cfg.AllocationMaxAttempts,
	}
	if cfg.FeedURL != "" {
		engine.Feed = &feed.Client{URL: cfg.FeedURL, APIKey: cfg.FeedAPIKey, Client: &http.Client{Timeout: cfg.FeedTimeout}}
	}
	pipeline := &nav.Pipeline{
		Engine: engine,
		Revaluer: &revaluation.Broadcaster{
			DB:          db,
			Holdings:    holdingSvc,
			Snapshots:   snapshotSvc,
			Fence:       fence,
			Workers:     cfg.RevaluationWorkers,
			MaxAttempts: cfg.AllocationMaxAttempts,
		},
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	var targets []healthsvc.Target
	if cfg.FeedURL != "" {
		targets = append(targets, healthsvc.Target{Name: "equity_feed", URL: cfg.FeedURL})
	}
	if cfg.StripeSecretKey != "" {
		targets = append(targets, healthsvc.Target{Name: "stripe", URL: stripeStatusURL})
	}
	checker := healthsvc.NewChecker(rdb, sqlDB, targets...)

	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler(rdb),
		EnableTrustedProxyCheck: true,
	})
	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))
	app.Use(middleware.HealthMarker(rdb))
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	hh := &healthhandler.Handlers{Checker: checker, HealthAdminKey: cfg.HealthAdminKey}
	app.Get("/", hh.Dashboard)
	app.Get("/reset", hh.Reset)
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", hh.Errors)

	// Provider callbacks and the feed push authenticate by signature, not API key.
	wh := &hookhandler.Handlers{Intake: intakeSvc, Allocator: processor}
	app.Post("/api/v1/webhooks/:provider", wh.Receive)

	vh := &valhandler.Handlers{Pipeline: pipeline, Valuations: valuationStore, SigningSecret: cfg.FeedSigningSecret}
	// registered ahead of the guarded valuation group so the push never reaches the key check
	app.Post("/api/v1/valuation/ticks", vh.Push)

	requireKey := middleware.RequireAPIKey(cfg.InternalAPIKey)

	vg := app.Group("/api/v1/valuation", requireKey)
	vg.Post("/poll", vh.Poll)
	vg.Post("/revalue", vh.Revalue)
	vg.Get("/latest", vh.Latest)
	vg.Get("/records", vh.Records)
	vg.Get("/records/:date", vh.Record)

	ah := &accounthandler.Handlers{Snapshots: snapshotSvc, Holdings: holdingSvc, History: &history.Service{DB: db}}
	ag := app.Group("/api/v1/accounts", requireKey)
	ag.Get("/:investor_id/snapshot", ah.Snapshot)
	ag.Get("/:investor_id/history", ah.GetHistory)
	ag.Get("/:investor_id/holdings", ah.GetHoldings)
	ag.Post("/:investor_id/rebuild", ah.Rebuild)

	ih := &invhandler.Handlers{Service: investorSvc}
	ig := app.Group("/api/v1/investors", requireKey)
	ig.Post("/", ih.Create)
	ig.Get("/:investor_id", ih.Get)
	ig.Put("/:investor_id/kyc", ih.SetKYC)

	qh := &quotehandler.Handlers{Service: quoteSvc}
	qg := app.Group("/api/v1/quotes", requireKey)
	qg.Post("/", qh.Create)

	return app, &Services{DB: db, Rdb: rdb, Pipeline: pipeline, Quotes: quoteSvc}, nil
}

// Handler adapts the Fiber app to net/http for serverless platforms.
func Handler(app *fiber.App) http.Handler {
	return adaptor.FiberApp(app)
}
