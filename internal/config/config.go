package config

import (
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	LogLevel            string
	DatabaseURL         string
	RedisURL            string
	StripeSecretKey     string
	StripeWebhookSecret string
	NowPaymentsSecret   string // NOWPAYMENTS_IPN_SECRET, HMAC-SHA512 key for crypto IPN callbacks
	InternalSecret      string // INTERNAL_WEBHOOK_SECRET for back-office cash events
	InternalAPIKey      string // X-API-Key for the internal read/admin API
	FrontendURLEndsWith string
	DevPassword         string
	HealthAdminKey      string
	SendinblueAPIKey    string
	MailFrom            string

	FeedURL           string
	FeedAPIKey        string
	FeedSigningSecret string
	FeedTimeout       time.Duration
	ValuationCron     string
	PollRetries       uint64
	QuoteExpiryCron   string
	QuoteTTL          time.Duration

	RevaluationWorkers    int
	AllocationMaxAttempts int
	LockTTL               time.Duration
	MinDeposit            map[string]decimal.Decimal // provider -> USD floor
	MinRedemptionUSD      decimal.Decimal
	AmountTolerancePct    decimal.Decimal
	FXRates               map[string]decimal.Decimal // currency -> USD per unit
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("EQUITY_FEED_TIMEOUT", "10s")
	viper.SetDefault("VALUATION_CRON", "@every 15m")
	viper.SetDefault("VALUATION_POLL_RETRIES", 3)
	viper.SetDefault("QUOTE_EXPIRY_CRON", "@every 5m")
	viper.SetDefault("QUOTE_TTL", "24h")
	viper.SetDefault("REVALUATION_WORKERS", 8)
	viper.SetDefault("ALLOCATION_MAX_ATTEMPTS", 5)
	viper.SetDefault("LOCK_TTL", "30s")
	viper.SetDefault("MIN_DEPOSIT_STRIPE", "100")
	viper.SetDefault("MIN_DEPOSIT_NOWPAYMENTS", "1000")
	viper.SetDefault("MIN_DEPOSIT_INTERNAL", "100")
	viper.SetDefault("MIN_REDEMPTION_USD", "0")
	viper.SetDefault("AMOUNT_TOLERANCE_PCT", "1")

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	dbURL := viper.GetString("DATABASE_URL_DEV")
	if env == "production" {
		dbURL = viper.GetString("DATABASE_URL_PROD")
	} else if env == "test" {
		dbURL = viper.GetString("DATABASE_URL_TEST")
	}
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL_DEV")
	}

	return &Config{
		Env:                 env,
		Port:                viper.GetString("PORT"),
		LogLevel:            viper.GetString("LOG_LEVEL"),
		DatabaseURL:         dbURL,
		RedisURL:            viper.GetString("REDIS_URL"),
		StripeSecretKey:     viper.GetString("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: viper.GetString("STRIPE_WEBHOOK_SECRET"),
		NowPaymentsSecret:   viper.GetString("NOWPAYMENTS_IPN_SECRET"),
		InternalSecret:      viper.GetString("INTERNAL_WEBHOOK_SECRET"),
		InternalAPIKey:      viper.GetString("INTERNAL_API_KEY"),
		FrontendURLEndsWith: viper.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:         viper.GetString("DEV_PASSWORD"),
		HealthAdminKey:      viper.GetString("HEALTH_ADMIN_KEY"),
		SendinblueAPIKey:    viper.GetString("SENDINBLUE_API_KEY"),
		MailFrom:            viper.GetString("MAIL_FROM"),

		FeedURL:           viper.GetString("EQUITY_FEED_URL"),
		FeedAPIKey:        viper.GetString("EQUITY_FEED_API_KEY"),
		FeedSigningSecret: viper.GetString("EQUITY_FEED_SIGNING_SECRET"),
		FeedTimeout:       viper.GetDuration("EQUITY_FEED_TIMEOUT"),
		ValuationCron:     viper.GetString("VALUATION_CRON"),
		PollRetries:       viper.GetUint64("VALUATION_POLL_RETRIES"),
		QuoteExpiryCron:   viper.GetString("QUOTE_EXPIRY_CRON"),
		QuoteTTL:          viper.GetDuration("QUOTE_TTL"),

		RevaluationWorkers:    viper.GetInt("REVALUATION_WORKERS"),
		AllocationMaxAttempts: viper.GetInt("ALLOCATION_MAX_ATTEMPTS"),
		LockTTL:               viper.GetDuration("LOCK_TTL"),
		MinDeposit: map[string]decimal.Decimal{
			"stripe":      decimalOr(viper.GetString("MIN_DEPOSIT_STRIPE"), 100),
			"nowpayments": decimalOr(viper.GetString("MIN_DEPOSIT_NOWPAYMENTS"), 1000),
			"internal":    decimalOr(viper.GetString("MIN_DEPOSIT_INTERNAL"), 100),
		},
		MinRedemptionUSD:   decimalOr(viper.GetString("MIN_REDEMPTION_USD"), 0),
		AmountTolerancePct: decimalOr(viper.GetString("AMOUNT_TOLERANCE_PCT"), 1),
		FXRates:            ParseRates(viper.GetString("FX_RATES")),
	}, nil
}

// ParseRates parses "EUR=1.08,GBP=1.27" into a currency -> USD rate map. USD is always 1.
func ParseRates(s string) map[string]decimal.Decimal {
	rates := map[string]decimal.Decimal{"USD": decimal.NewFromInt(1)}
	for _, pair := range strings.Split(s, ",") {
		kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(kv) != 2 {
			continue
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(kv[1]))
		if err != nil || !rate.IsPositive() {
			continue
		}
		rates[strings.ToUpper(strings.TrimSpace(kv[0]))] = rate
	}
	return rates
}

func decimalOr(s string, fallback int64) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.NewFromInt(fallback)
	}
	return d
}
