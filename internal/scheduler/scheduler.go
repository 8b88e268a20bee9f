// Package scheduler runs the periodic jobs: the valuation poll and quote expiry.
package scheduler

import (
	"context"
	"errors"
	"time"

	"unitfund-backend/internal/application/nav"
	"unitfund-backend/internal/domain"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
)

const (
	defaultRetryBase = 2 * time.Second
	jobTimeout       = 5 * time.Minute
)

// Poller runs one valuation tick against the feed.
type Poller interface {
	Poll(ctx context.Context) (*nav.TickResult, error)
}

// Expirer closes quotes past their expiry.
type Expirer interface {
	ExpireStale(ctx context.Context) (int64, error)
}

// Config holds cron specs and the feed retry policy. An empty spec disables the job.
type Config struct {
	ValuationSpec string
	QuoteSpec     string
	PollRetries   uint64
	RetryBase     time.Duration
}

// Scheduler owns the cron runner. Overlapping runs of the same job are skipped.
type Scheduler struct {
	cron     *cron.Cron
	pipeline Poller
	quotes   Expirer
	cfg      Config

	// base parents every job context; Shutdown cancels it once its deadline passes.
	base   context.Context
	cancel context.CancelFunc
}

// New registers the configured jobs without starting them.
func New(pipeline Poller, quotes Expirer, cfg Config) (*Scheduler, error) {
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaultRetryBase
	}
	logger := cronLogger{}
	base, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		pipeline: pipeline,
		quotes:   quotes,
		cfg:      cfg,
		base:     base,
		cancel:   cancel,
	}
	if cfg.ValuationSpec != "" && pipeline != nil {
		if _, err := s.cron.AddFunc(cfg.ValuationSpec, s.runJob("valuation_poll", s.PollValuation)); err != nil {
			return nil, err
		}
	}
	if cfg.QuoteSpec != "" && quotes != nil {
		if _, err := s.cron.AddFunc(cfg.QuoteSpec, s.runJob("quote_expiry", s.ExpireQuotes)); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Start runs the jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Int("jobs", len(s.cron.Entries())).Msg("scheduler started")
}

// Stop halts scheduling and returns a context that is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Shutdown stops scheduling and waits for running jobs until ctx is done. Jobs still
// running at that point are cancelled and ctx's error is returned.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	select {
	case <-s.Stop().Done():
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

func (s *Scheduler) runJob(name string, fn func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(s.base, jobTimeout)
		defer cancel()
		start := time.Now()
		if err := fn(ctx); err != nil {
			log.Error().Err(err).Str("job", name).Msg("scheduled job failed")
			return
		}
		log.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("scheduled job done")
	}
}

// PollValuation runs a valuation tick, retrying with exponential backoff while the
// feed is unavailable. Guard rejections (stale, retroactive, non-positive NAV) are
// final. A recorded NAV whose revaluation failed is logged, not retried: the next
// tick revalues again.
func (s *Scheduler) PollValuation(ctx context.Context) error {
	backoff := retry.WithMaxRetries(s.cfg.PollRetries, retry.NewExponential(s.cfg.RetryBase))
	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		res, err := s.pipeline.Poll(ctx)
		if res != nil && res.Record != nil {
			if err != nil {
				log.Warn().Err(err).Str("date", res.Record.Date).Msg("NAV recorded but revaluation incomplete")
				return nil
			}
			log.Info().
				Str("date", res.Record.Date).
				Str("nav_per_unit", res.Record.NavPerUnit.String()).
				Msg("scheduled NAV recorded")
			return nil
		}
		if errors.Is(err, domain.ErrExternalFeedUnavailable) {
			log.Warn().Err(err).Int("attempt", attempt).Msg("equity feed unavailable")
			return retry.RetryableError(err)
		}
		return err
	})
}

// ExpireQuotes closes stale quotes.
func (s *Scheduler) ExpireQuotes(ctx context.Context) error {
	n, err := s.quotes.ExpireStale(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Info().Int64("expired", n).Msg("stale quotes expired")
	}
	return nil
}

// cronLogger routes cron's own messages through zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
