// Package nav turns equity readings into daily ValuationRecords.
package nav

import (
	"context"
	"errors"
	"fmt"
	"time"

	"unitfund-backend/internal/application/holdings"
	"unitfund-backend/internal/application/valuations"
	"unitfund-backend/internal/domain"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// EquityFeed is the external source of account equity.
type EquityFeed interface {
	Fetch(ctx context.Context) (domain.EquityReading, error)
}

// Engine computes and records NAV. It never touches holdings; revaluation is the
// caller's next step.
type Engine struct {
	Valuations  *valuations.Store
	Holdings    *holdings.Service
	Feed        EquityFeed
	FeedTimeout time.Duration
	MaxAttempts int
}

// Poll fetches one reading from the feed and applies it. A feed that does not answer
// within FeedTimeout yields ErrExternalFeedUnavailable and writes nothing.
func (e *Engine) Poll(ctx context.Context) (*domain.ValuationRecord, error) {
	if e.Feed == nil {
		return nil, fmt.Errorf("%w: no feed configured", domain.ErrExternalFeedUnavailable)
	}
	timeout := e.FeedTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reading, err := e.Feed.Fetch(fctx)
	if err != nil {
		if !errors.Is(err, domain.ErrExternalFeedUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrExternalFeedUnavailable, err)
		}
		return nil, err
	}
	return e.Apply(ctx, reading)
}

// Apply records the NAV for the reading's trading date. A second reading for the same
// date overwrites the first; readings for a date older than the latest record fail with
// ErrRetroactiveValuation.
func (e *Engine) Apply(ctx context.Context, reading domain.EquityReading) (*domain.ValuationRecord, error) {
	if reading.Timestamp.IsZero() {
		return nil, fmt.Errorf("%w: reading has no timestamp", domain.ErrExternalFeedUnavailable)
	}
	// Storage keeps microseconds; truncating keeps in-memory and stored points comparable.
	reading.Timestamp = reading.Timestamp.UTC().Truncate(time.Microsecond)

	attempts := e.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var rec *domain.ValuationRecord
		rec, err = e.compute(ctx, reading)
		if err != nil {
			return nil, err
		}
		err = e.Valuations.Upsert(ctx, rec)
		if err == nil {
			log.Info().
				Str("date", rec.Date).
				Str("nav_per_unit", rec.NavPerUnit.String()).
				Str("units_outstanding", rec.UnitsOutstanding.String()).
				Str("daily_return_pct", rec.DailyReturnPct.String()).
				Int64("version", rec.Version).
				Msg("valuation recorded")
			return rec, nil
		}
		if !errors.Is(err, domain.ErrConcurrentModification) {
			return nil, err
		}
		log.Debug().Err(err).Int("attempt", attempt).Str("date", rec.Date).Msg("valuation write conflict; retrying")
	}
	return nil, err
}

func (e *Engine) compute(ctx context.Context, reading domain.EquityReading) (*domain.ValuationRecord, error) {
	date := reading.TradingDate()
	units, err := e.Holdings.UnitsOutstanding(ctx)
	if err != nil {
		return nil, err
	}

	prevEquity := reading.Balance
	prior, err := e.Valuations.PriorTo(ctx, date)
	switch {
	case err == nil:
		prevEquity = prior.SourceEquity
	case !errors.Is(err, domain.ErrValuationNotFound):
		return nil, err
	}

	pnl := reading.Equity.Sub(prevEquity)
	ret := decimal.Zero
	if !prevEquity.IsZero() {
		ret = pnl.DivRound(prevEquity, 24).Mul(decimal.NewFromInt(100)).RoundBank(domain.NavScale)
	}

	// NAV derives from the stored AUM so the record reproduces its own NAV.
	aum := domain.RoundCash(reading.Equity)
	return &domain.ValuationRecord{
		Date:             date,
		NavPerUnit:       domain.ComputeNav(aum, units),
		TotalAUM:         aum,
		UnitsOutstanding: units,
		DailyPnL:         domain.RoundCash(pnl),
		DailyReturnPct:   ret,
		SourceEquity:     reading.Equity,
		SourceBalance:    reading.Balance,
		SourceTimestamp:  reading.Timestamp,
	}, nil
}
