// Package revaluation marks every holding to a newly recorded NAV.
package revaluation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"unitfund-backend/internal/application/holdings"
	"unitfund-backend/internal/application/snapshots"
	"unitfund-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Fence orders broadcasts. Advance claims a new generation; a run whose generation is
// no longer current stops.
type Fence interface {
	Advance(ctx context.Context) (int64, error)
	Current(ctx context.Context) (int64, error)
}

// Report summarizes one broadcast.
type Report struct {
	NavPerUnit decimal.Decimal `json:"nav_per_unit"`
	NavDate    string          `json:"nav_date"`
	Generation int64           `json:"generation"`
	Investors  int             `json:"investors"`
	Updated    int             `json:"updated"`
	Skipped    int             `json:"skipped"`
	Failed     []uuid.UUID     `json:"failed"`
	Superseded bool            `json:"superseded"`
}

var (
	errSuperseded = errors.New("broadcast superseded")
	errNewerNav   = errors.New("holding marked at a newer nav")
)

// Broadcaster applies a NAV to all investors with units. Each investor is revalued in
// its own transaction, so one failure never blocks the rest.
type Broadcaster struct {
	DB          *gorm.DB
	Holdings    *holdings.Service
	Snapshots   *snapshots.Service
	Fence       Fence
	Workers     int
	MaxAttempts int
	Now         func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	runs   uint64
}

type outcome struct {
	investor uuid.UUID
	updated  int
	skipped  int
	err      error
}

func (b *Broadcaster) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now().UTC()
}

// begin cancels any run still in flight in this process and returns the context for
// the new one.
func (b *Broadcaster) begin(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	if b.cancel != nil {
		b.cancel()
	}
	b.runs++
	run := b.runs
	b.cancel = cancel
	b.mu.Unlock()

	return ctx, func() {
		cancel()
		b.mu.Lock()
		if b.runs == run {
			b.cancel = nil
		}
		b.mu.Unlock()
	}
}

// RevalueAll marks every holding with units to nav. A later call, here or in another
// process sharing the fence, supersedes this one: remaining investors are left for the
// newer NAV.
func (b *Broadcaster) RevalueAll(ctx context.Context, nav domain.NavPoint) (*Report, error) {
	ctx, done := b.begin(ctx)
	defer done()

	gen, err := b.Fence.Advance(ctx)
	if err != nil {
		return nil, fmt.Errorf("advance revaluation fence: %w", err)
	}
	ids, err := b.Holdings.InvestorsWithUnits(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{NavPerUnit: nav.NavPerUnit, NavDate: nav.Date, Generation: gen, Investors: len(ids), Failed: []uuid.UUID{}}
	results := make(chan outcome)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for o := range results {
			switch {
			case errors.Is(o.err, errSuperseded), errors.Is(o.err, context.Canceled):
				report.Superseded = true
			case o.err != nil:
				report.Failed = append(report.Failed, o.investor)
				log.Error().Err(o.err).Str("investor_id", o.investor.String()).Str("nav_date", nav.Date).Msg("revaluation failed")
			default:
				report.Updated += o.updated
				report.Skipped += o.skipped
			}
		}
	}()

	workers := b.Workers
	if workers <= 0 {
		workers = 8
	}
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for _, id := range ids {
		if b.superseded(ctx, gen) {
			report.Superseded = true
			break
		}
		id := id
		g.Go(func() error {
			results <- b.revalueInvestor(ctx, id, nav, gen)
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	<-collected

	log.Info().
		Str("nav_date", nav.Date).
		Str("nav_per_unit", nav.NavPerUnit.String()).
		Int64("generation", gen).
		Int("investors", report.Investors).
		Int("updated", report.Updated).
		Int("skipped", report.Skipped).
		Int("failed", len(report.Failed)).
		Bool("superseded", report.Superseded).
		Msg("revaluation broadcast finished")
	return report, nil
}

func (b *Broadcaster) superseded(ctx context.Context, gen int64) bool {
	if ctx.Err() != nil {
		return true
	}
	cur, err := b.Fence.Current(ctx)
	if err != nil {
		// Fence unreachable: keep going; per-holding NAV ordering still holds.
		log.Warn().Err(err).Msg("revaluation fence read failed")
		return false
	}
	return cur != gen
}

func (b *Broadcaster) revalueInvestor(ctx context.Context, investorID uuid.UUID, nav domain.NavPoint, gen int64) outcome {
	out := outcome{investor: investorID}
	attempts := b.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if b.superseded(ctx, gen) {
			out.err = errSuperseded
			return out
		}

		now := b.now()
		var updated, held int
		var snap *domain.AccountSnapshot
		err := b.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			updated, held = 0, 0
			hs, err := b.Holdings.ForInvestor(ctx, tx, investorID)
			if err != nil {
				return err
			}
			for _, h := range hs {
				if h.UnitsHeld.Sign() > 0 {
					held++
				}
				if h.MarkedAfter(nav) {
					return errNewerNav
				}
			}
			for i := range hs {
				h := &hs[i]
				if h.UnitsHeld.Sign() <= 0 {
					continue
				}
				h.Revalue(nav, now)
				if err := b.Holdings.SaveValuation(tx, h); err != nil {
					return err
				}
				ev := domain.NewHoldingEvent(domain.HoldingRevalued, h, decimal.Zero, decimal.Zero, nil)
				if err := b.Holdings.AppendEvent(tx, &ev); err != nil {
					return err
				}
				updated++
			}
			snap, err = b.Snapshots.Refresh(tx, investorID, nav, now)
			return err
		})

		switch {
		case err == nil:
			b.Snapshots.Publish(ctx, snap)
			out.updated = updated
			return out
		case errors.Is(err, errNewerNav):
			out.skipped = held
			return out
		case errors.Is(err, domain.ErrConcurrentModification) && attempt < attempts:
			log.Debug().Err(err).Str("investor_id", investorID.String()).Int("attempt", attempt).Msg("revaluation conflict; retrying")
			continue
		default:
			out.err = err
			return out
		}
	}
	return out
}
