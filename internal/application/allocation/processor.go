// Package allocation converts normalized cash events into unit changes.
package allocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"unitfund-backend/internal/application/holdings"
	"unitfund-backend/internal/application/snapshots"
	"unitfund-backend/internal/domain"
	"unitfund-backend/internal/infrastructure/cache"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Locker serializes work per key across processes.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// NavReader returns the NAV allocations are priced at.
type NavReader interface {
	CurrentNav(ctx context.Context, tx *gorm.DB) (domain.NavPoint, error)
}

// KYCChecker reports an investor's verification state.
type KYCChecker interface {
	Status(ctx context.Context, investorID uuid.UUID) (domain.KYCStatus, error)
}

// Result is the outcome of allocating one cash event. The same Result is returned for
// every delivery of the event.
type Result struct {
	EventID        uuid.UUID        `json:"event_id"`
	IdempotencyKey string           `json:"idempotency_key"`
	InvestorID     uuid.UUID        `json:"investor_id"`
	AccountID      uuid.UUID        `json:"account_id"`
	Kind           domain.EventKind `json:"kind"`
	AmountUSD      decimal.Decimal  `json:"amount_usd"`
	UnitsDelta     decimal.Decimal  `json:"units_delta"`
	RealizedPnL    decimal.Decimal  `json:"realized_pnl"`
	NavPerUnit     decimal.Decimal  `json:"nav_per_unit"`
	NavDate        string           `json:"nav_date"`
	Holding        domain.Holding   `json:"holding"`
	AllocatedAt    time.Time        `json:"allocated_at"`
	Replayed       bool             `json:"replayed"`
}

// Processor allocates cash events. Per investor, allocations are serialized by Locker
// and every write is additionally guarded by row versions.
type Processor struct {
	DB            *gorm.DB
	Valuations    NavReader
	Holdings      *holdings.Service
	Snapshots     *snapshots.Service
	Locker        Locker
	KYC           KYCChecker
	Results       *cache.Results
	Sinks         []Sink
	MinDeposit    map[string]decimal.Decimal
	MinRedemption decimal.Decimal
	MaxAttempts   int
	Now           func() time.Time
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

// Allocate applies ev exactly once. A redelivery of an allocated event returns the
// stored Result with Replayed set; a redelivery of a rejected event returns the same
// rejection. Business rejections are persisted; transient failures are not, so the
// provider's retry can succeed later.
func (p *Processor) Allocate(ctx context.Context, ev *domain.CashEvent) (*Result, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	if ev.Status != domain.StatusNormalized {
		return nil, fmt.Errorf("%w: expected %s, got %s", domain.ErrInvalidTransition, domain.StatusNormalized, ev.Status)
	}
	if ev.AccountID == uuid.Nil {
		ev.AccountID = ev.InvestorID
	}
	ev.IdempotencyKey = domain.IdempotencyKey(ev.Provider, ev.ProviderTransactionID)

	if res, found, err := p.replay(ctx, ev.IdempotencyKey); found || err != nil {
		return res, err
	}

	unlock, err := p.Locker.Lock(ctx, "investor:"+ev.InvestorID.String())
	if err != nil {
		return nil, fmt.Errorf("%w: acquire investor lock: %w", domain.ErrAllocationFailed, err)
	}
	defer unlock()

	// A concurrent delivery may have finished while this one waited for the lock.
	if res, found, err := p.replay(ctx, ev.IdempotencyKey); found || err != nil {
		return res, err
	}

	if err := p.checkMinimum(ev); err != nil {
		return p.reject(ctx, ev, err)
	}
	if err := p.checkKYC(ctx, ev.InvestorID); err != nil {
		if domain.RejectionCode(err) != "" {
			return p.reject(ctx, ev, err)
		}
		return nil, err
	}

	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 5
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		res, snap, err := p.allocateOnce(ctx, ev)
		switch {
		case err == nil:
			p.committed(ctx, res, snap)
			log.Info().
				Str("idempotency_key", res.IdempotencyKey).
				Str("investor_id", res.InvestorID.String()).
				Str("kind", string(res.Kind)).
				Str("amount_usd", res.AmountUSD.String()).
				Str("units_delta", res.UnitsDelta.String()).
				Str("nav_per_unit", res.NavPerUnit.String()).
				Int("attempt", attempt).
				Msg("cash event allocated")
			return res, nil
		case errors.Is(err, domain.ErrInsufficientUnits):
			return p.reject(ctx, ev, err)
		case errors.Is(err, domain.ErrDuplicateEvent):
			if res, found, rerr := p.replay(ctx, ev.IdempotencyKey); found || rerr != nil {
				return res, rerr
			}
			lastErr = err
		case errors.Is(err, domain.ErrConcurrentModification):
			lastErr = err
		default:
			return nil, err
		}
		log.Debug().Err(lastErr).Str("idempotency_key", ev.IdempotencyKey).Int("attempt", attempt).Msg("allocation conflict; retrying")
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %w", domain.ErrAllocationFailed, ev.IdempotencyKey, attempts, lastErr)
}

func (p *Processor) checkMinimum(ev *domain.CashEvent) error {
	switch ev.Kind {
	case domain.KindSubscription:
		if floor, ok := p.MinDeposit[ev.Provider]; ok && ev.AmountUSD.LessThan(floor) {
			return fmt.Errorf("%w: %s deposit of %s is below %s", domain.ErrBelowMinimum, ev.Provider, ev.AmountUSD, floor)
		}
	case domain.KindRedemption:
		if ev.AmountUSD.LessThan(p.MinRedemption) {
			return fmt.Errorf("%w: withdrawal of %s is below %s", domain.ErrBelowMinimum, ev.AmountUSD, p.MinRedemption)
		}
	}
	return nil
}

func (p *Processor) checkKYC(ctx context.Context, investorID uuid.UUID) error {
	if p.KYC == nil {
		return nil
	}
	status, err := p.KYC.Status(ctx, investorID)
	if errors.Is(err, domain.ErrInvestorNotFound) {
		return fmt.Errorf("%w: unknown investor %s", domain.ErrKYCRequired, investorID)
	}
	if err != nil {
		return err
	}
	if status != domain.KYCVerified {
		return fmt.Errorf("%w: status %s", domain.ErrKYCRequired, status)
	}
	return nil
}

func (p *Processor) allocateOnce(ctx context.Context, ev *domain.CashEvent) (*Result, *domain.AccountSnapshot, error) {
	now := p.now()
	record := *ev
	record.ID = uuid.New()
	var res *Result
	var snap *domain.AccountSnapshot

	err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seen int64
		if err := tx.Model(&domain.CashEvent{}).Where("idempotency_key = ?", record.IdempotencyKey).Count(&seen).Error; err != nil {
			return err
		}
		if seen > 0 {
			return domain.ErrDuplicateEvent
		}

		// A revaluation may commit between these two reads. The holding then carries a
		// newer mark than nav, and Subscribe/Redeem fail with ErrConcurrentModification
		// so the retry prices at the fresh NAV.
		nav, err := p.Valuations.CurrentNav(ctx, tx)
		if err != nil {
			return err
		}
		h, err := p.Holdings.Get(ctx, tx, record.InvestorID, record.AccountID)
		if errors.Is(err, domain.ErrHoldingNotFound) {
			h = domain.NewHolding(record.InvestorID, record.AccountID)
		} else if err != nil {
			return err
		}

		var units, realized decimal.Decimal
		var kind domain.HoldingEventKind
		switch record.Kind {
		case domain.KindSubscription:
			kind = domain.HoldingSubscribed
			realized = decimal.Zero
			units, err = h.Subscribe(record.AmountUSD, nav, now)
		case domain.KindRedemption:
			kind = domain.HoldingRedeemed
			units, realized, err = h.Redeem(record.AmountUSD, nav, now)
			units = units.Neg()
		}
		if err != nil {
			return err
		}
		if err := p.Holdings.SavePosition(tx, h); err != nil {
			return err
		}

		res = &Result{
			EventID:        record.ID,
			IdempotencyKey: record.IdempotencyKey,
			InvestorID:     record.InvestorID,
			AccountID:      record.AccountID,
			Kind:           record.Kind,
			AmountUSD:      record.AmountUSD,
			UnitsDelta:     units,
			RealizedPnL:    realized,
			NavPerUnit:     nav.NavPerUnit,
			NavDate:        nav.Date,
			Holding:        *h,
			AllocatedAt:    now,
		}
		body, err := json.Marshal(res)
		if err != nil {
			return err
		}
		if err := record.Transition(domain.StatusAllocated); err != nil {
			return err
		}
		record.Result = datatypes.JSON(body)
		record.ProcessedAt = &now
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("%w: %v", domain.ErrDuplicateEvent, err)
		}

		err = tx.Model(&domain.Quote{}).
			Where("provider = ? AND provider_ref = ? AND status = ?", record.Provider, record.ProviderTransactionID, domain.QuoteOpen).
			Update("status", domain.QuoteConsumed).Error
		if err != nil {
			return err
		}

		hev := domain.NewHoldingEvent(kind, h, units, record.AmountUSD, &record.ID)
		if err := p.Holdings.AppendEvent(tx, &hev); err != nil {
			return err
		}

		snap, err = p.Snapshots.Refresh(tx, record.InvestorID, nav, now)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	*ev = record
	return res, snap, nil
}

// committed publishes the outcome after the transaction is durable.
func (p *Processor) committed(ctx context.Context, res *Result, snap *domain.AccountSnapshot) {
	if err := p.Results.Put(ctx, res.IdempotencyKey, res); err != nil {
		log.Warn().Err(err).Str("idempotency_key", res.IdempotencyKey).Msg("result cache write failed")
	}
	p.Snapshots.Publish(ctx, snap)
	p.emit(*res)
}

// reject persists a terminal rejection for ev and returns cause.
func (p *Processor) reject(ctx context.Context, ev *domain.CashEvent, cause error) (*Result, error) {
	code := domain.RejectionCode(cause)
	record := *ev
	record.ID = uuid.New()
	if err := record.Reject(code, p.now()); err != nil {
		return nil, err
	}
	if err := p.DB.WithContext(ctx).Create(&record).Error; err != nil {
		if res, found, rerr := p.replay(ctx, ev.IdempotencyKey); found || rerr != nil {
			return res, rerr
		}
		return nil, err
	}
	*ev = record
	log.Warn().
		Err(cause).
		Str("idempotency_key", ev.IdempotencyKey).
		Str("investor_id", ev.InvestorID.String()).
		Str("reason", code).
		Msg("cash event rejected")
	return nil, cause
}

// replay looks up a terminal outcome for key. found reports whether one exists.
func (p *Processor) replay(ctx context.Context, key string) (*Result, bool, error) {
	var cached Result
	hit, err := p.Results.Get(ctx, key, &cached)
	if err != nil {
		log.Warn().Err(err).Str("idempotency_key", key).Msg("result cache read failed")
	}
	if hit {
		cached.Replayed = true
		return &cached, true, nil
	}

	var rec domain.CashEvent
	err = p.DB.WithContext(ctx).Where("idempotency_key = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	switch rec.Status {
	case domain.StatusAllocated:
		var res Result
		if err := json.Unmarshal(rec.Result, &res); err != nil {
			return nil, true, fmt.Errorf("decode stored result for %s: %w", key, err)
		}
		if err := p.Results.Put(ctx, key, res); err != nil {
			log.Warn().Err(err).Str("idempotency_key", key).Msg("result cache write failed")
		}
		res.Replayed = true
		log.Info().Str("idempotency_key", key).Msg("duplicate delivery; returning stored result")
		return &res, true, nil
	case domain.StatusRejected:
		return nil, true, fmt.Errorf("%w: %s previously rejected", domain.RejectionError(rec.RejectReason), key)
	}
	return nil, false, nil
}
