package snapshots

import (
	"context"
	"errors"
	"fmt"
	"time"

	"unitfund-backend/internal/application/holdings"
	"unitfund-backend/internal/application/valuations"
	"unitfund-backend/internal/domain"
	"unitfund-backend/internal/infrastructure/cache"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service maintains AccountSnapshot rows. Snapshots are only written inside the
// transaction that changed the underlying holdings, so a reader sees either the
// previous or the next complete projection.
type Service struct {
	DB         *gorm.DB
	Holdings   *holdings.Service
	Valuations *valuations.Store
	Cache      *cache.Snapshots
	Now        func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Refresh re-projects the investor's snapshot at nav inside tx. Holdings still marked
// at another NAV are marked to nav first so the balance never mixes two valuations.
// A holding already marked at a newer NAV means nav is stale: the caller should
// retry with a fresh read.
func (s *Service) Refresh(tx *gorm.DB, investorID uuid.UUID, nav domain.NavPoint, now time.Time) (*domain.AccountSnapshot, error) {
	hs, err := s.Holdings.ForInvestor(context.Background(), tx, investorID)
	if err != nil {
		return nil, err
	}
	for i := range hs {
		h := &hs[i]
		if h.LastNav.Equal(nav.NavPerUnit) && h.LastNavAsOf.Equal(nav.AsOf) {
			continue
		}
		if !h.Revalue(nav, now) {
			return nil, fmt.Errorf("%w: holding %s marked at a newer nav", domain.ErrConcurrentModification, h.ID)
		}
		if err := s.Holdings.SaveValuation(tx, h); err != nil {
			return nil, err
		}
	}

	totals, err := s.totals(tx, investorID, now)
	if err != nil {
		return nil, err
	}
	next := domain.ProjectSnapshot(investorID, hs, totals, nav)

	var current domain.AccountSnapshot
	err = tx.Where("investor_id = ?", investorID).First(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		next.Version = 1
		next.UpdatedAt = now
		if err := tx.Create(&next).Error; err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrConcurrentModification, err)
		}
		return &next, nil
	}
	if err != nil {
		return nil, err
	}

	next.Version = current.Version + 1
	next.UpdatedAt = now
	res := tx.Model(&domain.AccountSnapshot{}).
		Where("investor_id = ? AND version = ?", investorID, current.Version).
		Updates(map[string]interface{}{
			"balance":           next.Balance,
			"available_balance": next.AvailableBalance,
			"total_deposits":    next.TotalDeposits,
			"total_withdrawals": next.TotalWithdrawals,
			"units_held":        next.UnitsHeld,
			"nav_per_unit":      next.NavPerUnit,
			"nav_as_of":         next.NavAsOf,
			"version":           next.Version,
			"updated_at":        now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrConcurrentModification
	}
	return &next, nil
}

type kindTotal struct {
	Kind  domain.EventKind
	Total decimal.NullDecimal
}

func (s *Service) totals(tx *gorm.DB, investorID uuid.UUID, now time.Time) (domain.CashTotals, error) {
	totals := domain.CashTotals{Deposits: decimal.Zero, Withdrawals: decimal.Zero, PendingRedemptions: decimal.Zero}

	var rows []kindTotal
	err := tx.Model(&domain.CashEvent{}).
		Select("kind, SUM(amount_usd) AS total").
		Where("investor_id = ? AND status = ?", investorID, domain.StatusAllocated).
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return totals, err
	}
	for _, r := range rows {
		if !r.Total.Valid {
			continue
		}
		switch r.Kind {
		case domain.KindSubscription:
			totals.Deposits = r.Total.Decimal
		case domain.KindRedemption:
			totals.Withdrawals = r.Total.Decimal
		}
	}

	var pending decimal.NullDecimal
	err = tx.Model(&domain.Quote{}).
		Select("SUM(amount_usd)").
		Where("investor_id = ? AND kind = ? AND status = ? AND expires_at > ?",
			investorID, domain.KindRedemption, domain.QuoteOpen, now).
		Row().Scan(&pending)
	if err != nil {
		return totals, err
	}
	if pending.Valid {
		totals.PendingRedemptions = pending.Decimal
	}
	return totals, nil
}

// Publish pushes a committed snapshot to the read cache. Failures only cost a cache miss.
func (s *Service) Publish(ctx context.Context, snap *domain.AccountSnapshot) {
	if snap == nil {
		return
	}
	if _, err := s.Cache.Put(ctx, snap.InvestorID.String(), snap.Version, snap); err != nil {
		log.Warn().Err(err).Str("investor_id", snap.InvestorID.String()).Msg("snapshot cache publish failed")
	}
}

// Get returns the investor's latest committed snapshot.
func (s *Service) Get(ctx context.Context, investorID uuid.UUID) (*domain.AccountSnapshot, error) {
	var snap domain.AccountSnapshot
	found, err := s.Cache.Get(ctx, investorID.String(), &snap)
	if err != nil {
		// an undecodable entry would block later version-checked publishes
		log.Warn().Err(err).Str("investor_id", investorID.String()).Msg("snapshot cache read failed")
		if err := s.Cache.Invalidate(ctx, investorID.String()); err != nil {
			log.Warn().Err(err).Str("investor_id", investorID.String()).Msg("snapshot cache invalidate failed")
		}
		snap = domain.AccountSnapshot{}
	}
	if found {
		return &snap, nil
	}

	err = s.DB.WithContext(ctx).Where("investor_id = ?", investorID).First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Publish(ctx, &snap)
	return &snap, nil
}

// Rebuild re-derives the snapshot from the holdings ledger and allocated cash events
// at the current NAV.
func (s *Service) Rebuild(ctx context.Context, investorID uuid.UUID) (*domain.AccountSnapshot, error) {
	var snap *domain.AccountSnapshot
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		nav, err := s.Valuations.CurrentNav(ctx, tx)
		if err != nil {
			return err
		}
		snap, err = s.Refresh(tx, investorID, nav, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Publish(ctx, snap)
	return snap, nil
}
