package holdings

import (
	"context"
	"errors"
	"fmt"

	"unitfund-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service is the holdings ledger. Writes go through Save* under a version check;
// rows are never deleted.
type Service struct {
	DB *gorm.DB
}

func (s *Service) db(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.DB.WithContext(ctx)
}

// Get returns the holding for an investor's account, or ErrHoldingNotFound.
func (s *Service) Get(ctx context.Context, tx *gorm.DB, investorID, accountID uuid.UUID) (*domain.Holding, error) {
	if accountID == uuid.Nil {
		accountID = investorID
	}
	var h domain.Holding
	err := s.db(ctx, tx).Where("investor_id = ? AND account_id = ?", investorID, accountID).First(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrHoldingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// ForInvestor returns every holding of an investor, oldest first.
func (s *Service) ForInvestor(ctx context.Context, tx *gorm.DB, investorID uuid.UUID) ([]domain.Holding, error) {
	var hs []domain.Holding
	if err := s.db(ctx, tx).Where("investor_id = ?", investorID).Order("created_at ASC").Find(&hs).Error; err != nil {
		return nil, err
	}
	return hs, nil
}

// UnitsOutstanding sums units across all holdings.
func (s *Service) UnitsOutstanding(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	row := s.DB.WithContext(ctx).Model(&domain.Holding{}).Select("SUM(units_held)").Row()
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// InvestorsWithUnits lists investors holding a positive number of units.
func (s *Service) InvestorsWithUnits(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.DB.WithContext(ctx).Model(&domain.Holding{}).
		Where("units_held > 0").
		Distinct("investor_id").
		Pluck("investor_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// SavePosition writes a holding after a subscription or redemption: cost basis and
// value fields together. A holding with Version 0 is inserted.
func (s *Service) SavePosition(tx *gorm.DB, h *domain.Holding) error {
	if h.Version == 0 {
		h.Version = 1
		if err := tx.Create(h).Error; err != nil {
			h.Version = 0
			return fmt.Errorf("%w: %v", domain.ErrConcurrentModification, err)
		}
		return nil
	}
	cols := append(append([]string{}, domain.CostBasisColumns...), domain.ValueColumns...)
	return s.update(tx, h, cols)
}

// SaveValuation writes only the value fields of a holding.
func (s *Service) SaveValuation(tx *gorm.DB, h *domain.Holding) error {
	return s.update(tx, h, domain.ValueColumns)
}

func (s *Service) update(tx *gorm.DB, h *domain.Holding, cols []string) error {
	all := map[string]interface{}{
		"units_held":       h.UnitsHeld,
		"total_invested":   h.TotalInvested,
		"avg_purchase_nav": h.AvgPurchaseNav,
		"realized_pnl":     h.RealizedPnL,
		"current_value":    h.CurrentValue,
		"unrealized_pnl":   h.UnrealizedPnL,
		"last_nav":         h.LastNav,
		"last_nav_as_of":   h.LastNavAsOf,
		"last_nav_update":  h.LastNavUpdate,
	}
	updates := make(map[string]interface{}, len(cols)+1)
	for _, c := range cols {
		updates[c] = all[c]
	}
	updates["version"] = h.Version + 1

	res := tx.Model(&domain.Holding{}).Where("id = ? AND version = ?", h.ID, h.Version).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConcurrentModification
	}
	h.Version++
	return nil
}

// AppendEvent adds an entry to the investor's valuation history.
func (s *Service) AppendEvent(tx *gorm.DB, ev *domain.HoldingEvent) error {
	return tx.Create(ev).Error
}
