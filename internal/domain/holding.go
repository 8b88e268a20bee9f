package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Holding is an investor's unit position in one account.
//
// UnitsHeld, TotalInvested and AvgPurchaseNav form the cost basis and only change
// together, through Subscribe and Redeem. Revalue touches the value fields only.
type Holding struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	InvestorID     uuid.UUID       `gorm:"column:investor_id;type:uuid;not null;uniqueIndex:idx_holding_account,priority:1" json:"investor_id"`
	AccountID      uuid.UUID       `gorm:"column:account_id;type:uuid;not null;uniqueIndex:idx_holding_account,priority:2" json:"account_id"`
	UnitsHeld      decimal.Decimal `gorm:"column:units_held;type:numeric(38,18);not null;default:0" json:"units_held"`
	AvgPurchaseNav decimal.Decimal `gorm:"column:avg_purchase_nav;type:numeric(38,18);not null;default:0" json:"avg_purchase_nav"`
	TotalInvested  decimal.Decimal `gorm:"column:total_invested;type:numeric(38,18);not null;default:0" json:"total_invested"`
	RealizedPnL    decimal.Decimal `gorm:"column:realized_pnl;type:numeric(38,18);not null;default:0" json:"realized_pnl"`
	CurrentValue   decimal.Decimal `gorm:"column:current_value;type:numeric(38,18);not null;default:0" json:"current_value"`
	UnrealizedPnL  decimal.Decimal `gorm:"column:unrealized_pnl;type:numeric(38,18);not null;default:0" json:"unrealized_pnl"`
	LastNav        decimal.Decimal `gorm:"column:last_nav;type:numeric(38,18);not null;default:0" json:"last_nav"`
	LastNavAsOf    time.Time       `gorm:"column:last_nav_as_of" json:"last_nav_as_of"`
	LastNavUpdate  time.Time       `gorm:"column:last_nav_update" json:"last_nav_update"`
	Version        int64           `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (Holding) TableName() string {
	return "holdings"
}

// BeforeCreate sets the UUID if not set.
func (h *Holding) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

// NewHolding returns an empty position. A nil account is the investor's primary account.
func NewHolding(investorID, accountID uuid.UUID) *Holding {
	if accountID == uuid.Nil {
		accountID = investorID
	}
	return &Holding{
		InvestorID:     investorID,
		AccountID:      accountID,
		UnitsHeld:      decimal.Zero,
		AvgPurchaseNav: decimal.Zero,
		TotalInvested:  decimal.Zero,
		RealizedPnL:    decimal.Zero,
		CurrentValue:   decimal.Zero,
		UnrealizedPnL:  decimal.Zero,
		LastNav:        decimal.Zero,
	}
}

// Subscribe converts amount into units at nav and returns the units issued.
func (h *Holding) Subscribe(amount decimal.Decimal, nav NavPoint, now time.Time) (decimal.Decimal, error) {
	if err := h.checkNav(nav); err != nil {
		return decimal.Zero, err
	}
	units := amount.DivRound(nav.NavPerUnit, UnitScale)
	h.UnitsHeld = h.UnitsHeld.Add(units)
	h.TotalInvested = h.TotalInvested.Add(amount)
	h.recomputeAvgCost()
	h.markToNav(nav, now)
	return units, nil
}

// Redeem removes units worth amount at nav. It returns the units removed and the
// realized gain against average cost. A request for the full position value removes
// every unit.
func (h *Holding) Redeem(amount decimal.Decimal, nav NavPoint, now time.Time) (decimal.Decimal, decimal.Decimal, error) {
	if err := h.checkNav(nav); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	maxValue := RoundCash(h.UnitsHeld.Mul(nav.NavPerUnit))
	if h.UnitsHeld.Sign() <= 0 || amount.GreaterThan(maxValue) {
		return decimal.Zero, decimal.Zero, ErrInsufficientUnits
	}

	units := amount.DivRound(nav.NavPerUnit, UnitScale)
	if amount.Equal(maxValue) || units.GreaterThan(h.UnitsHeld) {
		units = h.UnitsHeld
	}

	costRemoved := h.TotalInvested
	if units.LessThan(h.UnitsHeld) {
		costRemoved = RoundCash(h.TotalInvested.Mul(units).DivRound(h.UnitsHeld, divisionScale))
	}
	realized := amount.Sub(costRemoved)

	h.UnitsHeld = h.UnitsHeld.Sub(units)
	h.TotalInvested = h.TotalInvested.Sub(costRemoved)
	h.RealizedPnL = h.RealizedPnL.Add(realized)
	h.recomputeAvgCost()
	h.markToNav(nav, now)
	return units, realized, nil
}

// Revalue marks the position to nav. It reports false, changing nothing, when the
// holding is already marked at a newer NAV.
func (h *Holding) Revalue(nav NavPoint, now time.Time) bool {
	if h.MarkedAfter(nav) {
		return false
	}
	h.markToNav(nav, now)
	return true
}

// MarkedAfter reports whether the holding is already marked at a NAV newer than nav.
func (h *Holding) MarkedAfter(nav NavPoint) bool {
	return !h.LastNavAsOf.IsZero() && nav.AsOf.Before(h.LastNavAsOf)
}

// checkNav refuses a NAV that cannot price units against this holding. A NAV older
// than the holding's mark means a revaluation committed after the NAV was read.
func (h *Holding) checkNav(nav NavPoint) error {
	if !nav.NavPerUnit.IsPositive() {
		return ErrNonPositiveNav
	}
	if h.MarkedAfter(nav) {
		return fmt.Errorf("%w: holding marked at NAV as of %s, priced at %s",
			ErrConcurrentModification, h.LastNavAsOf.Format(time.RFC3339Nano), nav.AsOf.Format(time.RFC3339Nano))
	}
	return nil
}

func (h *Holding) recomputeAvgCost() {
	if h.UnitsHeld.Sign() <= 0 {
		h.UnitsHeld = decimal.Zero
		h.TotalInvested = decimal.Zero
		h.AvgPurchaseNav = decimal.Zero
		return
	}
	h.AvgPurchaseNav = h.TotalInvested.DivRound(h.UnitsHeld, divisionScale).RoundBank(NavScale)
}

func (h *Holding) markToNav(nav NavPoint, now time.Time) {
	h.CurrentValue = RoundCash(h.UnitsHeld.Mul(nav.NavPerUnit))
	h.UnrealizedPnL = h.CurrentValue.Sub(h.TotalInvested)
	h.LastNav = nav.NavPerUnit
	h.LastNavAsOf = nav.AsOf
	h.LastNavUpdate = now
}

// CostBasisColumns are written together whenever units change.
var CostBasisColumns = []string{"units_held", "total_invested", "avg_purchase_nav", "realized_pnl"}

// ValueColumns are the only columns a revaluation may write.
var ValueColumns = []string{"current_value", "unrealized_pnl", "last_nav", "last_nav_as_of", "last_nav_update"}
