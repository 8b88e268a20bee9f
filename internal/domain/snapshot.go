package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountSnapshot is the dashboard view of one investor. It is a projection of the
// investor's holdings and allocated cash events and is never edited directly.
type AccountSnapshot struct {
	InvestorID       uuid.UUID       `gorm:"column:investor_id;type:uuid;primaryKey" json:"investor_id"`
	Balance          decimal.Decimal `gorm:"column:balance;type:numeric(38,18);not null;default:0" json:"balance"`
	AvailableBalance decimal.Decimal `gorm:"column:available_balance;type:numeric(38,18);not null;default:0" json:"available_balance"`
	TotalDeposits    decimal.Decimal `gorm:"column:total_deposits;type:numeric(38,18);not null;default:0" json:"total_deposits"`
	TotalWithdrawals decimal.Decimal `gorm:"column:total_withdrawals;type:numeric(38,18);not null;default:0" json:"total_withdrawals"`
	UnitsHeld        decimal.Decimal `gorm:"column:units_held;type:numeric(38,18);not null;default:0" json:"units_held"`
	NavPerUnit       decimal.Decimal `gorm:"column:nav_per_unit;type:numeric(38,18);not null;default:0" json:"nav_per_unit"`
	NavAsOf          time.Time       `gorm:"column:nav_as_of" json:"nav_as_of"`
	Version          int64           `gorm:"column:version;not null;default:1" json:"version"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (AccountSnapshot) TableName() string {
	return "account_snapshots"
}

// CashTotals are the cumulative allocated flows of one investor.
type CashTotals struct {
	Deposits           decimal.Decimal
	Withdrawals        decimal.Decimal
	PendingRedemptions decimal.Decimal
}

// ProjectSnapshot derives a snapshot from the investor's holdings, all marked at nav.
func ProjectSnapshot(investorID uuid.UUID, holdings []Holding, totals CashTotals, nav NavPoint) AccountSnapshot {
	balance := decimal.Zero
	units := decimal.Zero
	for _, h := range holdings {
		balance = balance.Add(h.CurrentValue)
		units = units.Add(h.UnitsHeld)
	}
	available := balance.Sub(totals.PendingRedemptions)
	if available.IsNegative() {
		available = decimal.Zero
	}
	return AccountSnapshot{
		InvestorID:       investorID,
		Balance:          RoundCash(balance),
		AvailableBalance: RoundCash(available),
		TotalDeposits:    RoundCash(totals.Deposits),
		TotalWithdrawals: RoundCash(totals.Withdrawals),
		UnitsHeld:        units,
		NavPerUnit:       nav.NavPerUnit,
		NavAsOf:          nav.AsOf,
	}
}
