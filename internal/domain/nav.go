package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Decimal places for each kind of quantity.
const (
	NavScale  int32 = 4
	CashScale int32 = 2
	UnitScale int32 = 18
	// divisionScale is the working precision for quotients before final rounding.
	divisionScale int32 = 24
)

// SeedNav is the NAV per unit used while no units are outstanding.
var SeedNav = decimal.NewFromInt(1000)

var hundred = decimal.NewFromInt(100)

// ComputeNav returns equity / units rounded half-even to four places, or SeedNav when
// no units are outstanding.
func ComputeNav(equity, units decimal.Decimal) decimal.Decimal {
	if units.Sign() <= 0 {
		return SeedNav.RoundBank(NavScale)
	}
	return equity.DivRound(units, divisionScale).RoundBank(NavScale)
}

// RoundCash rounds a currency amount half-even to cents.
func RoundCash(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(CashScale)
}

// NavPoint is a NAV per unit together with the reading it came from. Points order by AsOf.
type NavPoint struct {
	NavPerUnit decimal.Decimal `json:"nav_per_unit"`
	Date       string          `json:"date"`
	AsOf       time.Time       `json:"as_of"`
}

// SeedPoint is the NAV used before any valuation record exists.
func SeedPoint() NavPoint {
	return NavPoint{NavPerUnit: SeedNav.RoundBank(NavScale)}
}

// Before reports whether p was computed from an older reading than other.
func (p NavPoint) Before(other NavPoint) bool {
	return p.AsOf.Before(other.AsOf)
}

// EquityReading is one observation from the external equity feed.
type EquityReading struct {
	Equity    decimal.Decimal `json:"equity"`
	Balance   decimal.Decimal `json:"balance"`
	Timestamp time.Time       `json:"timestamp"`
}

// TradingDate is the UTC calendar date a reading belongs to.
func (r EquityReading) TradingDate() string {
	return r.Timestamp.UTC().Format(DateLayout)
}

// DateLayout is the storage format for valuation dates.
const DateLayout = "2006-01-02"

// ValidDate reports whether s is a calendar date in DateLayout.
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}
