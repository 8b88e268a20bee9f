package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ValuationRecord is the fund's NAV for one trading date. Dates merge on write.
type ValuationRecord struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Date             string          `gorm:"column:date;size:10;uniqueIndex;not null" json:"date"`
	NavPerUnit       decimal.Decimal `gorm:"column:nav_per_unit;type:numeric(38,18);not null" json:"nav_per_unit"`
	TotalAUM         decimal.Decimal `gorm:"column:total_aum;type:numeric(38,18);not null" json:"total_aum"`
	UnitsOutstanding decimal.Decimal `gorm:"column:units_outstanding;type:numeric(38,18);not null" json:"units_outstanding"`
	DailyPnL         decimal.Decimal `gorm:"column:daily_pnl;type:numeric(38,18);not null" json:"daily_pnl"`
	DailyReturnPct   decimal.Decimal `gorm:"column:daily_return_pct;type:numeric(38,18);not null" json:"daily_return_pct"`
	SourceEquity     decimal.Decimal `gorm:"column:source_equity;type:numeric(38,18);not null" json:"source_equity"`
	SourceBalance    decimal.Decimal `gorm:"column:source_balance;type:numeric(38,18);not null" json:"source_balance"`
	SourceTimestamp  time.Time       `gorm:"column:source_timestamp;not null" json:"source_timestamp"`
	Version          int64           `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (ValuationRecord) TableName() string {
	return "valuation_records"
}

// BeforeCreate sets the UUID if not set.
func (v *ValuationRecord) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// Point returns the NAV of this record as a NavPoint.
func (v ValuationRecord) Point() NavPoint {
	return NavPoint{NavPerUnit: v.NavPerUnit, Date: v.Date, AsOf: v.SourceTimestamp}
}
