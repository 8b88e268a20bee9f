package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type HoldingEventKind string

const (
	HoldingSubscribed HoldingEventKind = "subscription"
	HoldingRedeemed   HoldingEventKind = "redemption"
	HoldingRevalued   HoldingEventKind = "revaluation"
)

// HoldingEvent is one append-only entry in an investor's valuation history.
type HoldingEvent struct {
	Seq           int64            `gorm:"column:seq;primaryKey;autoIncrement" json:"seq"`
	ID            uuid.UUID        `gorm:"column:id;type:uuid;uniqueIndex;not null" json:"id"`
	InvestorID    uuid.UUID        `gorm:"column:investor_id;type:uuid;not null;index" json:"investor_id"`
	HoldingID     uuid.UUID        `gorm:"column:holding_id;type:uuid;not null" json:"holding_id"`
	CashEventID   *uuid.UUID       `gorm:"column:cash_event_id;type:uuid" json:"cash_event_id,omitempty"`
	Kind          HoldingEventKind `gorm:"column:kind;not null" json:"kind"`
	UnitsDelta    decimal.Decimal  `gorm:"column:units_delta;type:numeric(38,18);not null" json:"units_delta"`
	CashAmount    decimal.Decimal  `gorm:"column:cash_amount;type:numeric(38,18);not null" json:"cash_amount"`
	NavPerUnit    decimal.Decimal  `gorm:"column:nav_per_unit;type:numeric(38,18);not null" json:"nav_per_unit"`
	UnitsAfter    decimal.Decimal  `gorm:"column:units_after;type:numeric(38,18);not null" json:"units_after"`
	ValueAfter    decimal.Decimal  `gorm:"column:value_after;type:numeric(38,18);not null" json:"value_after"`
	InvestedAfter decimal.Decimal  `gorm:"column:invested_after;type:numeric(38,18);not null" json:"invested_after"`
	OccurredAt    time.Time        `gorm:"column:occurred_at;not null" json:"occurred_at"`
}

func (HoldingEvent) TableName() string {
	return "holding_events"
}

// BeforeCreate sets the UUID if not set.
func (e *HoldingEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// NewHoldingEvent records the state of h after a change of the given kind.
func NewHoldingEvent(kind HoldingEventKind, h *Holding, unitsDelta, cash decimal.Decimal, cashEventID *uuid.UUID) HoldingEvent {
	return HoldingEvent{
		InvestorID:    h.InvestorID,
		HoldingID:     h.ID,
		CashEventID:   cashEventID,
		Kind:          kind,
		UnitsDelta:    unitsDelta,
		CashAmount:    cash,
		NavPerUnit:    h.LastNav,
		UnitsAfter:    h.UnitsHeld,
		ValueAfter:    h.CurrentValue,
		InvestedAfter: h.TotalInvested,
		OccurredAt:    h.LastNavUpdate,
	}
}
