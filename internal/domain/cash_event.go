package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventKind is the direction of a cash event.
type EventKind string

const (
	KindSubscription EventKind = "subscription"
	KindRedemption   EventKind = "redemption"
)

// ParseEventKind maps provider vocabulary to a kind. Empty means subscription.
func ParseEventKind(s string) (EventKind, error) {
	switch s {
	case "", "subscription", "deposit":
		return KindSubscription, nil
	case "redemption", "withdrawal":
		return KindRedemption, nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, s)
}

// EventStatus is the lifecycle state of a cash event.
type EventStatus string

const (
	StatusReceived   EventStatus = "received"
	StatusNormalized EventStatus = "normalized"
	StatusAllocated  EventStatus = "allocated"
	StatusRejected   EventStatus = "rejected"
)

var transitions = map[EventStatus][]EventStatus{
	StatusReceived:   {StatusNormalized, StatusRejected},
	StatusNormalized: {StatusAllocated, StatusRejected},
}

// Terminal reports whether no further transition is allowed.
func (s EventStatus) Terminal() bool {
	return s == StatusAllocated || s == StatusRejected
}

// CashEvent is a confirmed deposit or withdrawal from a payment provider.
type CashEvent struct {
	ID                    uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	IdempotencyKey        string          `gorm:"column:idempotency_key;uniqueIndex;not null" json:"idempotency_key"`
	Provider              string          `gorm:"column:provider;not null" json:"provider"`
	ProviderTransactionID string          `gorm:"column:provider_transaction_id;not null" json:"provider_transaction_id"`
	InvestorID            uuid.UUID       `gorm:"column:investor_id;type:uuid;not null;index" json:"investor_id"`
	AccountID             uuid.UUID       `gorm:"column:account_id;type:uuid;not null" json:"account_id"`
	Kind                  EventKind       `gorm:"column:kind;not null" json:"kind"`
	AmountUSD             decimal.Decimal `gorm:"column:amount_usd;type:numeric(38,18);not null" json:"amount_usd"`
	Currency              string          `gorm:"column:currency;not null" json:"currency"`
	OriginalAmount        decimal.Decimal `gorm:"column:original_amount;type:numeric(38,18);not null" json:"original_amount"`
	Status                EventStatus     `gorm:"column:status;not null;index" json:"status"`
	RejectReason          string          `gorm:"column:reject_reason" json:"reject_reason,omitempty"`
	Result                datatypes.JSON  `gorm:"column:result" json:"result,omitempty"`
	RawPayload            datatypes.JSON  `gorm:"column:raw_payload" json:"-"`
	ReceivedAt            time.Time       `gorm:"column:received_at;not null" json:"received_at"`
	ProcessedAt           *time.Time      `gorm:"column:processed_at" json:"processed_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

func (CashEvent) TableName() string {
	return "cash_events"
}

// BeforeCreate sets the UUID if not set.
func (e *CashEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// IdempotencyKey is the processing key for one provider transaction.
func IdempotencyKey(provider, providerTxID string) string {
	return provider + ":" + providerTxID
}

// Transition moves the event to next, or fails if the lifecycle forbids it.
func (e *CashEvent) Transition(next EventStatus) error {
	for _, allowed := range transitions[e.Status] {
		if allowed == next {
			e.Status = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, next)
}

// Reject moves the event to rejected with a persisted reason code.
func (e *CashEvent) Reject(code string, now time.Time) error {
	if err := e.Transition(StatusRejected); err != nil {
		return err
	}
	e.RejectReason = code
	e.ProcessedAt = &now
	return nil
}

// Validate checks the fields allocation depends on.
func (e *CashEvent) Validate() error {
	switch {
	case e.InvestorID == uuid.Nil:
		return fmt.Errorf("%w: investor is required", ErrInvalidEvent)
	case e.Provider == "" || e.ProviderTransactionID == "":
		return fmt.Errorf("%w: provider transaction is required", ErrInvalidEvent)
	case e.Kind != KindSubscription && e.Kind != KindRedemption:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	case !e.AmountUSD.IsPositive():
		return fmt.Errorf("%w: amount must be positive", ErrInvalidEvent)
	}
	return nil
}
