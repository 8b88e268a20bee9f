package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type QuoteStatus string

const (
	QuoteOpen     QuoteStatus = "open"
	QuoteConsumed QuoteStatus = "consumed"
	QuoteExpired  QuoteStatus = "expired"
)

// Quote is the amount an investor was shown before paying. Confirmations are
// checked against it.
type Quote struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Provider     string          `gorm:"column:provider;not null;uniqueIndex:idx_quote_ref,priority:1" json:"provider"`
	ProviderRef  string          `gorm:"column:provider_ref;not null;uniqueIndex:idx_quote_ref,priority:2" json:"provider_ref"`
	InvestorID   uuid.UUID       `gorm:"column:investor_id;type:uuid;not null;index" json:"investor_id"`
	Kind         EventKind       `gorm:"column:kind;not null" json:"kind"`
	AmountUSD    decimal.Decimal `gorm:"column:amount_usd;type:numeric(38,18);not null" json:"amount_usd"`
	Status       QuoteStatus     `gorm:"column:status;not null;default:open" json:"status"`
	ClientSecret string          `gorm:"-" json:"client_secret,omitempty"`
	ExpiresAt    time.Time       `gorm:"column:expires_at;not null" json:"expires_at"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (Quote) TableName() string {
	return "quotes"
}

// BeforeCreate sets the UUID if not set and opens the quote.
func (q *Quote) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	if q.Status == "" {
		q.Status = QuoteOpen
	}
	return nil
}

// Open reports whether the quote can still be matched at now.
func (q Quote) Open(now time.Time) bool {
	return q.Status == QuoteOpen && now.Before(q.ExpiresAt)
}

// WithinTolerance reports whether confirmed differs from the quoted amount by at most
// tolerancePct percent of the quote.
func (q Quote) WithinTolerance(confirmed, tolerancePct decimal.Decimal) bool {
	allowed := q.AmountUSD.Abs().Mul(tolerancePct).Div(hundred)
	return confirmed.Sub(q.AmountUSD).Abs().LessThanOrEqual(allowed)
}
