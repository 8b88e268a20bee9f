// Package quotes issues the amounts investors are shown before paying or withdrawing.
package quotes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"unitfund-backend/internal/application/snapshots"
	"unitfund-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrInvalidQuote        = errors.New("invalid quote request")
	ErrStripeNotConfigured = errors.New("stripe not configured")
)

const defaultTTL = 24 * time.Hour

type Service struct {
	DB        *gorm.DB
	Stripe    PaymentIntentCreator
	Snapshots *snapshots.Service
	TTL       time.Duration
	Now       func() time.Time
}

type CreateInput struct {
	InvestorID  uuid.UUID       `json:"investor_id"`
	Provider    string          `json:"provider"`
	Kind        string          `json:"kind"`
	AmountUSD   decimal.Decimal `json:"amount_usd"`
	ProviderRef string          `json:"provider_ref"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Create records a quote. Card deposits open a Stripe PaymentIntent whose ID becomes
// the provider reference; other rails supply their own reference.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Quote, error) {
	if in.InvestorID == uuid.Nil {
		return nil, fmt.Errorf("%w: investor_id is required", ErrInvalidQuote)
	}
	kind, err := domain.ParseEventKind(in.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuote, err)
	}
	amount := domain.RoundCash(in.AmountUSD)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount_usd must be positive", ErrInvalidQuote)
	}

	q := &domain.Quote{
		Provider:   in.Provider,
		InvestorID: in.InvestorID,
		Kind:       kind,
		AmountUSD:  amount,
		Status:     domain.QuoteOpen,
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	q.ExpiresAt = s.now().Add(ttl)

	switch in.Provider {
	case "stripe":
		if kind != domain.KindSubscription {
			return nil, fmt.Errorf("%w: card quotes are deposits only", ErrInvalidQuote)
		}
		if s.Stripe == nil {
			return nil, ErrStripeNotConfigured
		}
		pi, err := s.Stripe.Create(ctx, amount.Shift(2).IntPart(), "usd", map[string]string{
			"investor_id": in.InvestorID.String(),
			"kind":        string(kind),
		})
		if err != nil {
			return nil, fmt.Errorf("create payment intent: %w", err)
		}
		q.ProviderRef = pi.ID
		q.ClientSecret = pi.ClientSecret
	case "nowpayments", "internal":
		if in.ProviderRef == "" {
			return nil, fmt.Errorf("%w: provider_ref is required for %s", ErrInvalidQuote, in.Provider)
		}
		q.ProviderRef = in.ProviderRef
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnrecognizedProvider, in.Provider)
	}

	if kind == domain.KindRedemption {
		if err := s.checkAvailable(ctx, in.InvestorID, amount); err != nil {
			return nil, err
		}
	}
	if err := s.DB.WithContext(ctx).Create(q).Error; err != nil {
		return nil, err
	}

	if kind == domain.KindRedemption && s.Snapshots != nil {
		if _, err := s.Snapshots.Rebuild(ctx, in.InvestorID); err != nil {
			log.Warn().Err(err).Str("investor_id", in.InvestorID.String()).Msg("snapshot refresh after quote failed")
		}
	}
	log.Info().
		Str("quote_id", q.ID.String()).
		Str("provider", q.Provider).
		Str("kind", string(q.Kind)).
		Str("amount_usd", q.AmountUSD.String()).
		Msg("quote created")
	return q, nil
}

func (s *Service) checkAvailable(ctx context.Context, investorID uuid.UUID, amount decimal.Decimal) error {
	var snap domain.AccountSnapshot
	err := s.DB.WithContext(ctx).Where("investor_id = ?", investorID).First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrInsufficientUnits
	}
	if err != nil {
		return err
	}
	if amount.GreaterThan(snap.AvailableBalance) {
		return fmt.Errorf("%w: available %s", domain.ErrInsufficientUnits, snap.AvailableBalance)
	}
	return nil
}

// Find returns the quote for a provider reference, or nil when there is none.
func (s *Service) Find(ctx context.Context, provider, ref string) (*domain.Quote, error) {
	var q domain.Quote
	err := s.DB.WithContext(ctx).Where("provider = ? AND provider_ref = ?", provider, ref).First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// ExpireStale closes open quotes past their expiry and returns how many were closed.
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&domain.Quote{}).
		Where("status = ? AND expires_at <= ?", domain.QuoteOpen, s.now()).
		Update("status", domain.QuoteExpired)
	return res.RowsAffected, res.Error
}
