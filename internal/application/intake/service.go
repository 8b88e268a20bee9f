// Package intake verifies provider confirmations and normalizes them into cash events.
package intake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"unitfund-backend/internal/domain"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Confirmation is a provider's statement that cash moved, before currency conversion.
type Confirmation struct {
	TransactionID string
	InvestorID    uuid.UUID
	AccountID     uuid.UUID
	Kind          domain.EventKind
	Currency      string
	Amount        decimal.Decimal
}

// Rail is one payment provider's webhook dialect.
type Rail interface {
	Provider() string
	// Verify authenticates the raw body. header reads request headers case-insensitively.
	Verify(body []byte, header func(string) string) error
	// Parse extracts the confirmation. Non-actionable events return ErrEventIgnored.
	Parse(body []byte) (*Confirmation, error)
}

// QuoteFinder looks up the quote a confirmation settles. It returns nil, nil when none exists.
type QuoteFinder interface {
	Find(ctx context.Context, provider, ref string) (*domain.Quote, error)
}

type Service struct {
	Rails        []Rail
	Quotes       QuoteFinder
	Rates        map[string]decimal.Decimal
	TolerancePct decimal.Decimal
	Now          func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) rail(provider string) (Rail, bool) {
	for _, r := range s.Rails {
		if r.Provider() == provider {
			return r, true
		}
	}
	return nil, false
}

// Normalize turns a raw webhook into a normalized CashEvent ready for allocation.
func (s *Service) Normalize(ctx context.Context, provider string, body []byte, header func(string) string) (*domain.CashEvent, error) {
	rail, ok := s.rail(provider)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnrecognizedProvider, provider)
	}
	if err := rail.Verify(body, header); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidSignature, provider, err)
	}
	conf, err := rail.Parse(body)
	if err != nil {
		return nil, err
	}

	usd, err := s.toUSD(conf.Amount, conf.Currency)
	if err != nil {
		return nil, err
	}

	now := s.now()
	ev := &domain.CashEvent{
		Provider:              provider,
		ProviderTransactionID: conf.TransactionID,
		InvestorID:            conf.InvestorID,
		AccountID:             conf.AccountID,
		Kind:                  conf.Kind,
		AmountUSD:             usd,
		Currency:              strings.ToUpper(conf.Currency),
		OriginalAmount:        conf.Amount,
		Status:                domain.StatusReceived,
		RawPayload:            datatypes.JSON(body),
		ReceivedAt:            now,
	}
	if ev.AccountID == uuid.Nil {
		ev.AccountID = ev.InvestorID
	}
	ev.IdempotencyKey = domain.IdempotencyKey(provider, conf.TransactionID)
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	if err := s.matchQuote(ctx, ev, now); err != nil {
		return nil, err
	}
	if err := ev.Transition(domain.StatusNormalized); err != nil {
		return nil, err
	}

	log.Debug().
		Str("provider", provider).
		Str("idempotency_key", ev.IdempotencyKey).
		Str("kind", string(ev.Kind)).
		Str("amount_usd", ev.AmountUSD.String()).
		Msg("cash event normalized")
	return ev, nil
}

func (s *Service) toUSD(amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" || code == money.USD {
		return domain.RoundCash(amount), nil
	}
	if money.GetCurrency(code) == nil {
		return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrUnsupportedCurrency, currency)
	}
	rate, ok := s.Rates[code]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: no rate for %s", domain.ErrUnsupportedCurrency, code)
	}
	return domain.RoundCash(amount.Mul(rate)), nil
}

// matchQuote compares the confirmation with the quote issued for the transaction, if
// any. Expired and consumed quotes still bind: a late or replayed confirmation must
// carry the quoted investor, kind and amount.
func (s *Service) matchQuote(ctx context.Context, ev *domain.CashEvent, now time.Time) error {
	if s.Quotes == nil {
		return nil
	}
	q, err := s.Quotes.Find(ctx, ev.Provider, ev.ProviderTransactionID)
	if err != nil {
		return err
	}
	if q == nil {
		return nil
	}
	if !q.Open(now) {
		log.Debug().
			Str("quote_id", q.ID.String()).
			Str("status", string(q.Status)).
			Str("idempotency_key", ev.IdempotencyKey).
			Msg("confirmation for closed quote")
	}
	if q.InvestorID != ev.InvestorID || q.Kind != ev.Kind {
		return fmt.Errorf("%w: confirmation does not match quote %s", domain.ErrInvalidEvent, q.ID)
	}
	if !q.WithinTolerance(ev.AmountUSD, s.TolerancePct) {
		return fmt.Errorf("%w: quoted %s, confirmed %s", domain.ErrAmountMismatch, q.AmountUSD, ev.AmountUSD)
	}
	return nil
}
