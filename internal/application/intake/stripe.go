package intake

import (
	"crypto/hmac"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"unitfund-backend/internal/domain"
	"unitfund-backend/internal/pkg/signature"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const stripeTolerance = 5 * time.Minute

// StripeRail accepts card payments confirmed through Stripe webhooks.
type StripeRail struct {
	WebhookSecret string
	Now           func() time.Time
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type paymentIntentObject struct {
	ID             string            `json:"id"`
	AmountReceived int64             `json:"amount_received"`
	Currency       string            `json:"currency"`
	Status         string            `json:"status"`
	Metadata       map[string]string `json:"metadata"`
}

func (StripeRail) Provider() string { return "stripe" }

func (r StripeRail) Verify(body []byte, header func(string) string) error {
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	return verifyStripeSignature(body, header("Stripe-Signature"), r.WebhookSecret, now)
}

func (StripeRail) Parse(body []byte) (*Confirmation, error) {
	var event stripeEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidEvent, err)
	}
	if event.Type != "payment_intent.succeeded" {
		return nil, fmt.Errorf("%w: stripe %s", domain.ErrEventIgnored, event.Type)
	}
	var pi paymentIntentObject
	if err := json.Unmarshal(event.Data.Object, &pi); err != nil {
		return nil, fmt.Errorf("%w: payment intent: %v", domain.ErrInvalidEvent, err)
	}

	investorID, err := uuid.Parse(pi.Metadata["investor_id"])
	if err != nil {
		return nil, fmt.Errorf("%w: metadata.investor_id", domain.ErrInvalidEvent)
	}
	var accountID uuid.UUID
	if raw := pi.Metadata["account_id"]; raw != "" {
		if accountID, err = uuid.Parse(raw); err != nil {
			return nil, fmt.Errorf("%w: metadata.account_id", domain.ErrInvalidEvent)
		}
	}
	kind, err := domain.ParseEventKind(pi.Metadata["kind"])
	if err != nil {
		return nil, err
	}

	code := strings.ToUpper(pi.Currency)
	cur := money.GetCurrency(code)
	if cur == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedCurrency, pi.Currency)
	}
	return &Confirmation{
		TransactionID: pi.ID,
		InvestorID:    investorID,
		AccountID:     accountID,
		Kind:          kind,
		Currency:      code,
		Amount:        decimal.New(pi.AmountReceived, -int32(cur.Fraction)),
	}, nil
}

// verifyStripeSignature checks a Stripe-Signature header: t=<unix>,v1=<hex hmac of "t.body">.
func verifyStripeSignature(payload []byte, sigHeader, secret string, now time.Time) error {
	if sigHeader == "" || secret == "" {
		return signature.ErrMissing
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(sigHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return errors.New("invalid signature format")
	}

	expected := signature.SHA256Hex(secret, []byte(timestamp+"."+string(payload)))
	for _, sig := range signatures {
		if !hmac.Equal([]byte(sig), []byte(expected)) {
			continue
		}
		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return errors.New("invalid timestamp")
		}
		diff := now.Sub(time.Unix(ts, 0))
		if diff < 0 {
			diff = -diff
		}
		if diff > stripeTolerance {
			return errors.New("timestamp outside tolerance")
		}
		return nil
	}
	return signature.ErrMismatch
}
