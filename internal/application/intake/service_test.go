package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"unitfund-backend/internal/domain"
	"unitfund-backend/internal/pkg/signature"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	stripeSecret   = "whsec_test_secret_123"
	ipnSecret      = "ipn_secret"
	internalSecret = "internal_secret"
)

type quoteStub map[string]*domain.Quote

func (q quoteStub) Find(_ context.Context, provider, ref string) (*domain.Quote, error) {
	return q[provider+":"+ref], nil
}

func newService(quotes quoteStub) *Service {
	return &Service{
		Rails: []Rail{
			StripeRail{WebhookSecret: stripeSecret},
			NowPaymentsRail{IPNSecret: ipnSecret},
			InternalRail{Secret: internalSecret},
		},
		Quotes:       quotes,
		Rates:        map[string]decimal.Decimal{"USD": decimal.NewFromInt(1), "EUR": decimal.RequireFromString("1.08"), "JPY": decimal.RequireFromString("0.0067")},
		TolerancePct: decimal.NewFromInt(1),
	}
}

func headers(kv ...string) func(string) string {
	h := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return h.Get
}

func signStripe(payload []byte, at time.Time) string {
	ts := fmt.Sprintf("%d", at.Unix())
	return fmt.Sprintf("t=%s,v1=%s", ts, signature.SHA256Hex(stripeSecret, []byte(ts+"."+string(payload))))
}

func stripePayload(t *testing.T, eventType, piID string, investor uuid.UUID, cents int64, currency string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"id":   "evt_" + piID,
		"type": eventType,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":              piID,
				"amount_received": cents,
				"currency":        currency,
				"status":          "succeeded",
				"metadata":        map[string]string{"investor_id": investor.String(), "kind": "deposit"},
			},
		},
	})
	require.NoError(t, err)
	return body
}

func TestStripe_NormalizesMinorUnits(t *testing.T) {
	s := newService(nil)
	investor := uuid.New()

	cases := []struct {
		currency string
		cents    int64
		usd      string
	}{
		{"usd", 1050, "10.5"},
		{"eur", 10000, "108"},
		{"jpy", 5000, "33.5"},
	}
	for _, tc := range cases {
		t.Run(tc.currency, func(t *testing.T) {
			body := stripePayload(t, "payment_intent.succeeded", "pi_"+tc.currency, investor, tc.cents, tc.currency)
			ev, err := s.Normalize(context.Background(), "stripe", body, headers("Stripe-Signature", signStripe(body, time.Now())))
			require.NoError(t, err)
			assert.Equal(t, domain.StatusNormalized, ev.Status)
			assert.Equal(t, "stripe:pi_"+tc.currency, ev.IdempotencyKey)
			assert.Equal(t, investor, ev.AccountID)
			assert.Equal(t, domain.KindSubscription, ev.Kind)
			assert.True(t, ev.AmountUSD.Equal(decimal.RequireFromString(tc.usd)), "got %s", ev.AmountUSD)
		})
	}
}

func TestStripe_Rejections(t *testing.T) {
	s := newService(nil)
	investor := uuid.New()
	ctx := context.Background()
	body := stripePayload(t, "payment_intent.succeeded", "pi_1", investor, 1000, "usd")

	_, err := s.Normalize(ctx, "stripe", body, headers("Stripe-Signature", "t=123,v1=invalid"))
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	_, err = s.Normalize(ctx, "stripe", body, headers())
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	_, err = s.Normalize(ctx, "stripe", body, headers("Stripe-Signature", signStripe(body, time.Now().Add(-10*time.Minute))))
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	other := stripePayload(t, "charge.refunded", "pi_2", investor, 1000, "usd")
	_, err = s.Normalize(ctx, "stripe", other, headers("Stripe-Signature", signStripe(other, time.Now())))
	assert.ErrorIs(t, err, domain.ErrEventIgnored)

	unknown := stripePayload(t, "payment_intent.succeeded", "pi_3", investor, 1000, "xyz")
	_, err = s.Normalize(ctx, "stripe", unknown, headers("Stripe-Signature", signStripe(unknown, time.Now())))
	assert.ErrorIs(t, err, domain.ErrUnsupportedCurrency)

	_, err = s.Normalize(ctx, "paypal", body, headers())
	assert.ErrorIs(t, err, domain.ErrUnrecognizedProvider)
}

func signIPN(t *testing.T, body []byte) string {
	t.Helper()
	canonical, err := sortedJSON(body)
	require.NoError(t, err)
	return signature.SHA512Hex(ipnSecret, canonical)
}

func TestNowPayments(t *testing.T) {
	s := newService(nil)
	investor := uuid.New()
	ctx := context.Background()

	// Keys deliberately out of order: the signature covers the sorted form.
	body := []byte(`{"payment_status":"finished","payment_id":5077125051,"pay_amount":1.0,"actually_paid":0.5,` +
		`"pay_currency":"btc","price_amount":2000,"price_currency":"usd","order_id":"` + investor.String() +
		`","order_description":"deposit"}`)
	ev, err := s.Normalize(ctx, "nowpayments", body, headers("x-nowpayments-sig", signIPN(t, body)))
	require.NoError(t, err)
	assert.Equal(t, "nowpayments:5077125051", ev.IdempotencyKey)
	assert.True(t, ev.AmountUSD.Equal(decimal.NewFromInt(1000)), "got %s", ev.AmountUSD)

	waiting := []byte(`{"payment_status":"waiting","payment_id":1,"order_id":"` + investor.String() + `"}`)
	_, err = s.Normalize(ctx, "nowpayments", waiting, headers("x-nowpayments-sig", signIPN(t, waiting)))
	assert.ErrorIs(t, err, domain.ErrEventIgnored)

	_, err = s.Normalize(ctx, "nowpayments", body, headers("x-nowpayments-sig", signIPN(t, waiting)))
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func internalBody(investor uuid.UUID, txID, kind, amount string) []byte {
	return []byte(fmt.Sprintf(`{"transaction_id":%q,"investor_id":%q,"kind":%q,"amount":%q}`, txID, investor, kind, amount))
}

func TestInternal_Withdrawal(t *testing.T) {
	s := newService(nil)
	investor := uuid.New()

	body := internalBody(investor, "wd-1", "withdrawal", "250.00")
	ev, err := s.Normalize(context.Background(), "internal", body, headers("X-Fund-Signature", signature.SHA256Hex(internalSecret, body)))
	require.NoError(t, err)
	assert.Equal(t, domain.KindRedemption, ev.Kind)
	assert.True(t, ev.AmountUSD.Equal(decimal.NewFromInt(250)))
	assert.Equal(t, "USD", ev.Currency)

	bad := internalBody(investor, "wd-2", "withdrawal", "-5")
	_, err = s.Normalize(context.Background(), "internal", bad, headers("X-Fund-Signature", signature.SHA256Hex(internalSecret, bad)))
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)
}

func TestQuoteTolerance(t *testing.T) {
	investor := uuid.New()
	quote := &domain.Quote{
		Provider: "internal", ProviderRef: "dep-1", InvestorID: investor,
		Kind: domain.KindSubscription, AmountUSD: decimal.NewFromInt(1000),
		Status: domain.QuoteOpen, ExpiresAt: time.Now().Add(time.Hour),
	}
	s := newService(quoteStub{"internal:dep-1": quote})
	ctx := context.Background()

	within := internalBody(investor, "dep-1", "deposit", "1005")
	_, err := s.Normalize(ctx, "internal", within, headers("X-Fund-Signature", signature.SHA256Hex(internalSecret, within)))
	assert.NoError(t, err)

	beyond := internalBody(investor, "dep-1", "deposit", "1100")
	_, err = s.Normalize(ctx, "internal", beyond, headers("X-Fund-Signature", signature.SHA256Hex(internalSecret, beyond)))
	assert.ErrorIs(t, err, domain.ErrAmountMismatch)

	stranger := internalBody(uuid.New(), "dep-1", "deposit", "1000")
	_, err = s.Normalize(ctx, "internal", stranger, headers("X-Fund-Signature", signature.SHA256Hex(internalSecret, stranger)))
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)
}

func TestQuoteBindsAfterExpiry(t *testing.T) {
	investor := uuid.New()
	ctx := context.Background()
	for _, status := range []domain.QuoteStatus{domain.QuoteOpen, domain.QuoteExpired, domain.QuoteConsumed} {
		t.Run(string(status), func(t *testing.T) {
			quote := &domain.Quote{
				Provider: "internal", ProviderRef: "dep-late", InvestorID: investor,
				Kind: domain.KindSubscription, AmountUSD: decimal.NewFromInt(1000),
				Status: status, ExpiresAt: time.Now().Add(-time.Minute),
			}
			s := newService(quoteStub{"internal:dep-late": quote})

			inflated := internalBody(investor, "dep-late", "deposit", "50000")
			_, err := s.Normalize(ctx, "internal", inflated, headers("X-Fund-Signature", signature.SHA256Hex(internalSecret, inflated)))
			assert.ErrorIs(t, err, domain.ErrAmountMismatch)

			redirected := internalBody(investor, "dep-late", "withdrawal", "1000")
			_, err = s.Normalize(ctx, "internal", redirected, headers("X-Fund-Signature", signature.SHA256Hex(internalSecret, redirected)))
			assert.ErrorIs(t, err, domain.ErrInvalidEvent)

			exact := internalBody(investor, "dep-late", "deposit", "1000")
			ev, err := s.Normalize(ctx, "internal", exact, headers("X-Fund-Signature", signature.SHA256Hex(internalSecret, exact)))
			require.NoError(t, err)
			assert.True(t, ev.AmountUSD.Equal(decimal.NewFromInt(1000)))
		})
	}
}
