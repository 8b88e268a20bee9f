package intake

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"unitfund-backend/internal/domain"
	"unitfund-backend/internal/pkg/signature"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NowPaymentsRail accepts crypto payments confirmed through NOWPayments IPN callbacks.
type NowPaymentsRail struct {
	IPNSecret string
}

type nowPaymentsIPN struct {
	PaymentID        json.Number     `json:"payment_id"`
	PaymentStatus    string          `json:"payment_status"`
	PayAmount        decimal.Decimal `json:"pay_amount"`
	ActuallyPaid     decimal.Decimal `json:"actually_paid"`
	PayCurrency      string          `json:"pay_currency"`
	PriceAmount      decimal.Decimal `json:"price_amount"`
	PriceCurrency    string          `json:"price_currency"`
	OrderID          string          `json:"order_id"`
	OrderDescription string          `json:"order_description"`
}

func (NowPaymentsRail) Provider() string { return "nowpayments" }

// Verify checks x-nowpayments-sig: HMAC-SHA512 over the body re-encoded with keys sorted.
func (r NowPaymentsRail) Verify(body []byte, header func(string) string) error {
	canonical, err := sortedJSON(body)
	if err != nil {
		return err
	}
	return signature.VerifySHA512Hex(r.IPNSecret, canonical, header("x-nowpayments-sig"))
}

func (NowPaymentsRail) Parse(body []byte) (*Confirmation, error) {
	var ipn nowPaymentsIPN
	if err := json.Unmarshal(body, &ipn); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidEvent, err)
	}
	if ipn.PaymentStatus != "finished" {
		return nil, fmt.Errorf("%w: nowpayments status %s", domain.ErrEventIgnored, ipn.PaymentStatus)
	}
	if ipn.PaymentID == "" {
		return nil, fmt.Errorf("%w: payment_id", domain.ErrInvalidEvent)
	}
	investorID, err := uuid.Parse(ipn.OrderID)
	if err != nil {
		return nil, fmt.Errorf("%w: order_id", domain.ErrInvalidEvent)
	}
	kind, err := domain.ParseEventKind(ipn.OrderDescription)
	if err != nil {
		return nil, err
	}

	// Underpayments credit the share of the price actually paid.
	amount := ipn.PriceAmount
	if ipn.PayAmount.IsPositive() && ipn.ActuallyPaid.IsPositive() {
		amount = ipn.ActuallyPaid.Mul(ipn.PriceAmount).DivRound(ipn.PayAmount, 24)
	}
	return &Confirmation{
		TransactionID: ipn.PaymentID.String(),
		InvestorID:    investorID,
		Kind:          kind,
		Currency:      strings.ToUpper(ipn.PriceCurrency),
		Amount:        domain.RoundCash(amount),
	}, nil
}

func sortedJSON(body []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode ipn: %w", err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
