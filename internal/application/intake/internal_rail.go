package intake

import (
	"encoding/json"
	"fmt"

	"unitfund-backend/internal/domain"
	"unitfund-backend/internal/pkg/signature"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InternalRail accepts back-office deposits and withdrawals signed with X-Fund-Signature.
type InternalRail struct {
	Secret string
}

type internalConfirmation struct {
	TransactionID string          `json:"transaction_id"`
	InvestorID    string          `json:"investor_id"`
	AccountID     string          `json:"account_id"`
	Kind          string          `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
}

func (InternalRail) Provider() string { return "internal" }

func (r InternalRail) Verify(body []byte, header func(string) string) error {
	return signature.VerifySHA256Hex(r.Secret, body, header("X-Fund-Signature"))
}

func (InternalRail) Parse(body []byte) (*Confirmation, error) {
	var in internalConfirmation
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidEvent, err)
	}
	if in.TransactionID == "" {
		return nil, fmt.Errorf("%w: transaction_id", domain.ErrInvalidEvent)
	}
	investorID, err := uuid.Parse(in.InvestorID)
	if err != nil {
		return nil, fmt.Errorf("%w: investor_id", domain.ErrInvalidEvent)
	}
	var accountID uuid.UUID
	if in.AccountID != "" {
		if accountID, err = uuid.Parse(in.AccountID); err != nil {
			return nil, fmt.Errorf("%w: account_id", domain.ErrInvalidEvent)
		}
	}
	kind, err := domain.ParseEventKind(in.Kind)
	if err != nil {
		return nil, err
	}
	currency := in.Currency
	if currency == "" {
		currency = "USD"
	}
	return &Confirmation{
		TransactionID: in.TransactionID,
		InvestorID:    investorID,
		AccountID:     accountID,
		Kind:          kind,
		Currency:      currency,
		Amount:        in.Amount,
	}, nil
}
