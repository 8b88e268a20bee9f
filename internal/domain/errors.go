package domain

import "errors"

// Valuation errors are raised while establishing a day's NAV.
var (
	// ErrExternalFeedUnavailable indicates the equity feed could not be reached or
	// did not answer within the configured timeout. No NAV is written.
	ErrExternalFeedUnavailable = errors.New("external equity feed unavailable")

	// ErrRetroactiveValuation indicates a write for a date that already has a later record.
	ErrRetroactiveValuation = errors.New("valuation date is closed: a later record exists")

	// ErrStaleValuation indicates an equity reading older than the one already recorded for the date.
	ErrStaleValuation = errors.New("equity reading is older than the recorded valuation")

	ErrValuationNotFound = errors.New("valuation record not found")

	// ErrNonPositiveNav indicates units cannot be priced because NAV is zero or negative.
	ErrNonPositiveNav = errors.New("nav per unit is not positive")
)

// Intake errors are raised while normalizing provider confirmations.
var (
	// ErrUnrecognizedProvider indicates a webhook for a provider with no registered rail.
	ErrUnrecognizedProvider = errors.New("unrecognized payment provider")

	// ErrInvalidSignature indicates the payload signature did not verify.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrAmountMismatch indicates the confirmed amount differs from the quoted amount
	// by more than the configured tolerance.
	ErrAmountMismatch = errors.New("confirmed amount does not match quote")

	ErrUnsupportedCurrency = errors.New("unsupported currency")

	// ErrInvalidEvent indicates a confirmation missing required fields.
	ErrInvalidEvent = errors.New("invalid cash event")

	// ErrEventIgnored indicates a provider event that carries no confirmed cash.
	ErrEventIgnored = errors.New("event type not actionable")

	ErrInvalidTransition = errors.New("invalid cash event state transition")
)

// Allocation errors are raised while converting cash into units.
var (
	// ErrDuplicateEvent indicates the idempotency key was already processed. Callers
	// never see it: the processor answers with the prior result instead.
	ErrDuplicateEvent = errors.New("duplicate cash event")

	ErrBelowMinimum = errors.New("amount below product minimum")

	ErrInsufficientUnits = errors.New("insufficient units for redemption")

	// ErrKYCRequired indicates the investor is not verified.
	ErrKYCRequired = errors.New("investor verification required")

	// ErrConcurrentModification indicates a version check failed on write.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrAllocationFailed indicates retries were exhausted. Safe to retry later.
	ErrAllocationFailed = errors.New("allocation failed")
)

var (
	ErrInvestorNotFound = errors.New("investor not found")
	ErrHoldingNotFound  = errors.New("holding not found")
	ErrSnapshotNotFound = errors.New("account snapshot not found")
)

// Rejection codes persisted on rejected cash events.
const (
	RejectBelowMinimum      = "BELOW_MINIMUM"
	RejectInsufficientUnits = "INSUFFICIENT_UNITS"
	RejectKYCRequired       = "KYC_REQUIRED"

	// RejectAmountMismatch is reported to the provider but never persisted: the
	// event is refused at intake before it reaches the ledger.
	RejectAmountMismatch = "AMOUNT_MISMATCH"
)

var rejections = map[string]error{
	RejectBelowMinimum:      ErrBelowMinimum,
	RejectInsufficientUnits: ErrInsufficientUnits,
	RejectKYCRequired:       ErrKYCRequired,
}

// RejectionCode returns the persisted code for a final business rejection, or "" when
// err is not one (transient failures are never recorded as terminal).
func RejectionCode(err error) string {
	for code, target := range rejections {
		if errors.Is(err, target) {
			return code
		}
	}
	return ""
}

// RejectionError maps a persisted code back to its error.
func RejectionError(code string) error {
	if err, ok := rejections[code]; ok {
		return err
	}
	return errors.New("rejected: " + code)
}
