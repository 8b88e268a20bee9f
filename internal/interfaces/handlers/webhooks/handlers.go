package webhooks

import (
	"context"
	"errors"

	"unitfund-backend/internal/application/allocation"
	"unitfund-backend/internal/domain"
	"unitfund-backend/internal/middleware"
	"unitfund-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Normalizer verifies and parses a provider webhook into a cash event.
type Normalizer interface {
	Normalize(ctx context.Context, provider string, body []byte, header func(string) string) (*domain.CashEvent, error)
}

// Allocator applies a normalized cash event.
type Allocator interface {
	Allocate(ctx context.Context, ev *domain.CashEvent) (*allocation.Result, error)
}

// Handlers receives payment confirmations from every provider.
type Handlers struct {
	Intake    Normalizer
	Allocator Allocator
}

// Receive POST /api/v1/webhooks/:provider
//
// 400: bad signature or malformed payload, never retried.
// 200: allocated, duplicate, ignored, or a business rejection the provider cannot fix by retrying.
// 500: transient failure; the provider retries and the idempotency key makes that safe.
func (h *Handlers) Receive(c *fiber.Ctx) error {
	provider := c.Params("provider")
	// fiber reuses the request buffer after the handler returns
	body := append([]byte(nil), c.Body()...)
	header := func(k string) string { return c.Get(k) }
	ctx := c.UserContext()
	traceID := middleware.GetTraceID(c)

	ev, err := h.Intake.Normalize(ctx, provider, body, header)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnrecognizedProvider):
			return response.Error(c, "Unknown provider", fiber.StatusNotFound, nil)
		case errors.Is(err, domain.ErrEventIgnored):
			return response.Success(c, "Event ignored", fiber.Map{"received": true}, nil)
		case errors.Is(err, domain.ErrInvalidSignature):
			log.Warn().Err(err).Str("provider", provider).Str("trace_id", traceID).Str("alert", "webhook_signature").Msg("webhook signature rejected")
			return response.Error(c, "Invalid signature", fiber.StatusBadRequest, nil)
		case errors.Is(err, domain.ErrAmountMismatch):
			log.Warn().Err(err).Str("provider", provider).Str("trace_id", traceID).Msg("webhook amount mismatch")
			return response.Rejected(c, domain.RejectAmountMismatch)
		case errors.Is(err, domain.ErrInvalidEvent), errors.Is(err, domain.ErrUnsupportedCurrency), errors.Is(err, domain.ErrInvalidTransition):
			log.Warn().Err(err).Str("provider", provider).Str("trace_id", traceID).Msg("malformed webhook discarded")
			return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
		default:
			return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
		}
	}

	res, err := h.Allocator.Allocate(ctx, ev)
	if err != nil {
		if code := domain.RejectionCode(err); code != "" {
			return response.Rejected(c, code)
		}
		if errors.Is(err, domain.ErrInvalidEvent) || errors.Is(err, domain.ErrInvalidTransition) {
			return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
		}
		log.Error().Err(err).Str("provider", provider).Str("idempotency_key", ev.IdempotencyKey).Str("trace_id", traceID).Msg("allocation failed; provider will retry")
		return response.Error(c, "Allocation failed, retry later", fiber.StatusInternalServerError, nil)
	}
	msg := "Cash event allocated"
	if res.Replayed {
		msg = "Duplicate event"
	}
	return response.Success(c, msg, res, nil)
}
