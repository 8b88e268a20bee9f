package quotes

import (
	"encoding/json"
	"errors"

	quotesvc "unitfund-backend/internal/application/quotes"
	"unitfund-backend/internal/domain"
	"unitfund-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *quotesvc.Service
}

// Create POST /api/v1/quotes
func (h *Handlers) Create(c *fiber.Ctx) error {
	var in quotesvc.CreateInput
	if err := json.Unmarshal(c.Body(), &in); err != nil {
		return response.Error(c, "investor_id, provider, kind and amount_usd are required", fiber.StatusBadRequest, nil)
	}
	q, err := h.Service.Create(c.UserContext(), in)
	if err != nil {
		switch {
		case errors.Is(err, quotesvc.ErrInvalidQuote), errors.Is(err, domain.ErrUnrecognizedProvider):
			return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
		case errors.Is(err, domain.ErrInsufficientUnits):
			return response.Error(c, "Amount exceeds available balance", fiber.StatusUnprocessableEntity, nil)
		case errors.Is(err, quotesvc.ErrStripeNotConfigured):
			return response.Error(c, "Card payments are not configured", fiber.StatusServiceUnavailable, nil)
		}
		return err
	}
	return response.SuccessCreated(c, "Quote created", q, nil)
}
