package valuation

import (
	"errors"

	"unitfund-backend/internal/application/nav"
	"unitfund-backend/internal/application/valuations"
	"unitfund-backend/internal/domain"
	"unitfund-backend/internal/infrastructure/feed"
	"unitfund-backend/internal/pkg/response"
	"unitfund-backend/internal/pkg/signature"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const signatureHeader = "X-Feed-Signature"

// Handlers exposes the valuation pipeline.
type Handlers struct {
	Pipeline      *nav.Pipeline
	Valuations    *valuations.Store
	SigningSecret string
}

// tickResponse maps a pipeline outcome to HTTP. A recorded NAV whose broadcast failed
// is still a success: the record stands and the next tick catches holdings up.
func tickResponse(c *fiber.Ctx, res *nav.TickResult, err error) error {
	if res != nil && res.Record != nil {
		if err != nil {
			return response.Success(c, "NAV recorded; revaluation incomplete", res, map[string]interface{}{"revaluation_error": err.Error()})
		}
		return response.Success(c, "NAV recorded", res, nil)
	}
	switch {
	case errors.Is(err, domain.ErrExternalFeedUnavailable):
		return response.Error(c, "Equity feed unavailable", fiber.StatusBadGateway, nil)
	case errors.Is(err, domain.ErrRetroactiveValuation), errors.Is(err, domain.ErrStaleValuation):
		return response.Error(c, err.Error(), fiber.StatusConflict, nil)
	case errors.Is(err, domain.ErrNonPositiveNav):
		return response.Error(c, err.Error(), fiber.StatusUnprocessableEntity, nil)
	case errors.Is(err, domain.ErrValuationNotFound):
		return response.Error(c, "No valuation recorded yet", fiber.StatusNotFound, nil)
	}
	return err
}

// Push POST /api/v1/valuation/ticks
func (h *Handlers) Push(c *fiber.Ctx) error {
	if h.SigningSecret == "" {
		return response.Error(c, "Feed push is not configured", fiber.StatusServiceUnavailable, nil)
	}
	body := c.Body()
	if err := signature.VerifySHA256Hex(h.SigningSecret, body, c.Get(signatureHeader)); err != nil {
		log.Warn().Err(err).Str("alert", "feed_signature").Msg("equity push signature rejected")
		return response.Error(c, "Invalid signature", fiber.StatusBadRequest, nil)
	}
	reading, err := feed.Decode(body)
	if err != nil {
		return response.Error(c, "Malformed equity reading", fiber.StatusBadRequest, nil)
	}
	res, err := h.Pipeline.Push(c.UserContext(), reading)
	return tickResponse(c, res, err)
}

// Poll POST /api/v1/valuation/poll
func (h *Handlers) Poll(c *fiber.Ctx) error {
	res, err := h.Pipeline.Poll(c.UserContext())
	return tickResponse(c, res, err)
}

// Revalue POST /api/v1/valuation/revalue
func (h *Handlers) Revalue(c *fiber.Ctx) error {
	res, err := h.Pipeline.Revalue(c.UserContext())
	return tickResponse(c, res, err)
}

// Latest GET /api/v1/valuation/latest
func (h *Handlers) Latest(c *fiber.Ctx) error {
	rec, err := h.Valuations.Latest(c.UserContext(), nil)
	if errors.Is(err, domain.ErrValuationNotFound) {
		return response.Success(c, "No valuation recorded yet; seed NAV applies", domain.SeedPoint(), nil)
	}
	if err != nil {
		return err
	}
	return response.Success(c, "Latest valuation", rec, nil)
}

// Records GET /api/v1/valuation/records?from=&to=
func (h *Handlers) Records(c *fiber.Ctx) error {
	from, to := c.Query("from"), c.Query("to")
	for _, d := range []string{from, to} {
		if d != "" && !domain.ValidDate(d) {
			return response.Error(c, "from and to must be YYYY-MM-DD", fiber.StatusBadRequest, nil)
		}
	}
	recs, err := h.Valuations.Range(c.UserContext(), from, to)
	if err != nil {
		return err
	}
	return response.Success(c, "Valuation records", recs, map[string]interface{}{"count": len(recs)})
}

// Record GET /api/v1/valuation/records/:date
func (h *Handlers) Record(c *fiber.Ctx) error {
	date := c.Params("date")
	if !domain.ValidDate(date) {
		return response.Error(c, "date must be YYYY-MM-DD", fiber.StatusBadRequest, nil)
	}
	rec, err := h.Valuations.ForDate(c.UserContext(), date)
	if errors.Is(err, domain.ErrValuationNotFound) {
		return response.Error(c, "No valuation recorded for "+date, fiber.StatusNotFound, nil)
	}
	if err != nil {
		return err
	}
	return response.Success(c, "Valuation record", rec, nil)
}
