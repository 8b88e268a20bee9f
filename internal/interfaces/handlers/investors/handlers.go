package investors

import (
	"encoding/json"
	"errors"

	invsvc "unitfund-backend/internal/application/investors"
	"unitfund-backend/internal/domain"
	"unitfund-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *invsvc.Service
}

func mapError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, invsvc.ErrInvalidInvestor):
		return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
	case errors.Is(err, invsvc.ErrEmailTaken):
		return response.Error(c, "Email already registered", fiber.StatusConflict, nil)
	case errors.Is(err, domain.ErrInvestorNotFound):
		return response.Error(c, "Investor not found", fiber.StatusNotFound, nil)
	}
	return err
}

// Create POST /api/v1/investors
func (h *Handlers) Create(c *fiber.Ctx) error {
	var in invsvc.CreateInput
	if err := json.Unmarshal(c.Body(), &in); err != nil || in.Email == "" {
		return response.Error(c, "email is required", fiber.StatusBadRequest, nil)
	}
	inv, err := h.Service.Create(c.UserContext(), in)
	if err != nil {
		return mapError(c, err)
	}
	return response.SuccessCreated(c, "Investor created", inv, nil)
}

// Get GET /api/v1/investors/:investor_id
func (h *Handlers) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("investor_id"))
	if err != nil {
		return response.Error(c, "investor_id must be a UUID", fiber.StatusBadRequest, nil)
	}
	inv, err := h.Service.Get(c.UserContext(), id)
	if err != nil {
		return mapError(c, err)
	}
	return response.Success(c, "Investor", inv, nil)
}

// SetKYC PUT /api/v1/investors/:investor_id/kyc
func (h *Handlers) SetKYC(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("investor_id"))
	if err != nil {
		return response.Error(c, "investor_id must be a UUID", fiber.StatusBadRequest, nil)
	}
	var body struct {
		KYCStatus domain.KYCStatus `json:"kyc_status"`
	}
	if err := json.Unmarshal(c.Body(), &body); err != nil || body.KYCStatus == "" {
		return response.Error(c, "kyc_status is required", fiber.StatusBadRequest, nil)
	}
	inv, err := h.Service.SetKYCStatus(c.UserContext(), id, body.KYCStatus)
	if err != nil {
		return mapError(c, err)
	}
	return response.Success(c, "KYC status updated", inv, nil)
}
