package accounts

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"unitfund-backend/internal/application/history"
	"unitfund-backend/internal/application/holdings"
	"unitfund-backend/internal/application/snapshots"
	"unitfund-backend/internal/domain"
	"unitfund-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Handlers serves the read side of investor accounts.
type Handlers struct {
	Snapshots *snapshots.Service
	Holdings  *holdings.Service
	History   *history.Service
}

func investorParam(c *fiber.Ctx) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params("investor_id"))
	return id, err == nil
}

func badInvestor(c *fiber.Ctx) error {
	return response.Error(c, "investor_id must be a UUID", fiber.StatusBadRequest, nil)
}

// Snapshot GET /api/v1/accounts/:investor_id/snapshot
func (h *Handlers) Snapshot(c *fiber.Ctx) error {
	id, ok := investorParam(c)
	if !ok {
		return badInvestor(c)
	}
	snap, err := h.Snapshots.Get(c.UserContext(), id)
	if errors.Is(err, domain.ErrSnapshotNotFound) {
		return response.Error(c, "Account snapshot not found", fiber.StatusNotFound, nil)
	}
	if err != nil {
		return err
	}
	return response.Success(c, "Account snapshot", snap, nil)
}

// Rebuild POST /api/v1/accounts/:investor_id/rebuild
func (h *Handlers) Rebuild(c *fiber.Ctx) error {
	id, ok := investorParam(c)
	if !ok {
		return badInvestor(c)
	}
	snap, err := h.Snapshots.Rebuild(c.UserContext(), id)
	if err != nil {
		return err
	}
	return response.Success(c, "Account snapshot rebuilt", snap, nil)
}

// GetHoldings GET /api/v1/accounts/:investor_id/holdings
func (h *Handlers) GetHoldings(c *fiber.Ctx) error {
	id, ok := investorParam(c)
	if !ok {
		return badInvestor(c)
	}
	list, err := h.Holdings.ForInvestor(c.UserContext(), nil, id)
	if err != nil {
		return err
	}
	return response.Success(c, "Holdings", list, map[string]interface{}{"count": len(list)})
}

// GetHistory GET /api/v1/accounts/:investor_id/history?after=&limit=
//
// With ?format=ndjson the events are streamed one JSON object per line straight from
// the database cursor; otherwise one page is returned in the standard envelope.
func (h *Handlers) GetHistory(c *fiber.Ctx) error {
	id, ok := investorParam(c)
	if !ok {
		return badInvestor(c)
	}
	after, err := strconv.ParseInt(c.Query("after", "0"), 10, 64)
	if err != nil || after < 0 {
		return response.Error(c, "after must be a non-negative integer", fiber.StatusBadRequest, nil)
	}
	limit, err := strconv.Atoi(c.Query("limit", "0"))
	if err != nil || limit < 0 {
		return response.Error(c, "limit must be a non-negative integer", fiber.StatusBadRequest, nil)
	}

	if c.Query("format") == "ndjson" {
		c.Set(fiber.HeaderContentType, "application/x-ndjson")
		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			enc := json.NewEncoder(w)
			// the request context is gone once the stream writer runs
			err := h.History.Stream(context.Background(), id, after, limit, func(ev domain.HoldingEvent) error {
				if err := enc.Encode(ev); err != nil {
					return err
				}
				return w.Flush()
			})
			if err != nil {
				log.Warn().Err(err).Str("investor_id", id.String()).Msg("history stream aborted")
			}
			_ = w.Flush()
		})
		return nil
	}

	page, err := h.History.Page(c.UserContext(), id, after, limit)
	if err != nil {
		return err
	}
	return response.Success(c, "Holding history", page.Events, map[string]interface{}{
		"next_after": page.NextAfter,
		"has_more":   page.HasMore,
	})
}
