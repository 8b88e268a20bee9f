package nav

import (
	"context"

	"unitfund-backend/internal/application/revaluation"
	"unitfund-backend/internal/domain"

	"github.com/rs/zerolog/log"
)

// Revaluer marks every holding to a committed NAV.
type Revaluer interface {
	RevalueAll(ctx context.Context, nav domain.NavPoint) (*revaluation.Report, error)
}

// TickResult is the outcome of one valuation tick.
type TickResult struct {
	Record      *domain.ValuationRecord `json:"record"`
	Revaluation *revaluation.Report     `json:"revaluation,omitempty"`
}

// Pipeline runs a tick end to end: record NAV, then broadcast it. Nothing is broadcast
// when the record was not written.
type Pipeline struct {
	Engine   *Engine
	Revaluer Revaluer
}

// Poll reads the feed and runs the tick.
func (p *Pipeline) Poll(ctx context.Context) (*TickResult, error) {
	rec, err := p.Engine.Poll(ctx)
	if err != nil {
		return nil, err
	}
	return p.broadcast(ctx, rec)
}

// Push runs the tick for a reading delivered by the feed.
func (p *Pipeline) Push(ctx context.Context, reading domain.EquityReading) (*TickResult, error) {
	rec, err := p.Engine.Apply(ctx, reading)
	if err != nil {
		return nil, err
	}
	return p.broadcast(ctx, rec)
}

// Revalue re-broadcasts the latest recorded NAV.
func (p *Pipeline) Revalue(ctx context.Context) (*TickResult, error) {
	rec, err := p.Engine.Valuations.Latest(ctx, nil)
	if err != nil {
		return nil, err
	}
	return p.broadcast(ctx, rec)
}

func (p *Pipeline) broadcast(ctx context.Context, rec *domain.ValuationRecord) (*TickResult, error) {
	out := &TickResult{Record: rec}
	if p.Revaluer == nil {
		return out, nil
	}
	report, err := p.Revaluer.RevalueAll(ctx, rec.Point())
	if err != nil {
		// The record stands; the next tick or a manual revalue catches holdings up.
		log.Error().Err(err).Str("date", rec.Date).Msg("revaluation broadcast failed")
		return out, err
	}
	out.Revaluation = report
	return out, nil
}
