package allocation

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sink receives allocated results after commit. Delivery is best effort: a sink's
// failure never affects the allocation.
type Sink interface {
	Name() string
	HoldingChanged(ctx context.Context, res Result) error
}

const sinkTimeout = 10 * time.Second

func (p *Processor) emit(res Result) {
	for _, s := range p.Sinks {
		go func(s Sink) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("sink", s.Name()).Msg("holding sink panicked")
				}
			}()
			ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
			defer cancel()
			if err := s.HoldingChanged(ctx, res); err != nil {
				log.Warn().Err(err).Str("sink", s.Name()).Str("idempotency_key", res.IdempotencyKey).Msg("holding sink failed")
			}
		}(s)
	}
}

// AuditSink writes every allocation to the structured log.
type AuditSink struct{}

func (AuditSink) Name() string { return "audit" }

func (AuditSink) HoldingChanged(_ context.Context, res Result) error {
	log.Info().
		Str("event", "holding_changed").
		Str("event_id", res.EventID.String()).
		Str("investor_id", res.InvestorID.String()).
		Str("holding_id", res.Holding.ID.String()).
		Str("units_held", res.Holding.UnitsHeld.String()).
		Str("current_value", res.Holding.CurrentValue.String()).
		Str("total_invested", res.Holding.TotalInvested.String()).
		Msg("audit")
	return nil
}
