// Package history reads the append-only holding event log.
package history

import (
	"context"
	"errors"

	"unitfund-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// ErrStop may be returned by a Stream callback to end iteration without error.
var ErrStop = errors.New("stop streaming")

type Service struct {
	DB *gorm.DB
}

// Page is one slice of an investor's history. NextAfter is the cursor for the next
// call; it equals the input cursor when nothing was returned.
type Page struct {
	Events    []domain.HoldingEvent `json:"events"`
	NextAfter int64                 `json:"next_after"`
	HasMore   bool                  `json:"has_more"`
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Stream calls fn for each event of the investor with seq > afterSeq, oldest first,
// reading rows one at a time. A limit of 0 or less streams everything.
func (s *Service) Stream(ctx context.Context, investorID uuid.UUID, afterSeq int64, limit int, fn func(domain.HoldingEvent) error) error {
	q := s.DB.WithContext(ctx).Model(&domain.HoldingEvent{}).
		Where("investor_id = ? AND seq > ?", investorID, afterSeq).
		Order("seq ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	rows, err := q.Rows()
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var ev domain.HoldingEvent
		if err := s.DB.ScanRows(rows, &ev); err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	return rows.Err()
}

// Page returns up to limit events after the cursor.
func (s *Service) Page(ctx context.Context, investorID uuid.UUID, afterSeq int64, limit int) (*Page, error) {
	limit = clampLimit(limit)
	out := &Page{Events: []domain.HoldingEvent{}, NextAfter: afterSeq}
	// one extra row tells us whether another page exists
	err := s.Stream(ctx, investorID, afterSeq, limit+1, func(ev domain.HoldingEvent) error {
		if len(out.Events) == limit {
			out.HasMore = true
			return ErrStop
		}
		out.Events = append(out.Events, ev)
		out.NextAfter = ev.Seq
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
