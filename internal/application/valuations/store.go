package valuations

import (
	"context"
	"errors"
	"fmt"

	"unitfund-backend/internal/domain"

	"gorm.io/gorm"
)

// Store persists one ValuationRecord per trading date.
type Store struct {
	DB *gorm.DB
}

func (s *Store) db(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.DB.WithContext(ctx)
}

// Latest returns the most recent record, or ErrValuationNotFound.
func (s *Store) Latest(ctx context.Context, tx *gorm.DB) (*domain.ValuationRecord, error) {
	var rec domain.ValuationRecord
	err := s.db(ctx, tx).Order("date DESC").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrValuationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CurrentNav returns the latest NAV, or the seed NAV when nothing has been recorded.
func (s *Store) CurrentNav(ctx context.Context, tx *gorm.DB) (domain.NavPoint, error) {
	rec, err := s.Latest(ctx, tx)
	if errors.Is(err, domain.ErrValuationNotFound) {
		return domain.SeedPoint(), nil
	}
	if err != nil {
		return domain.NavPoint{}, err
	}
	return rec.Point(), nil
}

// ForDate returns the record for date, or ErrValuationNotFound.
func (s *Store) ForDate(ctx context.Context, date string) (*domain.ValuationRecord, error) {
	var rec domain.ValuationRecord
	err := s.DB.WithContext(ctx).Where("date = ?", date).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrValuationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// PriorTo returns the latest record strictly before date, or ErrValuationNotFound.
func (s *Store) PriorTo(ctx context.Context, date string) (*domain.ValuationRecord, error) {
	var rec domain.ValuationRecord
	err := s.DB.WithContext(ctx).Where("date < ?", date).Order("date DESC").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrValuationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Range lists records between from and to inclusive, oldest first. Empty bounds are open.
func (s *Store) Range(ctx context.Context, from, to string) ([]domain.ValuationRecord, error) {
	q := s.DB.WithContext(ctx).Order("date ASC")
	if from != "" {
		q = q.Where("date >= ?", from)
	}
	if to != "" {
		q = q.Where("date <= ?", to)
	}
	var recs []domain.ValuationRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// Upsert writes rec for its date. An existing record for the date is overwritten in
// place under a version check; a date with a later record is closed, and a reading
// older than the stored one is refused.
func (s *Store) Upsert(ctx context.Context, rec *domain.ValuationRecord) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var later int64
		if err := tx.Model(&domain.ValuationRecord{}).Where("date > ?", rec.Date).Count(&later).Error; err != nil {
			return err
		}
		if later > 0 {
			return fmt.Errorf("%w: %s", domain.ErrRetroactiveValuation, rec.Date)
		}

		var existing domain.ValuationRecord
		err := tx.Where("date = ?", rec.Date).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rec.Version = 1
			if err := tx.Create(rec).Error; err != nil {
				// Most likely a concurrent first write for the same date; the retry re-reads it.
				return fmt.Errorf("%w: %v", domain.ErrConcurrentModification, err)
			}
			return nil
		}
		if err != nil {
			return err
		}
		if rec.SourceTimestamp.Before(existing.SourceTimestamp) {
			return fmt.Errorf("%w: %s", domain.ErrStaleValuation, rec.Date)
		}

		res := tx.Model(&domain.ValuationRecord{}).
			Where("id = ? AND version = ?", existing.ID, existing.Version).
			Updates(map[string]interface{}{
				"nav_per_unit":      rec.NavPerUnit,
				"total_aum":         rec.TotalAUM,
				"units_outstanding": rec.UnitsOutstanding,
				"daily_pnl":         rec.DailyPnL,
				"daily_return_pct":  rec.DailyReturnPct,
				"source_equity":     rec.SourceEquity,
				"source_balance":    rec.SourceBalance,
				"source_timestamp":  rec.SourceTimestamp,
				"version":           existing.Version + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrConcurrentModification
		}
		rec.ID = existing.ID
		rec.Version = existing.Version + 1
		rec.CreatedAt = existing.CreatedAt
		return nil
	})
}
