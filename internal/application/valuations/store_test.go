package valuations

import (
	"context"
	"testing"
	"time"

	"unitfund-backend/internal/domain"
	"unitfund-backend/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(date string, nav string, at time.Time) *domain.ValuationRecord {
	return &domain.ValuationRecord{
		Date:             date,
		NavPerUnit:       decimal.RequireFromString(nav),
		TotalAUM:         decimal.NewFromInt(10000),
		UnitsOutstanding: decimal.NewFromInt(10),
		DailyPnL:         decimal.Zero,
		DailyReturnPct:   decimal.Zero,
		SourceEquity:     decimal.NewFromInt(10000),
		SourceBalance:    decimal.NewFromInt(10000),
		SourceTimestamp:  at,
	}
}

func TestCurrentNav_SeedWhenEmpty(t *testing.T) {
	s := &Store{DB: testutil.NewDB(t)}

	nav, err := s.CurrentNav(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, nav.NavPerUnit.Equal(domain.SeedNav))
	assert.True(t, nav.AsOf.IsZero())
}

func TestUpsert_OverwritesSameDate(t *testing.T) {
	s := &Store{DB: testutil.NewDB(t)}
	ctx := context.Background()
	t0 := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

	require.NoError(t, s.Upsert(ctx, record("2026-03-02", "1000", t0)))
	second := record("2026-03-02", "1050", t0.Add(time.Hour))
	require.NoError(t, s.Upsert(ctx, second))
	assert.EqualValues(t, 2, second.Version)

	recs, err := s.Range(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].NavPerUnit.Equal(decimal.NewFromInt(1050)))

	nav, err := s.CurrentNav(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", nav.Date)
}

func TestUpsert_RefusesStaleReading(t *testing.T) {
	s := &Store{DB: testutil.NewDB(t)}
	ctx := context.Background()
	t0 := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

	require.NoError(t, s.Upsert(ctx, record("2026-03-02", "1000", t0)))
	err := s.Upsert(ctx, record("2026-03-02", "990", t0.Add(-time.Minute)))
	assert.ErrorIs(t, err, domain.ErrStaleValuation)
}

func TestUpsert_RefusesClosedDate(t *testing.T) {
	s := &Store{DB: testutil.NewDB(t)}
	ctx := context.Background()
	t0 := time.Date(2026, 3, 3, 14, 0, 0, 0, time.UTC)

	require.NoError(t, s.Upsert(ctx, record("2026-03-03", "1000", t0)))
	err := s.Upsert(ctx, record("2026-03-02", "990", t0.Add(-24*time.Hour)))
	assert.ErrorIs(t, err, domain.ErrRetroactiveValuation)
}

func TestPriorToAndRange(t *testing.T) {
	s := &Store{DB: testutil.NewDB(t)}
	ctx := context.Background()
	t0 := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

	for i, nav := range []string{"1000", "1010", "1020"} {
		at := t0.AddDate(0, 0, i)
		require.NoError(t, s.Upsert(ctx, record(at.Format(domain.DateLayout), nav, at)))
	}

	prior, err := s.PriorTo(ctx, "2026-03-04")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-03", prior.Date)

	_, err = s.PriorTo(ctx, "2026-03-02")
	assert.ErrorIs(t, err, domain.ErrValuationNotFound)

	recs, err := s.Range(ctx, "2026-03-03", "")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "2026-03-03", recs[0].Date)

	rec, err := s.ForDate(ctx, "2026-03-04")
	require.NoError(t, err)
	assert.True(t, rec.NavPerUnit.Equal(decimal.NewFromInt(1020)))
}
