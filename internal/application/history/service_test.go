package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"unitfund-backend/internal/domain"
	"unitfund-backend/internal/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func appendEvents(t *testing.T, db *gorm.DB, investorID uuid.UUID, n int) {
	t.Helper()
	base := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		ev := domain.HoldingEvent{
			InvestorID:    investorID,
			HoldingID:     investorID,
			Kind:          domain.HoldingRevalued,
			UnitsDelta:    decimal.Zero,
			CashAmount:    decimal.Zero,
			NavPerUnit:    decimal.NewFromInt(int64(1000 + i)),
			UnitsAfter:    decimal.NewFromInt(10),
			ValueAfter:    decimal.NewFromInt(int64(10000 + 10*i)),
			InvestedAfter: decimal.NewFromInt(10000),
			OccurredAt:    base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, db.Create(&ev).Error)
	}
}

func TestStream_OrderedAndScopedToInvestor(t *testing.T) {
	db := testutil.NewDB(t)
	s := &Service{DB: db}
	investor, other := uuid.New(), uuid.New()
	appendEvents(t, db, investor, 3)
	appendEvents(t, db, other, 2)

	var navs []string
	var last int64
	err := s.Stream(context.Background(), investor, 0, 0, func(ev domain.HoldingEvent) error {
		assert.Equal(t, investor, ev.InvestorID)
		assert.Greater(t, ev.Seq, last)
		last = ev.Seq
		navs = append(navs, ev.NavPerUnit.String())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1000", "1001", "1002"}, navs)
}

func TestStream_CallbackError(t *testing.T) {
	db := testutil.NewDB(t)
	s := &Service{DB: db}
	investor := uuid.New()
	appendEvents(t, db, investor, 2)

	boom := errors.New("client gone")
	calls := 0
	err := s.Stream(context.Background(), investor, 0, 0, func(domain.HoldingEvent) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestPage_Cursor(t *testing.T) {
	db := testutil.NewDB(t)
	s := &Service{DB: db}
	investor := uuid.New()
	appendEvents(t, db, investor, 5)
	ctx := context.Background()

	first, err := s.Page(ctx, investor, 0, 2)
	require.NoError(t, err)
	require.Len(t, first.Events, 2)
	assert.True(t, first.HasMore)

	second, err := s.Page(ctx, investor, first.NextAfter, 2)
	require.NoError(t, err)
	require.Len(t, second.Events, 2)
	assert.True(t, second.HasMore)
	assert.Greater(t, second.Events[0].Seq, first.Events[1].Seq)

	third, err := s.Page(ctx, investor, second.NextAfter, 2)
	require.NoError(t, err)
	require.Len(t, third.Events, 1)
	assert.False(t, third.HasMore)

	empty, err := s.Page(ctx, investor, third.NextAfter, 2)
	require.NoError(t, err)
	assert.Empty(t, empty.Events)
	assert.Equal(t, third.NextAfter, empty.NextAfter)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, clampLimit(0))
	assert.Equal(t, MaxLimit, clampLimit(MaxLimit+5))
	assert.Equal(t, 7, clampLimit(7))
}
