package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]interface{}{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func navAt(nav string, asOf time.Time) NavPoint {
	return NavPoint{NavPerUnit: dec(nav), Date: asOf.UTC().Format(DateLayout), AsOf: asOf}
}

func TestComputeNav_SeedWhenNoUnits(t *testing.T) {
	assertDecimal(t, "1000", ComputeNav(dec("5000"), decimal.Zero))
	assertDecimal(t, "1000", ComputeNav(dec("5000"), dec("-1")))
}

func TestComputeNav_DividesAndRounds(t *testing.T) {
	assertDecimal(t, "1050", ComputeNav(dec("1050000"), dec("1000")))
	assertDecimal(t, "333.3333", ComputeNav(dec("1000"), dec("3")))
}

func TestComputeNav_RoundsHalfToEven(t *testing.T) {
	assertDecimal(t, "1000.0000", ComputeNav(dec("1000.00005"), dec("1")))
	assertDecimal(t, "1000.0002", ComputeNav(dec("1000.00015"), dec("1")))
	assertDecimal(t, "1000.0002", ComputeNav(dec("1000.00025"), dec("1")))
}

func TestComputeNav_TimesUnitsApproximatesAUM(t *testing.T) {
	equity := dec("1234567.89")
	units := dec("987.654321")
	nav := ComputeNav(equity, units)
	diff := nav.Mul(units).Sub(equity).Abs()
	// Error bounded by half a NAV tick per unit.
	assert.True(t, diff.LessThanOrEqual(units.Mul(dec("0.00005"))), "diff %s", diff)
}

func TestHolding_SubscribeAtSeedNav(t *testing.T) {
	h := NewHolding(uuid.New(), uuid.Nil)
	assert.Equal(t, h.InvestorID, h.AccountID)

	units, err := h.Subscribe(dec("10000"), SeedPoint(), time.Now())
	require.NoError(t, err)

	assertDecimal(t, "10", units)
	assertDecimal(t, "10", h.UnitsHeld)
	assertDecimal(t, "10000", h.TotalInvested)
	assertDecimal(t, "1000", h.AvgPurchaseNav)
	assertDecimal(t, "10000", h.CurrentValue)
	assertDecimal(t, "0", h.UnrealizedPnL)
}

func TestHolding_RevalueChangesValueOnly(t *testing.T) {
	h := NewHolding(uuid.New(), uuid.Nil)
	_, err := h.Subscribe(dec("10000"), SeedPoint(), time.Now())
	require.NoError(t, err)

	updated := h.Revalue(navAt("1050", time.Now()), time.Now())
	require.True(t, updated)

	assertDecimal(t, "10", h.UnitsHeld)
	assertDecimal(t, "10000", h.TotalInvested)
	assertDecimal(t, "1000", h.AvgPurchaseNav)
	assertDecimal(t, "10500", h.CurrentValue)
	assertDecimal(t, "500", h.UnrealizedPnL)
}

func TestHolding_RevalueSkipsOlderNav(t *testing.T) {
	now := time.Now()
	h := NewHolding(uuid.New(), uuid.Nil)
	_, err := h.Subscribe(dec("1000"), navAt("1000", now), now)
	require.NoError(t, err)

	assert.False(t, h.Revalue(navAt("900", now.Add(-time.Hour)), now))
	assertDecimal(t, "1000", h.CurrentValue)
}

func TestHolding_WeightedAverageCost(t *testing.T) {
	now := time.Now()
	h := NewHolding(uuid.New(), uuid.Nil)
	_, err := h.Subscribe(dec("10000"), navAt("1000", now), now)
	require.NoError(t, err)
	_, err = h.Subscribe(dec("10000"), navAt("1250", now), now)
	require.NoError(t, err)

	assertDecimal(t, "18", h.UnitsHeld)
	assertDecimal(t, "20000", h.TotalInvested)
	assertDecimal(t, "1111.1111", h.AvgPurchaseNav)
	assertDecimal(t, "22500", h.CurrentValue)
}

func TestHolding_RedeemPartial(t *testing.T) {
	now := time.Now()
	h := NewHolding(uuid.New(), uuid.Nil)
	_, err := h.Subscribe(dec("10000"), navAt("1000", now), now)
	require.NoError(t, err)

	units, realized, err := h.Redeem(dec("2100"), navAt("1050", now), now)
	require.NoError(t, err)

	assertDecimal(t, "2", units)
	assertDecimal(t, "100", realized)
	assertDecimal(t, "8", h.UnitsHeld)
	assertDecimal(t, "8000", h.TotalInvested)
	assertDecimal(t, "1000", h.AvgPurchaseNav)
	assertDecimal(t, "8400", h.CurrentValue)
	assertDecimal(t, "100", h.RealizedPnL)
}

func TestHolding_RedeemFullValueClearsPosition(t *testing.T) {
	now := time.Now()
	h := NewHolding(uuid.New(), uuid.Nil)
	_, err := h.Subscribe(dec("1000"), navAt("3", now), now)
	require.NoError(t, err)

	full := RoundCash(h.UnitsHeld.Mul(dec("3.1")))
	units, _, err := h.Redeem(full, navAt("3.1", now), now)
	require.NoError(t, err)

	assert.True(t, units.Sign() > 0)
	assertDecimal(t, "0", h.UnitsHeld)
	assertDecimal(t, "0", h.TotalInvested)
	assertDecimal(t, "0", h.CurrentValue)
}

func TestHolding_RedeemMoreThanHeld(t *testing.T) {
	now := time.Now()
	h := NewHolding(uuid.New(), uuid.Nil)
	_, err := h.Subscribe(dec("1000"), navAt("1000", now), now)
	require.NoError(t, err)

	_, _, err = h.Redeem(dec("1000.01"), navAt("1000", now), now)
	assert.ErrorIs(t, err, ErrInsufficientUnits)
	assertDecimal(t, "1", h.UnitsHeld)
	assertDecimal(t, "1000", h.TotalInvested)
}

func TestHolding_RejectsNonPositiveNav(t *testing.T) {
	h := NewHolding(uuid.New(), uuid.Nil)
	_, err := h.Subscribe(dec("1000"), navAt("0", time.Now()), time.Now())
	assert.ErrorIs(t, err, ErrNonPositiveNav)
	assertDecimal(t, "0", h.UnitsHeld)
}

func TestHolding_RefusesNavOlderThanMark(t *testing.T) {
	now := time.Now()
	h := NewHolding(uuid.New(), uuid.Nil)
	_, err := h.Subscribe(dec("10000"), navAt("1000", now), now)
	require.NoError(t, err)
	require.True(t, h.Revalue(navAt("1100", now.Add(time.Hour)), now))

	_, err = h.Subscribe(dec("1000"), navAt("1000", now), now)
	assert.ErrorIs(t, err, ErrConcurrentModification)
	_, _, err = h.Redeem(dec("1000"), navAt("1000", now), now)
	assert.ErrorIs(t, err, ErrConcurrentModification)

	assertDecimal(t, "10", h.UnitsHeld)
	assertDecimal(t, "11000", h.CurrentValue)
	assertDecimal(t, "1100", h.LastNav)
}
