package reward

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staking-ledger/internal/domain"
)

const startDate = int64(1704067200) // 2024-01-01T00:00:00Z

func TestRatePerDayFromAnnualBps(t *testing.T) {
	rate := RatePerDayFromAnnualBps(DefaultAnnualRateBps)
	assert.Equal(t, "273972602739726", rate.Dec())

	assert.True(t, RatePerDayFromAnnualBps(0).IsZero())
}

func TestCalculator_OneDayFixedPoint(t *testing.T) {
	calc := NewDefaultCalculator()

	got, err := calc.Compute(uint256.NewInt(20_000_000), startDate, startDate+SecondsPerDay)
	require.NoError(t, err)
	assert.Equal(t, uint64(5479), got.Uint64())
}

func TestCalculator_ZeroAtOrBeforeStart(t *testing.T) {
	calc := NewDefaultCalculator()
	amount := uint256.NewInt(20_000_000)

	for _, asOf := range []int64{startDate, startDate - 1, 0, -SecondsPerDay} {
		got, err := calc.Compute(amount, startDate, asOf)
		require.NoError(t, err)
		assert.True(t, got.IsZero(), "asOf=%d", asOf)
	}
}

func TestCalculator_ZeroAmount(t *testing.T) {
	calc := NewDefaultCalculator()

	got, err := calc.Compute(new(uint256.Int), startDate, startDate+SecondsPerDay)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	got, err = calc.Compute(nil, startDate, startDate+SecondsPerDay)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestCalculator_Monotonic(t *testing.T) {
	calc := NewDefaultCalculator()
	amount := uint256.NewInt(20_000_000)

	prev := new(uint256.Int)
	for elapsed := int64(0); elapsed <= 30*SecondsPerDay; elapsed += 3607 {
		got, err := calc.Compute(amount, startDate, startDate+elapsed)
		require.NoError(t, err)
		assert.False(t, got.Lt(prev), "reward decreased at elapsed=%d", elapsed)
		prev = got
	}
}

func TestCalculator_StrictlyIncreasingPerDay(t *testing.T) {
	calc := NewDefaultCalculator()
	amount := uint256.NewInt(20_000_000)

	prev := new(uint256.Int)
	for day := int64(1); day <= 365; day++ {
		got, err := calc.Compute(amount, startDate, startDate+day*SecondsPerDay)
		require.NoError(t, err)
		assert.True(t, got.Gt(prev), "reward did not grow on day %d", day)
		prev = got
	}
}

func TestCalculator_FullYearIsAnnualRate(t *testing.T) {
	calc := NewDefaultCalculator()

	got, err := calc.Compute(uint256.NewInt(1_000_000_000), startDate, startDate+DaysPerYear*SecondsPerDay)
	require.NoError(t, err)

	// 10% of 1000 tokens at 6 decimals, minus truncation of the daily rate.
	assert.InDelta(t, 100_000_000, float64(got.Uint64()), 1)
}

func TestCalculator_CustomRate(t *testing.T) {
	// 1% per day
	calc := NewCalculator(new(uint256.Int).Div(RateScale, uint256.NewInt(100)))

	got, err := calc.Compute(uint256.NewInt(1000), startDate, startDate+SecondsPerDay)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), got.Uint64())

	got, err = calc.Compute(uint256.NewInt(1000), startDate, startDate+SecondsPerDay/2)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), got.Uint64())
}

func TestCalculator_NilRateAccruesNothing(t *testing.T) {
	calc := NewCalculator(nil)

	got, err := calc.Compute(uint256.NewInt(20_000_000), startDate, startDate+SecondsPerDay)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestCalculator_LargeAmountDoesNotWrap(t *testing.T) {
	calc := NewDefaultCalculator()
	amount := new(uint256.Int).Lsh(uint256.NewInt(1), 200)

	got, err := calc.Compute(amount, startDate, startDate+SecondsPerDay)
	require.NoError(t, err)

	want, _ := new(uint256.Int).MulDivOverflow(amount, RatePerDayFromAnnualBps(DefaultAnnualRateBps), RateScale)
	assert.Equal(t, want.Dec(), got.Dec())
}

func TestCalculator_Overflow(t *testing.T) {
	maxRate := new(uint256.Int).SetAllOne()
	calc := NewCalculator(maxRate)

	_, err := calc.Compute(uint256.NewInt(1), startDate, startDate+2)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestCalculator_ComputeFor(t *testing.T) {
	calc := NewDefaultCalculator()
	end := startDate + 10
	inv := &domain.Investigation{
		ID:        1,
		User:      common.HexToAddress("0x47ac0Fb4F2D84898e4D9E7b4DaB3C24507a6D503"),
		Token:     common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
		Amount:    uint256.NewInt(20_000_000),
		StartDate: startDate,
		EndDate:   &end,
	}

	got, err := calc.ComputeFor(inv, startDate+SecondsPerDay)
	require.NoError(t, err)
	assert.Equal(t, uint64(5479), got.Uint64())

	got, err = calc.ComputeFor(nil, startDate+SecondsPerDay)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}
