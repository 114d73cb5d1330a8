// Package reward computes time-proportional staking rewards.
package reward

import (
	"errors"

	"github.com/holiman/uint256"

	"staking-ledger/internal/domain"
)

const (
	// SecondsPerDay is the accrual period of a daily rate.
	SecondsPerDay = 86400

	// DaysPerYear converts an annual rate into a daily one.
	DaysPerYear = 365

	// BasisPoints is the denominator of rates expressed in bps.
	BasisPoints = 10000

	// DefaultAnnualRateBps is the fixed 10% annual rate of the ledger.
	DefaultAnnualRateBps = 1000
)

// RateScale is the fixed-point scale of a per-day rate (1e18 = 100% per day).
var RateScale = uint256.NewInt(1_000_000_000_000_000_000)

// ErrOverflow is returned when a reward does not fit into 256 bits.
var ErrOverflow = errors.New("reward overflows uint256")

// RatePerDayFromAnnualBps converts an annual rate in basis points into a
// per-unit per-day rate scaled by RateScale. The result is truncated.
func RatePerDayFromAnnualBps(bps uint64) *uint256.Int {
	rate := new(uint256.Int).Mul(RateScale, uint256.NewInt(bps))
	return rate.Div(rate, uint256.NewInt(BasisPoints*DaysPerYear))
}

// Calculator accrues reward linearly over elapsed seconds at a fixed daily rate.
// It holds no mutable state and is safe for concurrent use.
type Calculator struct {
	ratePerDay *uint256.Int
	divisor    *uint256.Int // RateScale * SecondsPerDay
}

// NewCalculator creates a calculator for a per-day rate scaled by RateScale.
func NewCalculator(ratePerDay *uint256.Int) *Calculator {
	rate := new(uint256.Int)
	if ratePerDay != nil {
		rate.Set(ratePerDay)
	}
	return &Calculator{
		ratePerDay: rate,
		divisor:    new(uint256.Int).Mul(RateScale, uint256.NewInt(SecondsPerDay)),
	}
}

// NewDefaultCalculator creates a calculator for DefaultAnnualRateBps.
func NewDefaultCalculator() *Calculator {
	return NewCalculator(RatePerDayFromAnnualBps(DefaultAnnualRateBps))
}

// RatePerDay returns a copy of the configured per-day rate.
func (c *Calculator) RatePerDay() *uint256.Int {
	return c.ratePerDay.Clone()
}

// Compute returns amount * ratePerDay * (asOf - startDate) / (RateScale * SecondsPerDay).
// Timestamps are Unix seconds. Returns zero when asOf <= startDate.
func (c *Calculator) Compute(amount *uint256.Int, startDate, asOf int64) (*uint256.Int, error) {
	if amount == nil || amount.IsZero() || asOf <= startDate {
		return new(uint256.Int), nil
	}

	elapsed := uint256.NewInt(uint64(asOf - startDate))
	weight, overflow := new(uint256.Int).MulOverflow(c.ratePerDay, elapsed)
	if overflow {
		return nil, ErrOverflow
	}

	// 512-bit intermediate product, so amount*weight never wraps.
	reward, overflow := new(uint256.Int).MulDivOverflow(amount, weight, c.divisor)
	if overflow {
		return nil, ErrOverflow
	}
	return reward, nil
}

// ComputeFor returns the reward accrued by an investigation as of asOf.
// Settlement state is ignored: a settled record is estimated as if still open.
func (c *Calculator) ComputeFor(inv *domain.Investigation, asOf int64) (*uint256.Int, error) {
	if inv == nil {
		return new(uint256.Int), nil
	}
	return c.Compute(inv.Amount, inv.StartDate, asOf)
}
