package observability

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestToFloat(t *testing.T) {
	assert.Equal(t, float64(0), toFloat(nil))
	assert.Equal(t, float64(5479), toFloat(uint256.NewInt(5479)))

	max := new(uint256.Int).SetAllOne()
	assert.InDelta(t, math.Pow(2, 256), toFloat(max), math.Pow(2, 204))
}

func TestRecordOperation(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.OperationsTotal.WithLabelValues("deposit", "ok"))
	RecordOperation("deposit", "ok", 10*time.Millisecond)
	after := testutil.ToFloat64(DefaultMetrics.OperationsTotal.WithLabelValues("deposit", "ok"))
	assert.Equal(t, before+1, after)
	assert.Greater(t, testutil.ToFloat64(DefaultMetrics.LastSuccessfulOperation), float64(0))
}

func TestRecordPayout(t *testing.T) {
	token := "0xpayout"
	RecordPayout(token, "withdraw", uint256.NewInt(100), uint256.NewInt(7))
	RecordPayout(token, "withdraw", uint256.NewInt(50), nil)

	assert.Equal(t, float64(150), testutil.ToFloat64(DefaultMetrics.AmountPaidOut.WithLabelValues(token, "withdraw")))
	assert.Equal(t, float64(7), testutil.ToFloat64(DefaultMetrics.RewardPaid.WithLabelValues(token)))
}

func TestRecordEvent(t *testing.T) {
	RecordEvent("TEST_KIND", nil)
	RecordEvent("TEST_KIND", errors.New("boom"))
	RecordEvent("TEST_KIND", errors.New("boom"))

	assert.Equal(t, float64(1), testutil.ToFloat64(DefaultMetrics.EventsRecorded.WithLabelValues("TEST_KIND")))
	assert.Equal(t, float64(2), testutil.ToFloat64(DefaultMetrics.EventStoreErrors.WithLabelValues("TEST_KIND")))
}

func TestUpdateTokenBalance(t *testing.T) {
	UpdateTokenBalance("0xbal", uint256.NewInt(40_000_000))
	assert.Equal(t, float64(40_000_000), testutil.ToFloat64(DefaultMetrics.TokenBalance.WithLabelValues("0xbal")))
}
