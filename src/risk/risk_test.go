package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"perpagent/src/model"
)

func candleSeries(opens, highs, lows, closes []float64) []model.Candle {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var out []model.Candle
	for i := range opens {
		out = append(out, model.Candle{
			Datetime: base.Add(time.Duration(i) * 5 * time.Minute),
			Open:     decimal.NewFromFloat(opens[i]), High: decimal.NewFromFloat(highs[i]),
			Low: decimal.NewFromFloat(lows[i]), Close: decimal.NewFromFloat(closes[i]),
		})
	}
	return out
}

func TestComputeATRReturnsZeroWithInsufficientHistory(t *testing.T) {
	candles := candleSeries([]float64{1, 2}, []float64{1, 2}, []float64{1, 2}, []float64{1, 2})
	assert.True(t, ComputeATR(candles, 14).IsZero())
}

func TestComputeATRNonZeroWithEnoughHistory(t *testing.T) {
	opens := make([]float64, 16)
	highs := make([]float64, 16)
	lows := make([]float64, 16)
	closes := make([]float64, 16)
	for i := range opens {
		opens[i], highs[i], lows[i], closes[i] = 100, 105, 95, 102
	}
	candles := candleSeries(opens, highs, lows, closes)
	atr := ComputeATR(candles, 14)
	assert.True(t, atr.GreaterThan(decimal.Zero))
}

func TestPlanStopsClampsToMinMaxDistance(t *testing.T) {
	cfg := Config{ATRPeriod: 14, ATRMultiplier: 1.5, MinStopDistancePct: 0.01, MaxStopDistancePct: 0.02, RMultiple: 5}
	entry := decimal.NewFromInt(50000)
	plan := PlanStops(cfg, model.PositionSideLong, entry, nil)

	minDist := entry.Mul(decimal.NewFromFloat(0.01))
	maxDist := entry.Mul(decimal.NewFromFloat(0.02))
	assert.True(t, plan.Distance.GreaterThanOrEqual(minDist))
	assert.True(t, plan.Distance.LessThanOrEqual(maxDist))
	assert.True(t, plan.StopLoss.LessThan(entry))
	assert.True(t, plan.TakeProfit.GreaterThan(entry))
}

func TestPlanStopsShortDirectionMirrored(t *testing.T) {
	cfg := Config{ATRPeriod: 14, ATRMultiplier: 1.5, MinStopDistancePct: 0.01, MaxStopDistancePct: 0.02, RMultiple: 5}
	entry := decimal.NewFromInt(50000)
	plan := PlanStops(cfg, model.PositionSideShort, entry, nil)

	assert.True(t, plan.StopLoss.GreaterThan(entry))
	assert.True(t, plan.TakeProfit.LessThan(entry))
}

func TestPnlPercentLongAndShort(t *testing.T) {
	entry := decimal.NewFromInt(100)
	assert.True(t, PnlPercent(model.PositionSideLong, entry, decimal.NewFromInt(110)).Equal(decimal.NewFromFloat(0.1)))
	assert.True(t, PnlPercent(model.PositionSideShort, entry, decimal.NewFromInt(110)).Equal(decimal.NewFromFloat(-0.1)))
}

func TestNextPartialTierReachedAtRMultiple(t *testing.T) {
	tiers := DefaultPartialTiers()
	entry := decimal.NewFromInt(100)
	distance := decimal.NewFromInt(5) // 1R = 5
	mark := decimal.NewFromInt(110)   // 2R reached

	tier, ok := NextPartialTier(tiers, 0, model.PositionSideLong, entry, distance, mark)
	assert.True(t, ok)
	assert.Equal(t, 2.0, tier.RMultiple)
}

func TestNextPartialTierNotReached(t *testing.T) {
	tiers := DefaultPartialTiers()
	entry := decimal.NewFromInt(100)
	distance := decimal.NewFromInt(5)
	mark := decimal.NewFromInt(105) // 1R only

	_, ok := NextPartialTier(tiers, 0, model.PositionSideLong, entry, distance, mark)
	assert.False(t, ok)
}

func TestNextPartialTierExhausted(t *testing.T) {
	tiers := DefaultPartialTiers()
	_, ok := NextPartialTier(tiers, len(tiers), model.PositionSideLong, decimal.NewFromInt(100), decimal.NewFromInt(5), decimal.NewFromInt(200))
	assert.False(t, ok)
}

func TestPeakDrawdownBreached(t *testing.T) {
	cfg := Config{PeakDrawdownFraction: 0.4}
	assert.True(t, PeakDrawdownBreached(cfg, decimal.NewFromFloat(0.10), decimal.NewFromFloat(0.05)))
	assert.False(t, PeakDrawdownBreached(cfg, decimal.NewFromFloat(0.10), decimal.NewFromFloat(0.08)))
}

func TestComputeNextStopLossDirectionalLongAdvancesOnBullishCandle(t *testing.T) {
	candles := candleSeries(
		[]float64{100, 101}, []float64{102, 103}, []float64{99, 100.5}, []float64{101, 102},
	)
	newSL, moved := ComputeNextStopLossDirectional(model.PositionSideLong, decimal.NewFromInt(95), candles, 2)
	assert.True(t, moved)
	assert.True(t, newSL.GreaterThan(decimal.NewFromInt(95)))
}

func TestComputeNextStopLossDirectionalNeverMovesBackward(t *testing.T) {
	candles := candleSeries(
		[]float64{100, 99}, []float64{102, 100}, []float64{99, 97}, []float64{101, 98}, // bearish last candle
	)
	newSL, moved := ComputeNextStopLossDirectional(model.PositionSideLong, decimal.NewFromInt(100), candles, 2)
	assert.False(t, moved)
	assert.True(t, newSL.Equal(decimal.NewFromInt(100)))
}

func TestTierStopAdvancesForLong(t *testing.T) {
	tiers := DefaultTrailTiers()
	entry := decimal.NewFromInt(100)
	newSL, moved := TierStop(tiers, model.PositionSideLong, entry, decimal.NewFromFloat(0.02), decimal.NewFromInt(95))
	assert.True(t, moved)
	assert.True(t, newSL.GreaterThan(decimal.NewFromInt(95)))
}

func TestSessionMultiplierZeroDuringNoTradeWindow(t *testing.T) {
	cfg := DefaultSessionSizeConfig()
	saturday := time.Date(2026, 1, 3, 12, 0, 0, 0, time.UTC) // a Saturday
	size, session := SessionMultiplier(decimal.NewFromInt(100), saturday, cfg)
	assert.True(t, size.IsZero())
	assert.Equal(t, SessionNoTrade, session)
}

func TestSessionMultiplierAppliesUSSessionRate(t *testing.T) {
	cfg := DefaultSessionSizeConfig()
	loc, _ := time.LoadLocation("America/New_York")
	wednesday := time.Date(2026, 1, 7, 11, 0, 0, 0, loc) // Wednesday 11:00 NY -> US session
	size, session := SessionMultiplier(decimal.NewFromInt(100), wednesday, cfg)
	assert.Equal(t, SessionUS, session)
	assert.True(t, size.Equal(decimal.NewFromFloat(125)))
}
