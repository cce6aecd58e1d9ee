package risk

import (
	"github.com/shopspring/decimal"

	"perpagent/src/model"
)

// ComputeNextStopLossDirectional advances a stop-loss using the prior
// candle's directional bias, mirroring the gate/floor-or-ceiling/clamp
// shape the trailing logic elsewhere in this codebase uses for discrete
// tier advancement: a long only tightens on a bullish prior candle, to
// the lower of the recent average low and that candle's low; a short
// mirrors this on the upside, using the higher of the recent average
// high and the prior candle's high. The stop never moves in the loss
// direction.
func ComputeNextStopLossDirectional(side string, currentSL decimal.Decimal, candles []model.Candle, lookback int) (newSL decimal.Decimal, moved bool) {
	if len(candles) < 2 {
		return currentSL, false
	}
	if lookback <= 0 {
		lookback = 20
	}
	if lookback > len(candles) {
		lookback = len(candles)
	}

	prev := candles[len(candles)-2]
	window := candles[len(candles)-lookback:]

	switch side {
	case model.PositionSideLong:
		if !prev.IsBullish() {
			return currentSL, false
		}
		candidate := avgLow(window)
		if candidate.GreaterThan(prev.Low) {
			candidate = prev.Low
		}
		if candidate.GreaterThan(currentSL) {
			return candidate, true
		}
		return currentSL, false

	case model.PositionSideShort:
		if !prev.IsBearish() {
			return currentSL, false
		}
		candidate := avgHigh(window)
		if candidate.LessThan(prev.High) {
			candidate = prev.High
		}
		if candidate.LessThan(currentSL) {
			return candidate, true
		}
		return currentSL, false

	default:
		return currentSL, false
	}
}

func avgLow(candles []model.Candle) decimal.Decimal {
	if len(candles) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, c := range candles {
		sum = sum.Add(c.Low)
	}
	return sum.Div(decimal.NewFromInt(int64(len(candles))))
}

func avgHigh(candles []model.Candle) decimal.Decimal {
	if len(candles) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, c := range candles {
		sum = sum.Add(c.High)
	}
	return sum.Div(decimal.NewFromInt(int64(len(candles))))
}

// TierStop returns the stop level for the highest tier reached by the
// current PnL percent, per spec §4.4's "move to tier's stop level,
// never move in the loss direction" rule.
func TierStop(tiers []TrailTier, side string, entry decimal.Decimal, pnlPercent decimal.Decimal, currentSL decimal.Decimal) (decimal.Decimal, bool) {
	best := -1.0
	var bestTier TrailTier
	for _, tier := range tiers {
		if pnlPercent.GreaterThanOrEqual(decimal.NewFromFloat(tier.PnlPercentFloor)) && tier.PnlPercentFloor > best {
			best = tier.PnlPercentFloor
			bestTier = tier
		}
	}
	if best < 0 {
		return currentSL, false
	}

	candidate := entry.Mul(decimal.NewFromFloat(1 + bestTier.StopPnlPercent))
	if side == model.PositionSideShort {
		candidate = entry.Mul(decimal.NewFromFloat(1 - bestTier.StopPnlPercent))
		if candidate.LessThan(currentSL) {
			return candidate, true
		}
		return currentSL, false
	}

	if candidate.GreaterThan(currentSL) {
		return candidate, true
	}
	return currentSL, false
}
