package risk

import (
	"github.com/shopspring/decimal"

	"perpagent/src/model"
)

// ComputeATR computes the average true range over the trailing `period`
// candles (Wilder's original, unsmoothed average of true range). Candles
// must be time-ascending. Returns zero when there isn't enough history.
func ComputeATR(candles []model.Candle, period int) decimal.Decimal {
	if period <= 0 || len(candles) < period+1 {
		return decimal.Zero
	}

	window := candles[len(candles)-period-1:]
	sum := decimal.Zero
	for i := 1; i < len(window); i++ {
		sum = sum.Add(trueRange(window[i], window[i-1]))
	}
	return sum.Div(decimal.NewFromInt(int64(period)))
}

func trueRange(current, prev model.Candle) decimal.Decimal {
	highLow := current.High.Sub(current.Low).Abs()
	highPrevClose := current.High.Sub(prev.Close).Abs()
	lowPrevClose := current.Low.Sub(prev.Close).Abs()

	tr := highLow
	if highPrevClose.GreaterThan(tr) {
		tr = highPrevClose
	}
	if lowPrevClose.GreaterThan(tr) {
		tr = lowPrevClose
	}
	return tr
}

// NearestSupportResistance finds the closest swing low (for longs) or
// swing high (for shorts) within the window, used as the structural
// distance input to stop sizing alongside ATR.
func NearestSupportResistance(candles []model.Candle, side string, entry decimal.Decimal) decimal.Decimal {
	if len(candles) == 0 {
		return decimal.Zero
	}
	if side == model.PositionSideShort {
		best := candles[0].High
		for _, c := range candles {
			if c.High.GreaterThan(entry) && (best.LessThanOrEqual(entry) || c.High.LessThan(best)) {
				best = c.High
			}
		}
		return best.Sub(entry).Abs()
	}

	best := candles[0].Low
	for _, c := range candles {
		if c.Low.LessThan(entry) && (best.GreaterThanOrEqual(entry) || c.Low.GreaterThan(best)) {
			best = c.Low
		}
	}
	return entry.Sub(best).Abs()
}
