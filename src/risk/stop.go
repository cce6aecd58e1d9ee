package risk

import (
	"github.com/shopspring/decimal"

	"perpagent/src/model"
)

// StopPlan is the result of sizing a new position's initial stop-loss
// and extreme take-profit, per spec §4.4 steps 1–2.
type StopPlan struct {
	Distance       decimal.Decimal
	StopLoss       decimal.Decimal
	TakeProfit     decimal.Decimal
}

// PlanStops computes the scientific stop distance from ATR and the
// nearest structural level, clamps it to [min,max] of entry, then
// derives the stop-loss and extreme take-profit prices on either side
// of entry. Direction/safety-distance validation against mark is the
// exchange adapter's responsibility (spec §9's design note).
func PlanStops(cfg Config, side string, entry decimal.Decimal, candles []model.Candle) StopPlan {
	atr := ComputeATR(candles, cfg.ATRPeriod)
	structural := NearestSupportResistance(candles, side, entry)

	distance := atr.Mul(decimal.NewFromFloat(cfg.ATRMultiplier))
	if structural.GreaterThan(distance) {
		distance = structural
	}

	minDist := entry.Mul(decimal.NewFromFloat(cfg.MinStopDistancePct))
	maxDist := entry.Mul(decimal.NewFromFloat(cfg.MaxStopDistancePct))
	if distance.LessThan(minDist) {
		distance = minDist
	}
	if distance.GreaterThan(maxDist) {
		distance = maxDist
	}

	r := decimal.NewFromFloat(cfg.RMultiple)
	extreme := distance.Mul(r)

	if side == model.PositionSideShort {
		return StopPlan{
			Distance:   distance,
			StopLoss:   entry.Add(distance),
			TakeProfit: entry.Sub(extreme),
		}
	}
	return StopPlan{
		Distance:   distance,
		StopLoss:   entry.Sub(distance),
		TakeProfit: entry.Add(extreme),
	}
}

// PnlPercent computes unrealized PnL as a fraction of the notional at
// entry, signed for direction, used by peak-drawdown and trailing logic.
func PnlPercent(side string, entry, mark decimal.Decimal) decimal.Decimal {
	if entry.IsZero() {
		return decimal.Zero
	}
	delta := mark.Sub(entry)
	if side == model.PositionSideShort {
		delta = entry.Sub(mark)
	}
	return delta.Div(entry)
}
