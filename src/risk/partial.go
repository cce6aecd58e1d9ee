package risk

import (
	"github.com/shopspring/decimal"

	"perpagent/src/model"
)

// NextPartialTier returns the next unexecuted partial take-profit tier
// whose R-multiple has been reached, or ok=false if none qualifies.
// partialsExecuted is the count already fired for this position — tiers
// are consumed strictly in order, per spec §4.4's staged cascade.
func NextPartialTier(tiers []PartialTier, partialsExecuted int, side string, entry, distance, mark decimal.Decimal) (PartialTier, bool) {
	if partialsExecuted >= len(tiers) || distance.IsZero() {
		return PartialTier{}, false
	}
	tier := tiers[partialsExecuted]

	target := entry.Add(distance.Mul(decimal.NewFromFloat(tier.RMultiple)))
	if side == model.PositionSideShort {
		target = entry.Sub(distance.Mul(decimal.NewFromFloat(tier.RMultiple)))
	}

	reached := mark.GreaterThanOrEqual(target)
	if side == model.PositionSideShort {
		reached = mark.LessThanOrEqual(target)
	}
	if !reached {
		return PartialTier{}, false
	}
	return tier, true
}

// PeakDrawdownBreached reports whether current PnL has retraced by more
// than the configured fraction of the recorded peak, per spec §4.4.
func PeakDrawdownBreached(cfg Config, peakPnlPercent, currentPnlPercent decimal.Decimal) bool {
	if peakPnlPercent.LessThanOrEqual(decimal.Zero) {
		return false
	}
	retracement := peakPnlPercent.Sub(currentPnlPercent)
	threshold := peakPnlPercent.Mul(decimal.NewFromFloat(cfg.PeakDrawdownFraction))
	return retracement.GreaterThan(threshold)
}
