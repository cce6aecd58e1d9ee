package reversal

import (
	"github.com/shopspring/decimal"

	"perpagent/src/model"
	"perpagent/src/risk"
)

// Score is the result of one position's reversal evaluation: two
// distinct 0-100 composites per spec §4.6 — warningScore (an earlier,
// softer signal the Risk Engine's trailing-stop gate consults) and
// reversalScore (the harder signal that forces an immediate close at
// or above the configured floor, independently of the decision loop).
type Score struct {
	WarningScore  int
	ReversalScore int
	Rationale     string
}

// Compute derives both scores from the position's side and recent
// candles, the same volatility-normalized-momentum shape
// llm.ScoreOpeningOpportunity uses for entries, but pointed the other
// way: counter-trend momentum against the position's side, with a
// volume-spike bonus, since a reversal is corroborated by participation
// the way an open opportunity is corroborated by consistency.
func Compute(side string, candles []model.Candle) Score {
	if len(candles) < 10 {
		return Score{Rationale: "insufficient candle history"}
	}

	counterMomentum := counterTrendMomentum(side, candles)
	volumeSpike := volumeSpikeRatio(candles)

	reversalScore := scaleMomentum(counterMomentum, 55)
	reversalScore += scaleVolumeSpike(volumeSpike, 45)
	reversalScore = clampScore(reversalScore)

	// warningScore reacts to the same counter-trend momentum over a
	// shorter, more recent window so it fires before the full-window
	// reversalScore does, giving the Risk Engine's trailing-stop gate an
	// earlier signal without forcing a close.
	recentWindow := candles
	if len(candles) > 5 {
		recentWindow = candles[len(candles)-5:]
	}
	warningMomentum := counterTrendMomentum(side, recentWindow)
	warningScore := clampScore(scaleMomentum(warningMomentum, 100))

	return Score{
		WarningScore:  warningScore,
		ReversalScore: reversalScore,
		Rationale:     "counter_momentum/atr_normalized",
	}
}

// counterTrendMomentum returns, in ATR units, how far price has moved
// against the position's side over the given window. A long position
// facing a falling market yields a positive value; a long in a rising
// market yields zero (no reversal signal from a favorable move).
func counterTrendMomentum(side string, candles []model.Candle) decimal.Decimal {
	first := candles[0]
	last := candles[len(candles)-1]
	move := last.Close.Sub(first.Close)

	atr := risk.ComputeATR(candles, minInt(14, len(candles)-1))
	if atr.IsZero() {
		return decimal.Zero
	}

	normalized := move.Div(atr)
	if side == model.PositionSideShort {
		// a short is threatened by a rising market
		if normalized.IsNegative() {
			return decimal.Zero
		}
		return normalized
	}
	// a long is threatened by a falling market
	if normalized.IsPositive() {
		return decimal.Zero
	}
	return normalized.Abs()
}

func volumeSpikeRatio(candles []model.Candle) decimal.Decimal {
	if len(candles) < 2 {
		return decimal.NewFromInt(1)
	}
	history := candles[:len(candles)-1]
	sum := decimal.Zero
	for _, c := range history {
		sum = sum.Add(c.Volume)
	}
	avg := sum.Div(decimal.NewFromInt(int64(len(history))))
	if avg.IsZero() {
		return decimal.NewFromInt(1)
	}
	return candles[len(candles)-1].Volume.Div(avg)
}

func scaleMomentum(normalized decimal.Decimal, weight int) int {
	scaled := normalized.Mul(decimal.NewFromInt(int64(weight))).Div(decimal.NewFromFloat(1.5))
	return int(scaled.Round(0).IntPart())
}

func scaleVolumeSpike(ratio decimal.Decimal, weight int) int {
	excess := ratio.Sub(decimal.NewFromInt(1))
	if excess.IsNegative() {
		return 0
	}
	scaled := excess.Mul(decimal.NewFromInt(int64(weight))).Div(decimal.NewFromFloat(2))
	return int(scaled.Round(0).IntPart())
}

func clampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
