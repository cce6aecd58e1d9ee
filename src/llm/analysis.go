package llm

import (
	"github.com/shopspring/decimal"

	"perpagent/src/model"
	"perpagent/src/risk"
)

// OpportunityScore is the result of analyzeOpeningOpportunities for one
// symbol: a 0-100 score and the side it favors. The dispatcher records
// this per tick and uses it to gate a subsequent openPosition call for
// the same symbol.
type OpportunityScore struct {
	Symbol    string
	Side      string
	Score     int
	Rationale string
}

// ScoreOpeningOpportunity derives a volatility-normalized momentum score
// from recent candles: strong, low-noise directional moves score high;
// choppy or directionless ranges score low. It never reaches outside
// the given candle slice — the caller decides how much history to
// fetch and at which interval.
func ScoreOpeningOpportunity(symbol string, candles []model.Candle) OpportunityScore {
	if len(candles) < 15 {
		return OpportunityScore{Symbol: symbol, Side: model.PositionSideLong, Score: 0, Rationale: "insufficient candle history"}
	}

	first := candles[0]
	last := candles[len(candles)-1]
	move := last.Close.Sub(first.Close)

	atr := risk.ComputeATR(candles, 14)
	if atr.IsZero() {
		return OpportunityScore{Symbol: symbol, Side: model.PositionSideLong, Score: 0, Rationale: "zero ATR, cannot normalize"}
	}

	normalizedMove := move.Div(atr)

	upBars := 0
	for i := 1; i < len(candles); i++ {
		if candles[i].Close.GreaterThanOrEqual(candles[i-1].Close) {
			upBars++
		}
	}
	consistency := decimal.NewFromInt(int64(upBars)).Div(decimal.NewFromInt(int64(len(candles) - 1)))
	if normalizedMove.IsNegative() {
		consistency = decimal.NewFromInt(1).Sub(consistency)
	}

	side := model.PositionSideLong
	if normalizedMove.IsNegative() {
		side = model.PositionSideShort
	}

	magnitude := normalizedMove.Abs()
	magnitudeScore := magnitude.Mul(decimal.NewFromInt(20))
	if magnitudeScore.GreaterThan(decimal.NewFromInt(60)) {
		magnitudeScore = decimal.NewFromInt(60)
	}
	consistencyScore := consistency.Mul(decimal.NewFromInt(40))

	score := magnitudeScore.Add(consistencyScore)
	scoreInt := int(score.Round(0).IntPart())
	if scoreInt < 0 {
		scoreInt = 0
	}
	if scoreInt > 100 {
		scoreInt = 100
	}

	return OpportunityScore{
		Symbol: symbol, Side: side, Score: scoreInt,
		Rationale: "momentum/ATR=" + normalizedMove.StringFixed(2) + " consistency=" + consistency.StringFixed(2),
	}
}
