package model

import "github.com/shopspring/decimal"

// ContractType distinguishes the two PnL/quantity arithmetic families a
// perpetual futures venue may expose for a given symbol.
type ContractType string

const (
	ContractLinear  ContractType = "linear"
	ContractInverse ContractType = "inverse"
)

// Contract holds the exchange-reported metadata needed to size orders and
// round prices for one symbol. It is immutable for the lifetime of a
// session, so it is never persisted to the store — it lives only in the
// session-lifetime cache category (see cache.CategoryContract).
type Contract struct {
	Symbol           string
	ExchangeSymbol   string
	Type             ContractType
	QuantoMultiplier decimal.Decimal
	OrderSizeMin     decimal.Decimal
	OrderSizeMax     decimal.Decimal
	OrderPriceRound  decimal.Decimal
	MarkPriceRound   decimal.Decimal
}

// RoundPrice rounds p to the contract's price tick.
func (c Contract) RoundPrice(p decimal.Decimal) decimal.Decimal {
	return roundToStep(p, c.OrderPriceRound)
}

// RoundMark rounds p to the contract's mark-price tick.
func (c Contract) RoundMark(p decimal.Decimal) decimal.Decimal {
	return roundToStep(p, c.MarkPriceRound)
}

// ClampSize clamps qty into [OrderSizeMin, OrderSizeMax].
func (c Contract) ClampSize(qty decimal.Decimal) decimal.Decimal {
	if !c.OrderSizeMin.IsZero() && qty.LessThan(c.OrderSizeMin) {
		return c.OrderSizeMin
	}
	if !c.OrderSizeMax.IsZero() && qty.GreaterThan(c.OrderSizeMax) {
		return c.OrderSizeMax
	}
	return qty
}

func roundToStep(v, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return v
	}
	return v.DivRound(step, 0).Mul(step)
}
