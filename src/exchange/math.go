package exchange

import (
	"github.com/shopspring/decimal"

	"perpagent/src/model"
)

// calculateQuantityFor implements spec §4.1's polymorphic quantity
// arithmetic as a sum over the two contract types, not runtime
// reflection, per spec §9.
func calculateQuantityFor(contractType model.ContractType, usdt, price, leverage decimal.Decimal, contract model.Contract) decimal.Decimal {
	if price.IsZero() {
		return decimal.Zero
	}
	switch contractType {
	case model.ContractInverse:
		notional := usdt.Mul(leverage)
		denom := contract.QuantoMultiplier.Mul(price)
		if denom.IsZero() {
			return decimal.Zero
		}
		return notional.Div(denom).Floor()
	default: // linear
		return usdt.Mul(leverage).Div(price)
	}
}

// CalculatePnLFor implements spec §4.1's PnL formula per contract type.
func CalculatePnLFor(contractType model.ContractType, entry, exit, qty decimal.Decimal, side string, contract model.Contract) decimal.Decimal {
	delta := exit.Sub(entry)
	if side == model.PositionSideShort {
		delta = entry.Sub(exit)
	}
	switch contractType {
	case model.ContractInverse:
		return delta.Mul(qty).Mul(contract.QuantoMultiplier)
	default: // linear
		return delta.Mul(qty)
	}
}
