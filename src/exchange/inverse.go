package exchange

import (
	"strings"

	"github.com/shopspring/decimal"

	"perpagent/src/model"
)

// InverseAdapter is the coin-margined contract family — quantity is
// denominated in contracts and PnL settles in the base asset, scaled by
// the contract's quanto multiplier, per spec §4.1.
type InverseAdapter struct {
	*baseAdapter
}

func NewInverseAdapter(cfg Config) *InverseAdapter {
	return &InverseAdapter{baseAdapter: newBaseAdapter(cfg, normalizeInverseSymbol)}
}

// normalizeInverseSymbol appends the exchange's USD-settled perpetual
// suffix unless the caller already passed a fully-qualified symbol.
func normalizeInverseSymbol(symbol string) string {
	if strings.HasSuffix(symbol, "USD") {
		return symbol
	}
	return symbol + "USD"
}

func (a *InverseAdapter) ContractType() model.ContractType { return model.ContractInverse }

func (a *InverseAdapter) CalculateQuantity(usdt, price, leverage decimal.Decimal, contract model.Contract) decimal.Decimal {
	return calculateQuantityFor(model.ContractInverse, usdt, price, leverage, contract)
}

func (a *InverseAdapter) CalculatePnL(entry, exit, qty decimal.Decimal, side string, contract model.Contract) decimal.Decimal {
	return CalculatePnLFor(model.ContractInverse, entry, exit, qty, side, contract)
}
