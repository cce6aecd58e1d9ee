package exchange

import (
	"strings"

	"github.com/shopspring/decimal"

	"perpagent/src/model"
)

// LinearAdapter is the USDT-margined contract family — quantity and PnL
// are both denominated directly in the quote asset, per spec §4.1.
type LinearAdapter struct {
	*baseAdapter
}

func NewLinearAdapter(cfg Config) *LinearAdapter {
	return &LinearAdapter{baseAdapter: newBaseAdapter(cfg, normalizeLinearSymbol)}
}

// normalizeLinearSymbol appends the exchange's USDT-perpetual suffix
// unless the caller already passed a fully-qualified symbol.
func normalizeLinearSymbol(symbol string) string {
	if strings.HasSuffix(symbol, "USDT") {
		return symbol
	}
	return symbol + "USDT"
}

func (a *LinearAdapter) ContractType() model.ContractType { return model.ContractLinear }

func (a *LinearAdapter) CalculateQuantity(usdt, price, leverage decimal.Decimal, contract model.Contract) decimal.Decimal {
	return calculateQuantityFor(model.ContractLinear, usdt, price, leverage, contract)
}

func (a *LinearAdapter) CalculatePnL(entry, exit, qty decimal.Decimal, side string, contract model.Contract) decimal.Decimal {
	return CalculatePnLFor(model.ContractLinear, entry, exit, qty, side, contract)
}
