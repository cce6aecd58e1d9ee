package exchange

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"perpagent/src/model"
)

func TestCalculateQuantityLinear(t *testing.T) {
	contract := model.Contract{QuantoMultiplier: decimal.NewFromInt(1)}
	qty := calculateQuantityFor(model.ContractLinear, decimal.NewFromInt(1000), decimal.NewFromInt(50000), decimal.NewFromInt(10), contract)
	assert.True(t, qty.Equal(decimal.NewFromFloat(0.2)))
}

func TestCalculateQuantityInverse(t *testing.T) {
	contract := model.Contract{QuantoMultiplier: decimal.NewFromInt(1)}
	qty := calculateQuantityFor(model.ContractInverse, decimal.NewFromInt(1000), decimal.NewFromInt(50000), decimal.NewFromInt(10), contract)
	assert.True(t, qty.Equal(decimal.NewFromInt(1000*10).Div(decimal.NewFromInt(1).Mul(decimal.NewFromInt(50000))).Floor()))
}

func TestCalculateQuantityZeroPrice(t *testing.T) {
	contract := model.Contract{QuantoMultiplier: decimal.NewFromInt(1)}
	qty := calculateQuantityFor(model.ContractLinear, decimal.NewFromInt(1000), decimal.Zero, decimal.NewFromInt(10), contract)
	assert.True(t, qty.IsZero())
}

func TestCalculatePnLRoundTripIsZero(t *testing.T) {
	contract := model.Contract{QuantoMultiplier: decimal.NewFromInt(1)}
	entry := decimal.NewFromInt(50000)
	qty := decimal.NewFromFloat(0.5)

	for _, contractType := range []model.ContractType{model.ContractLinear, model.ContractInverse} {
		for _, side := range []string{model.PositionSideLong, model.PositionSideShort} {
			pnl := CalculatePnLFor(contractType, entry, entry, qty, side, contract)
			assert.True(t, pnl.IsZero(), "contractType=%v side=%v", contractType, side)
		}
	}
}

func TestCalculatePnLLinearLongProfit(t *testing.T) {
	contract := model.Contract{QuantoMultiplier: decimal.NewFromInt(1)}
	pnl := CalculatePnLFor(model.ContractLinear, decimal.NewFromInt(50000), decimal.NewFromInt(51000), decimal.NewFromFloat(0.5), model.PositionSideLong, contract)
	assert.True(t, pnl.Equal(decimal.NewFromInt(500)))
}

func TestCalculatePnLLinearShortLoss(t *testing.T) {
	contract := model.Contract{QuantoMultiplier: decimal.NewFromInt(1)}
	pnl := CalculatePnLFor(model.ContractLinear, decimal.NewFromInt(50000), decimal.NewFromInt(51000), decimal.NewFromFloat(0.5), model.PositionSideShort, contract)
	assert.True(t, pnl.Equal(decimal.NewFromInt(-500)))
}

func TestCalculatePnLInverseScalesByQuantoMultiplier(t *testing.T) {
	contract := model.Contract{QuantoMultiplier: decimal.NewFromInt(100)}
	pnl := CalculatePnLFor(model.ContractInverse, decimal.NewFromInt(50000), decimal.NewFromInt(51000), decimal.NewFromInt(2), model.PositionSideLong, contract)
	assert.True(t, pnl.Equal(decimal.NewFromInt(1000).Mul(decimal.NewFromInt(2)).Mul(decimal.NewFromInt(100))))
}

func TestAdjustTriggerForSafetyAlreadyTriggered(t *testing.T) {
	mark := decimal.NewFromInt(50000)
	trigger := decimal.NewFromInt(49000) // below mark but rule is GTE -> already triggered
	adjusted := adjustTriggerForSafety(trigger, mark, TriggerRuleGTE)
	assert.True(t, adjusted.GreaterThan(mark))
}

func TestAdjustTriggerForSafetyTooClose(t *testing.T) {
	mark := decimal.NewFromInt(50000)
	trigger := mark.Add(decimal.NewFromInt(10)) // well within 0.3%
	adjusted := adjustTriggerForSafety(trigger, mark, TriggerRuleGTE)
	deviation := adjusted.Sub(mark).Div(mark).Abs()
	assert.True(t, deviation.GreaterThanOrEqual(decimal.NewFromFloat(0.003)))
}

func TestAdjustTriggerForSafetyUntouchedWhenFarEnough(t *testing.T) {
	mark := decimal.NewFromInt(50000)
	trigger := decimal.NewFromInt(48000)
	adjusted := adjustTriggerForSafety(trigger, mark, TriggerRuleLTE)
	assert.True(t, adjusted.Equal(trigger))
}

func TestNewRejectsUnknownContractKind(t *testing.T) {
	_, err := New(Config{ContractKind: "quadratic"})
	assert.Error(t, err)
}

func TestNewDefaultsToLinear(t *testing.T) {
	ex, err := New(Config{})
	assert.NoError(t, err)
	assert.Equal(t, model.ContractLinear, ex.ContractType())
}
