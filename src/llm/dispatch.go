package llm

import (
	"context"
	"fmt"

	logger "github.com/sirupsen/logrus"

	"perpagent/src/exchange"
	"perpagent/src/model"
	"perpagent/src/repository"
	"perpagent/src/risk"
)

// DispatchResult summarizes one tick's tool-call execution for the
// AgentDecision row the scheduler persists.
type DispatchResult struct {
	Executed         []string
	PolicyViolations []string
}

func (r *DispatchResult) ActionsTaken() string {
	out := ""
	for i, a := range r.Executed {
		if i > 0 {
			out += "; "
		}
		out += a
	}
	return out
}

// Dispatcher executes a Decider's tool-call sequence against the live
// exchange adapter and the risk engine, enforcing the one policy the
// spec names explicitly: openPosition must be preceded, within the same
// dispatch pass, by a qualifying analyzeOpeningOpportunities score.
type Dispatcher struct {
	cfg       Config
	exchange  exchange.Exchange
	engine    *risk.Engine
	positions *repository.PositionRepository
}

func NewDispatcher(cfg Config, ex exchange.Exchange, engine *risk.Engine, positions *repository.PositionRepository) *Dispatcher {
	return &Dispatcher{cfg: cfg, exchange: ex, engine: engine, positions: positions}
}

func (d *Dispatcher) Dispatch(ctx context.Context, calls []ToolCall) DispatchResult {
	result := DispatchResult{}
	scores := map[string]OpportunityScore{}

	if len(calls) > d.cfg.MaxToolCallsPerTick {
		logger.WithFields(map[string]interface{}{"count": len(calls), "limit": d.cfg.MaxToolCallsPerTick}).Warn("truncating oversized tool-call sequence")
		calls = calls[:d.cfg.MaxToolCallsPerTick]
	}

	for _, call := range calls {
		switch call.Name {
		case ToolAnalyzeOpeningOpportunities:
			d.handleAnalyzeOpeningOpportunities(ctx, call, scores, &result)
		case ToolOpenPosition:
			d.handleOpenPosition(ctx, call, scores, &result)
		case ToolClosePosition:
			d.handleClosePosition(ctx, call, &result)
		case ToolCheckPartialTakeProfitOpportunity:
			d.handleCheckPartialTakeProfit(ctx, call, &result)
		case ToolExecutePartialTakeProfit:
			d.handleExecutePartialTakeProfit(ctx, call, &result)
		case ToolUpdateTrailingStop:
			d.handleUpdateTrailingStop(ctx, call, &result)
		default:
			result.PolicyViolations = append(result.PolicyViolations, fmt.Sprintf("unknown tool call %q refused", call.Name))
		}
	}
	return result
}

func (d *Dispatcher) handleAnalyzeOpeningOpportunities(ctx context.Context, call ToolCall, scores map[string]OpportunityScore, result *DispatchResult) {
	var args AnalyzeOpeningOpportunitiesArgs
	if err := decodeArgs(call.Arguments, &args); err != nil {
		result.PolicyViolations = append(result.PolicyViolations, "analyzeOpeningOpportunities: "+err.Error())
		return
	}
	for _, symbol := range args.Symbols {
		candles, err := d.exchange.GetCandles(ctx, symbol, "5m", 30)
		if err != nil {
			logger.WithError(err).WithField("symbol", symbol).Warn("failed to fetch candles for opportunity scoring")
			continue
		}
		score := ScoreOpeningOpportunity(symbol, candles)
		scores[symbol] = score
		result.Executed = append(result.Executed, fmt.Sprintf("analyzed %s score=%d side=%s", symbol, score.Score, score.Side))
	}
}

func (d *Dispatcher) handleOpenPosition(ctx context.Context, call ToolCall, scores map[string]OpportunityScore, result *DispatchResult) {
	var args OpenPositionArgs
	if err := decodeArgs(call.Arguments, &args); err != nil {
		result.PolicyViolations = append(result.PolicyViolations, "openPosition: "+err.Error())
		return
	}

	score, ok := scores[args.Symbol]
	if !ok || score.Score < d.cfg.OpeningScoreFloor {
		result.PolicyViolations = append(result.PolicyViolations, fmt.Sprintf("openPosition(%s,%s) refused: no qualifying analyzeOpeningOpportunities score this tick", args.Symbol, args.Side))
		return
	}

	contract, err := d.exchange.GetContract(ctx, args.Symbol)
	if err != nil {
		result.PolicyViolations = append(result.PolicyViolations, fmt.Sprintf("openPosition(%s): contract lookup failed: %v", args.Symbol, err))
		return
	}
	ticker, err := d.exchange.GetTicker(ctx, args.Symbol, true)
	if err != nil {
		result.PolicyViolations = append(result.PolicyViolations, fmt.Sprintf("openPosition(%s): ticker lookup failed: %v", args.Symbol, err))
		return
	}
	entryPrice := ticker.MarkPrice
	quantity := d.exchange.CalculateQuantity(args.NotionalUSDT, entryPrice, args.Leverage, contract)

	placed, err := d.exchange.PlaceOrder(ctx, exchange.PlaceOrderRequest{
		Contract: contract, Side: args.Side, Size: quantity, TIF: exchange.TIFImmediateOrCancel,
	})
	if err != nil {
		result.PolicyViolations = append(result.PolicyViolations, fmt.Sprintf("openPosition(%s,%s) exchange rejected: %v", args.Symbol, args.Side, err))
		return
	}

	candles, err := d.exchange.GetCandles(ctx, args.Symbol, "5m", 30)
	if err != nil {
		logger.WithError(err).Warn("failed to fetch candles for stop sizing, proceeding with empty history")
	}
	if err := d.engine.OpenPosition(ctx, d.exchange, contract, args.Side, placed.ID, entryPrice, quantity, args.Leverage, candles); err != nil {
		result.PolicyViolations = append(result.PolicyViolations, fmt.Sprintf("openPosition(%s,%s) stop placement/persist failed: %v", args.Symbol, args.Side, err))
		return
	}
	result.Executed = append(result.Executed, fmt.Sprintf("opened %s %s qty=%s", args.Symbol, args.Side, quantity.String()))
}

func (d *Dispatcher) handleClosePosition(ctx context.Context, call ToolCall, result *DispatchResult) {
	var args ClosePositionArgs
	if err := decodeArgs(call.Arguments, &args); err != nil {
		result.PolicyViolations = append(result.PolicyViolations, "closePosition: "+err.Error())
		return
	}
	position, contract, err := d.loadPositionAndContract(ctx, args.Symbol, args.Side)
	if err != nil {
		result.PolicyViolations = append(result.PolicyViolations, fmt.Sprintf("closePosition(%s,%s): %v", args.Symbol, args.Side, err))
		return
	}
	ticker, err := d.exchange.GetTicker(ctx, args.Symbol, true)
	if err != nil {
		result.PolicyViolations = append(result.PolicyViolations, fmt.Sprintf("closePosition(%s): ticker lookup failed: %v", args.Symbol, err))
		return
	}
	reason := args.Reason
	if reason == "" {
		reason = model.CloseReasonManual
	}
	if err := d.engine.ClosePosition(ctx, d.exchange, contract, position, ticker.MarkPrice, reason); err != nil {
		result.PolicyViolations = append(result.PolicyViolations, fmt.Sprintf("closePosition(%s,%s) failed: %v", args.Symbol, args.Side, err))
		return
	}
	result.Executed = append(result.Executed, fmt.Sprintf("closed %s %s reason=%s", args.Symbol, args.Side, reason))
}

func (d *Dispatcher) handleCheckPartialTakeProfit(ctx context.Context, call ToolCall, result *DispatchResult) {
	var args CheckPartialTakeProfitOpportunityArgs
	if err := decodeArgs(call.Arguments, &args); err != nil {
		result.PolicyViolations = append(result.PolicyViolations, "checkPartialTakeProfitOpportunity: "+err.Error())
		return
	}
	position, _, err := d.loadPositionAndContract(ctx, args.Symbol, args.Side)
	if err != nil {
		result.PolicyViolations = append(result.PolicyViolations, fmt.Sprintf("checkPartialTakeProfitOpportunity(%s,%s): %v", args.Symbol, args.Side, err))
		return
	}
	ticker, err := d.exchange.GetTicker(ctx, args.Symbol, true)
	if err != nil {
		result.PolicyViolations = append(result.PolicyViolations, fmt.Sprintf("checkPartialTakeProfitOpportunity(%s): ticker lookup failed: %v", args.Symbol, err))
		return
	}
	tier, ok := d.engine.CheckPartialTakeProfit(position, ticker.MarkPrice)
	result.Executed = append(result.Executed, fmt.Sprintf("checked partial %s %s reached=%t tier=%.0fR", args.Symbol, args.Side, ok, tier.RMultiple))
}

func (d *Dispatcher) handleExecutePartialTakeProfit(ctx context.Context, call ToolCall, result *DispatchResult) {
	var args ExecutePartialTakeProfitArgs
	if err := decodeArgs(call.Arguments, &args); err != nil {
		result.PolicyViolations = append(result.PolicyViolations, "executePartialTakeProfit: "+err.Error())
		return
	}
	position, contract, err := d.loadPositionAndContract(ctx, args.Symbol, args.Side)
	if err != nil {
		result.PolicyViolations = append(result.PolicyViolations, fmt.Sprintf("executePartialTakeProfit(%s,%s): %v", args.Symbol, args.Side, err))
		return
	}
	ticker, err := d.exchange.GetTicker(ctx, args.Symbol, true)
	if err != nil {
		result.PolicyViolations = append(result.PolicyViolations, fmt.Sprintf("executePartialTakeProfit(%s): ticker lookup failed: %v", args.Symbol, err))
		return
	}
	candles, _ := d.exchange.GetCandles(ctx, args.Symbol, "5m", 30)
	executed, err := d.engine.ExecutePartialTakeProfit(ctx, d.exchange, contract, position, ticker.MarkPrice, candles)
	if err != nil {
		result.PolicyViolations = append(result.PolicyViolations, fmt.Sprintf("executePartialTakeProfit(%s,%s) failed: %v", args.Symbol, args.Side, err))
		return
	}
	if !executed {
		result.PolicyViolations = append(result.PolicyViolations, fmt.Sprintf("executePartialTakeProfit(%s,%s) refused: tier not reached", args.Symbol, args.Side))
		return
	}
	result.Executed = append(result.Executed, fmt.Sprintf("executed partial take-profit %s %s", args.Symbol, args.Side))
}

func (d *Dispatcher) handleUpdateTrailingStop(ctx context.Context, call ToolCall, result *DispatchResult) {
	var args UpdateTrailingStopArgs
	if err := decodeArgs(call.Arguments, &args); err != nil {
		result.PolicyViolations = append(result.PolicyViolations, "updateTrailingStop: "+err.Error())
		return
	}
	position, _, err := d.loadPositionAndContract(ctx, args.Symbol, args.Side)
	if err != nil {
		result.PolicyViolations = append(result.PolicyViolations, fmt.Sprintf("updateTrailingStop(%s,%s): %v", args.Symbol, args.Side, err))
		return
	}
	ticker, err := d.exchange.GetTicker(ctx, args.Symbol, true)
	if err != nil {
		result.PolicyViolations = append(result.PolicyViolations, fmt.Sprintf("updateTrailingStop(%s): ticker lookup failed: %v", args.Symbol, err))
		return
	}
	moved, err := d.engine.UpdateTrailingStop(ctx, position, ticker.MarkPrice)
	if err != nil {
		result.PolicyViolations = append(result.PolicyViolations, fmt.Sprintf("updateTrailingStop(%s,%s) failed: %v", args.Symbol, args.Side, err))
		return
	}
	if !moved {
		result.Executed = append(result.Executed, fmt.Sprintf("trailing stop unchanged %s %s", args.Symbol, args.Side))
		return
	}
	result.Executed = append(result.Executed, fmt.Sprintf("advanced trailing stop %s %s to %s", args.Symbol, args.Side, position.StopLoss.String()))
}

func (d *Dispatcher) loadPositionAndContract(ctx context.Context, symbol, side string) (*model.Position, model.Contract, error) {
	position, err := d.positions.FindBySymbolSide(ctx, symbol, side)
	if err != nil {
		return nil, model.Contract{}, fmt.Errorf("load position: %w", err)
	}
	if position == nil {
		return nil, model.Contract{}, fmt.Errorf("no open position for %s %s", symbol, side)
	}
	contract, err := d.exchange.GetContract(ctx, symbol)
	if err != nil {
		return nil, model.Contract{}, fmt.Errorf("load contract: %w", err)
	}
	return position, contract, nil
}
