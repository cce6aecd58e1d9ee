// Package scheduler implements the Decision Loop Scheduler of spec
// §4.5: a fixed-interval periodic tick, grounded on the teacher's
// executors.StartLoop ticker idiom, generalized from a single-exchange
// order-placement loop into the full snapshot → invoke-LLM → dispatch →
// persist sequence.
package scheduler

import (
	"context"
	"encoding/json"
	"sort"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"perpagent/src/exchange"
	"perpagent/src/llm"
	"perpagent/src/model"
	"perpagent/src/repository"
	"perpagent/src/utils"
)

// PositionView is the per-position slice of the prompt context: enough
// for the LLM collaborator to reason about an open position without
// handing it raw internal state.
type PositionView struct {
	Symbol            string          `json:"symbol"`
	Side              string          `json:"side"`
	Quantity          decimal.Decimal `json:"quantity"`
	EntryPrice        decimal.Decimal `json:"entryPrice"`
	MarkPrice         decimal.Decimal `json:"markPrice"`
	PnlPercent        decimal.Decimal `json:"pnlPercent"`
	HoldingMinutes    float64         `json:"holdingMinutes"`
	WarningScore      int             `json:"warningScore"`
	ReversalWarning   bool            `json:"reversalWarning"`
	PartialsExecuted  int             `json:"partialsExecuted"`
	StopState         string          `json:"stopState"`
}

// TickContext is the compact object handed to the LLM collaborator,
// per spec §4.5 step 5.
type TickContext struct {
	Iteration uint64                   `json:"iteration"`
	Timestamp time.Time                `json:"timestamp"`
	Account   exchange.Account         `json:"account"`
	Positions []PositionView           `json:"positions"`
	Symbols   []string                 `json:"symbols"`
}

// Scheduler drives the Decision Loop. Exactly one instance runs per
// process; StartLoop enforces the spec's single-writer, drop-on-overlap
// discipline itself rather than relying on goroutine scheduling luck.
type Scheduler struct {
	cfg        Config
	exchange   exchange.Exchange
	dispatcher *llm.Dispatcher
	decider    llm.Decider
	positions  *repository.PositionRepository
	decisions  *repository.AgentDecisionRepository
	history    *repository.AccountHistoryRepository

	running   atomic.Bool
	iteration uint64
}

func NewScheduler(cfg Config, ex exchange.Exchange, dispatcher *llm.Dispatcher, decider llm.Decider, positions *repository.PositionRepository, decisions *repository.AgentDecisionRepository, history *repository.AccountHistoryRepository) *Scheduler {
	return &Scheduler{
		cfg: cfg, exchange: ex, dispatcher: dispatcher, decider: decider,
		positions: positions, decisions: decisions, history: history,
	}
}

// StartLoop runs until ctx is cancelled. Overlapping ticks — a tick
// firing while the previous one's runTick is still executing — are
// dropped with a warning rather than queued, per spec §4.5.
func (s *Scheduler) StartLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("decision loop stopped")
			return nil
		case <-ticker.C:
			if !s.running.CompareAndSwap(false, true) {
				logger.Warn("decision loop tick dropped: previous tick still in flight")
				continue
			}
			go func() {
				defer s.running.Store(false)
				if err := s.runTick(ctx); err != nil {
					logger.WithError(err).Error("decision loop tick failed")
				}
			}()
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context) error {
	s.iteration++
	now := time.Now().UTC()
	logger.WithField("iteration", s.iteration).Info("decision loop tick")

	account, err := s.exchange.GetAccount(ctx)
	if err != nil {
		return err
	}
	openPositions, err := s.positions.FindAllOpen(ctx)
	if err != nil {
		return err
	}

	views := make([]PositionView, 0, len(openPositions))
	for _, p := range openPositions {
		ticker, err := s.exchange.GetTicker(ctx, p.Symbol, true)
		if err != nil {
			logger.WithError(err).WithField("symbol", p.Symbol).Warn("failed to fetch mark price for position snapshot")
			continue
		}
		pnlPct := decimal.Zero
		if p.Side == model.PositionSideShort {
			pnlPct = p.EntryPrice.Sub(ticker.MarkPrice).Div(p.EntryPrice)
		} else {
			pnlPct = ticker.MarkPrice.Sub(p.EntryPrice).Div(p.EntryPrice)
		}
		views = append(views, PositionView{
			Symbol: p.Symbol, Side: p.Side, Quantity: p.Quantity, EntryPrice: p.EntryPrice,
			MarkPrice: ticker.MarkPrice, PnlPercent: pnlPct, HoldingMinutes: now.Sub(p.OpenedAt).Minutes(),
			WarningScore: p.Metadata.WarningScore, ReversalWarning: p.Metadata.ReversalWarning,
			PartialsExecuted: p.Metadata.PartialsExecuted, StopState: p.Metadata.StopState,
		})
	}

	opportunities := make([]llm.OpportunityScore, 0, len(s.cfg.Symbols))
	for _, symbol := range s.cfg.Symbols {
		var scoringCandles []model.Candle
		for _, interval := range s.cfg.CandleIntervals {
			candles, err := s.exchange.GetCandles(ctx, symbol, interval, 50)
			if err != nil {
				logger.WithError(err).WithFields(map[string]interface{}{"symbol": symbol, "interval": interval}).Warn("failed to refresh candles")
				continue
			}
			if scoringCandles == nil {
				scoringCandles = candles
			}
		}
		if scoringCandles != nil {
			opportunities = append(opportunities, llm.ScoreOpeningOpportunity(symbol, scoringCandles))
		}
	}

	// Rank by score and cap to MaxOpportunities before handing the list
	// to the LLM collaborator, per spec §6's MAX_OPPORTUNITIES_TO_SHOW.
	sort.Slice(opportunities, func(i, j int) bool { return opportunities[i].Score > opportunities[j].Score })
	limit := s.cfg.MaxOpportunities
	if limit <= 0 || limit > len(opportunities) {
		limit = len(opportunities)
	}
	rankedSymbols := make([]string, 0, limit)
	for _, opp := range opportunities[:limit] {
		rankedSymbols = append(rankedSymbols, opp.Symbol)
	}
	if len(rankedSymbols) == 0 {
		// every candle fetch failed this tick; fall back to the
		// configured watchlist rather than handing the LLM nothing.
		rankedSymbols = s.cfg.Symbols
	}

	snapshot := &model.AccountHistorySnapshot{
		Timestamp: utils.ResetTime(now, "minute"), TotalValue: account.Total, UnrealizedPnl: account.UnrealizedPnl,
		ReturnPercent: computeReturnPercent(ctx, s.history, account.Total),
	}
	if err := s.history.Append(ctx, snapshot); err != nil {
		logger.WithError(err).Warn("failed to append account history snapshot")
	}

	tickCtx := TickContext{
		Iteration: s.iteration, Timestamp: now, Account: account, Positions: views, Symbols: rankedSymbols,
	}
	prompt, err := json.Marshal(tickCtx)
	if err != nil {
		return err
	}

	calls, err := s.decider.Decide(ctx, string(prompt), llm.Specs())
	if err != nil {
		logger.WithError(err).Error("LLM collaborator decide call failed, skipping tick's dispatch")
		return err
	}

	result := s.dispatcher.Dispatch(ctx, calls)
	for _, violation := range result.PolicyViolations {
		logger.WithField("iteration", s.iteration).Warn("policy violation: " + violation)
	}

	decision := &model.AgentDecision{
		Timestamp: now, Iteration: s.iteration, Decision: string(prompt),
		ActionsTaken: result.ActionsTaken(), AccountValue: account.Total, PositionsCount: len(openPositions),
	}
	return s.decisions.Create(ctx, decision)
}

func computeReturnPercent(ctx context.Context, history *repository.AccountHistoryRepository, current decimal.Decimal) decimal.Decimal {
	initial, err := history.InitialBalance(ctx)
	if err != nil || initial.TotalValue.IsZero() {
		return decimal.Zero
	}
	return current.Sub(initial.TotalValue).Div(initial.TotalValue)
}
