package llm

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// ToolName is the closed set of typed operations the LLM collaborator
// may request, per the Decision Loop Scheduler's tool vocabulary. No
// other tool name is ever dispatched.
type ToolName string

const (
	ToolAnalyzeOpeningOpportunities     ToolName = "analyzeOpeningOpportunities"
	ToolOpenPosition                    ToolName = "openPosition"
	ToolClosePosition                   ToolName = "closePosition"
	ToolCheckPartialTakeProfitOpportunity ToolName = "checkPartialTakeProfitOpportunity"
	ToolExecutePartialTakeProfit        ToolName = "executePartialTakeProfit"
	ToolUpdateTrailingStop              ToolName = "updateTrailingStop"
)

// ToolSpec is the description handed to the LLM collaborator so it
// knows what it can call and with which arguments. Parameters is a
// plain JSON-schema-shaped map, left loose since this package never
// validates against it directly — the typed Args structs below are the
// real contract on the dispatch side.
type ToolSpec struct {
	Name        ToolName               `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Specs returns the closed set of tool descriptions passed to the LLM
// collaborator on every Decide call.
func Specs() []ToolSpec {
	return []ToolSpec{
		{
			Name:        ToolAnalyzeOpeningOpportunities,
			Description: "Score candidate symbols for a new entry based on recent price action",
			Parameters: map[string]interface{}{
				"symbols": "string array of symbols to score",
			},
		},
		{
			Name:        ToolOpenPosition,
			Description: "Open a new position; must be preceded by a qualifying analyzeOpeningOpportunities score for the same symbol",
			Parameters: map[string]interface{}{
				"symbol": "string", "side": "long|short", "notionalUsdt": "decimal string", "leverage": "decimal string",
			},
		},
		{
			Name:        ToolClosePosition,
			Description: "Close an open position at market",
			Parameters: map[string]interface{}{
				"symbol": "string", "side": "long|short", "reason": "string",
			},
		},
		{
			Name:        ToolCheckPartialTakeProfitOpportunity,
			Description: "Report whether the next partial take-profit tier has been reached, without executing it",
			Parameters: map[string]interface{}{
				"symbol": "string", "side": "long|short",
			},
		},
		{
			Name:        ToolExecutePartialTakeProfit,
			Description: "Execute the next qualifying partial take-profit tier",
			Parameters: map[string]interface{}{
				"symbol": "string", "side": "long|short",
			},
		},
		{
			Name:        ToolUpdateTrailingStop,
			Description: "Advance the trailing stop according to the configured tier table",
			Parameters: map[string]interface{}{
				"symbol": "string", "side": "long|short",
			},
		},
	}
}

// ToolCall is one entry in the sequence a Decider returns. Arguments is
// kept raw so each handler can decode into its own typed struct without
// this package needing to know every shape up front.
type ToolCall struct {
	Name      ToolName        `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type AnalyzeOpeningOpportunitiesArgs struct {
	Symbols []string `json:"symbols"`
}

type OpenPositionArgs struct {
	Symbol       string          `json:"symbol"`
	Side         string          `json:"side"`
	NotionalUSDT decimal.Decimal `json:"notionalUsdt"`
	Leverage     decimal.Decimal `json:"leverage"`
}

type ClosePositionArgs struct {
	Symbol string `json:"symbol"`
	Side   string `json:"side"`
	Reason string `json:"reason"`
}

type CheckPartialTakeProfitOpportunityArgs struct {
	Symbol string `json:"symbol"`
	Side   string `json:"side"`
}

type ExecutePartialTakeProfitArgs struct {
	Symbol string `json:"symbol"`
	Side   string `json:"side"`
}

type UpdateTrailingStopArgs struct {
	Symbol string `json:"symbol"`
	Side   string `json:"side"`
}

func decodeArgs(raw json.RawMessage, into interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty tool arguments")
	}
	return json.Unmarshal(raw, into)
}
