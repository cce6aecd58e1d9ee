package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AgentDecision is an append-only record of one Decision Loop Scheduler
// tick: what the LLM collaborator decided and which tool calls were
// actually executed. Grounded on the teacher's TransactionLog row shape
// (model/transaction_log.go), narrowed to the scheduler's own vocabulary.
type AgentDecision struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	Timestamp      time.Time       `gorm:"not null;index" json:"timestamp"`
	Iteration      uint64          `gorm:"not null" json:"iteration"`
	Decision       string          `gorm:"type:text" json:"decision"`
	ActionsTaken   string          `gorm:"type:text" json:"actions_taken"`
	AccountValue   decimal.Decimal `gorm:"type:numeric" json:"account_value"`
	PositionsCount int             `gorm:"not null;default:0" json:"positions_count"`
}

func (AgentDecision) TableName() string { return "agent_decisions" }
