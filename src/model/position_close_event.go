package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CloseReasonTakeProfitTriggered = "take_profit_triggered"
	CloseReasonPartialClose        = "partial_close"
	CloseReasonStopLossTriggered   = "stop_loss_triggered"
	CloseReasonTrendReversal       = "trend_reversal"
	CloseReasonPeakDrawdown        = "peak_drawdown"
	CloseReasonHardTimeCap         = "hard_time_cap"
	CloseReasonManual              = "manual"
	CloseReasonSystemRecovered     = "system_recovered"
)

// PositionCloseEvent is written by both the normal close path (risk
// engine) and the reconciler. Processed is set once the notifier has
// consumed it, mirroring the teacher's status-then-audit-log pattern on
// OrderRepository.UpdateStatusWithAutoLog.
type PositionCloseEvent struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Symbol      string          `gorm:"size:50;not null;index" json:"symbol"`
	Side        string          `gorm:"size:10;not null" json:"side"`
	EntryPrice  decimal.Decimal `gorm:"type:numeric;not null" json:"entry_price"`
	ClosePrice  decimal.Decimal `gorm:"type:numeric;not null" json:"close_price"`
	Quantity    decimal.Decimal `gorm:"type:numeric;not null" json:"quantity"`
	Leverage    decimal.Decimal `gorm:"type:numeric;not null" json:"leverage"`
	Pnl         decimal.Decimal `gorm:"type:numeric;not null" json:"pnl"`
	PnlPercent  decimal.Decimal `gorm:"type:numeric;not null" json:"pnl_percent"`
	Fee         decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"fee"`
	CloseReason string          `gorm:"size:40;not null" json:"close_reason"`
	TriggerType string          `gorm:"size:40" json:"trigger_type"`
	OrderID     string          `gorm:"size:100;index" json:"order_id"`
	Processed   bool            `gorm:"not null;default:false" json:"processed"`
	CreatedAt   time.Time       `gorm:"index" json:"created_at"`
}

func (PositionCloseEvent) TableName() string { return "position_close_events" }
