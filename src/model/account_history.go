package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountHistorySnapshot is appended once per scheduler tick. The oldest
// row anchors "initial balance" for return-percent calculations; the
// table is append-only and strictly monotonic in Timestamp (spec
// invariant enforced by repository.AccountHistoryRepository.Append).
type AccountHistorySnapshot struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	Timestamp       time.Time       `gorm:"not null;index" json:"timestamp"`
	TotalValue      decimal.Decimal `gorm:"type:numeric;not null" json:"total_value"`
	UnrealizedPnl   decimal.Decimal `gorm:"type:numeric;not null" json:"unrealized_pnl"`
	ReturnPercent   decimal.Decimal `gorm:"type:numeric;not null" json:"return_percent"`
}

func (AccountHistorySnapshot) TableName() string { return "account_history" }
