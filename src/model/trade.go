package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TradeTypeOpen  = "open"
	TradeTypeClose = "close"

	TradeStatusPending = "pending"
	TradeStatusFilled  = "filled"
	TradeStatusFailed  = "failed"
)

// Trade is one fill-level row: an open or a close of a (Symbol, Side).
// A close row must be preceded by a same-(Symbol, Side) open row with a
// strictly smaller Timestamp; repository.TradeRepository.CreateClose
// enforces this.
type Trade struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	OrderID   string          `gorm:"size:100;index" json:"order_id"`
	Symbol    string          `gorm:"size:50;not null;index" json:"symbol"`
	Side      string          `gorm:"size:10;not null" json:"side"`
	Type      string          `gorm:"size:10;not null" json:"type"`
	Price     decimal.Decimal `gorm:"type:numeric;not null" json:"price"`
	Quantity  decimal.Decimal `gorm:"type:numeric;not null" json:"quantity"`
	Leverage  decimal.Decimal `gorm:"type:numeric;not null" json:"leverage"`
	Pnl       *decimal.Decimal `gorm:"type:numeric" json:"pnl,omitempty"`
	Fee       decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"fee"`
	Status    string          `gorm:"size:20;not null" json:"status"`
	Timestamp time.Time       `gorm:"not null;index" json:"timestamp"`
	CreatedAt time.Time       `json:"created_at"`
}

func (Trade) TableName() string { return "trades" }
