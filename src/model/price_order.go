package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PriceOrderTypeStopLoss          = "stop_loss"
	PriceOrderTypeTakeProfit        = "take_profit"
	PriceOrderTypeExtremeTakeProfit = "extreme_take_profit"

	PriceOrderStatusActive    = "active"
	PriceOrderStatusTriggered = "triggered"
	PriceOrderStatusCancelled = "cancelled"
)

// PriceOrder is the local mirror of a server-side trigger order. At most
// one active stop_loss and one active take_profit may exist per
// (Symbol, Side); repository.PriceOrderRepository enforces this the way
// the teacher's OrderRepository enforced external-id uniqueness per user.
type PriceOrder struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	OrderID          string          `gorm:"size:100;index" json:"order_id"`
	Symbol           string          `gorm:"size:50;not null;index" json:"symbol"`
	Side             string          `gorm:"size:10;not null" json:"side"`
	Type             string          `gorm:"size:30;not null" json:"type"`
	TriggerPrice     decimal.Decimal `gorm:"type:numeric;not null" json:"trigger_price"`
	OrderPrice       decimal.Decimal `gorm:"type:numeric" json:"order_price"`
	Quantity         decimal.Decimal `gorm:"type:numeric;not null" json:"quantity"`
	Status           string          `gorm:"size:20;not null;default:active" json:"status"`
	PositionOrderID  uint            `gorm:"index" json:"position_order_id"`
	ExchangeTriggerID string         `gorm:"size:100" json:"exchange_trigger_id"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (PriceOrder) TableName() string { return "price_orders" }
