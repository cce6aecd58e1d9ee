package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle generalizes the teacher's per-timeframe OHLCVCrypto1m/OHLCVCrypto1h
// tables into one table keyed by (Symbol, Interval, Datetime), since the
// exchange capability interface's getCandles supports an open interval
// set ({1m,5m,15m,30m,1h,4h,1d}) rather than the teacher's fixed pair.
type Candle struct {
	ID       uint            `gorm:"primaryKey" json:"id"`
	Symbol   string          `json:"symbol" gorm:"size:50;not null;uniqueIndex:ux_candle_symbol_interval_datetime,priority:1"`
	Interval string          `json:"interval" gorm:"size:10;not null;uniqueIndex:ux_candle_symbol_interval_datetime,priority:2"`
	Datetime time.Time       `json:"datetime" gorm:"not null;uniqueIndex:ux_candle_symbol_interval_datetime,priority:3;index:idx_candle_datetime"`
	Open     decimal.Decimal `json:"open" gorm:"type:numeric;not null"`
	High     decimal.Decimal `json:"high" gorm:"type:numeric;not null"`
	Low      decimal.Decimal `json:"low" gorm:"type:numeric;not null"`
	Close    decimal.Decimal `json:"close" gorm:"type:numeric;not null"`
	Volume   decimal.Decimal `json:"volume" gorm:"type:numeric;not null"`
}

func (Candle) TableName() string { return "candles" }

func (c Candle) IsBullish() bool { return c.Close.GreaterThan(c.Open) }
func (c Candle) IsBearish() bool { return c.Close.LessThan(c.Open) }
