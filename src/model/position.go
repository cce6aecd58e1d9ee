package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	PositionSideLong  = "long"
	PositionSideShort = "short"
)

// PositionMetadata carries the derived, frequently-rewritten fields that
// the Reversal Monitor and Risk Engine attach to an open Position between
// scheduler ticks. It is stored as jsonb so it can evolve without a
// migration, mirroring how the teacher stores free-form context on
// TransactionLog/Exception rows.
type PositionMetadata struct {
	WarningScore      int             `json:"warning_score"`
	ReversalWarning   bool            `json:"reversal_warning"`
	ReversalScore     int             `json:"reversal_score"`
	PeakPnlPercent    decimal.Decimal `json:"peak_pnl_percent"`
	PartialsExecuted  int             `json:"partials_executed"`
	StopState         string          `json:"stop_state"`
	LastEvaluatedTick time.Time       `json:"last_evaluated_tick"`
}

// Value implements driver.Valuer so PositionMetadata can be stored in a
// jsonb/text column regardless of driver (postgres or sqlite).
func (m PositionMetadata) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *PositionMetadata) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	switch v := src.(type) {
	case string:
		return json.Unmarshal([]byte(v), m)
	case []byte:
		return json.Unmarshal(v, m)
	default:
		return fmt.Errorf("unsupported type for PositionMetadata: %T", src)
	}
}

// Position mirrors, locally, one open exchange position. At most one row
// may exist per (Symbol, Side); the ux_position_symbol_side unique index
// below enforces this invariant. PositionRepository.Create does not check
// for an existing row first, so a duplicate insert fails on the index.
type Position struct {
	ID                   uint            `gorm:"primaryKey" json:"id"`
	Symbol               string          `gorm:"size:50;not null;uniqueIndex:ux_position_symbol_side,priority:1" json:"symbol"`
	Side                 string          `gorm:"size:10;not null;uniqueIndex:ux_position_symbol_side,priority:2" json:"side"`
	Quantity             decimal.Decimal `gorm:"type:numeric;not null" json:"quantity"` // remaining, shrinks as partials fire
	OpenedQuantity       decimal.Decimal `gorm:"type:numeric;not null" json:"opened_quantity"` // fixed at open; partial tier fractions are of this
	Leverage             decimal.Decimal `gorm:"type:numeric;not null" json:"leverage"`
	EntryPrice           decimal.Decimal `gorm:"type:numeric;not null" json:"entry_price"`
	OpenedAt             time.Time       `json:"opened_at"`
	StopLoss             *decimal.Decimal `gorm:"type:numeric" json:"stop_loss,omitempty"`
	TakeProfit           *decimal.Decimal `gorm:"type:numeric" json:"take_profit,omitempty"`
	PartialCloseFraction decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"partial_close_fraction"`
	OrderID              uint            `gorm:"index" json:"order_id"`
	Metadata             PositionMetadata `gorm:"type:jsonb" json:"metadata"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

func (Position) TableName() string { return "positions" }
