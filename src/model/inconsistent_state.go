package model

import "time"

// InconsistentState is created when a write to the store fails after the
// exchange already acknowledged the mutation — the split-state failure
// path described by the risk engine and reconciler. It generalizes the
// teacher's Exception row (src/model/exception.go) from a generic
// service/module/method audit trail to the narrower, resolvable
// split-state lifecycle the reconciler drives to completion.
type InconsistentState struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Operation       string     `gorm:"size:60;not null" json:"operation"`
	Symbol          string     `gorm:"size:50;not null;index" json:"symbol"`
	Side            string     `gorm:"size:10;not null" json:"side"`
	ExchangeOrderID string     `gorm:"size:100" json:"exchange_order_id"`
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`
	Resolved        bool       `gorm:"not null;default:false;index" json:"resolved"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy      string     `gorm:"size:20" json:"resolved_by,omitempty"`
	FailureCount    int        `gorm:"not null;default:0" json:"failure_count"`
	LastError       string     `gorm:"size:500" json:"last_error,omitempty"`
}

func (InconsistentState) TableName() string { return "inconsistent_states" }
