package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"perpagent/src/database"
	"perpagent/src/model"
)

// AccountHistoryRepository enforces the append-only, strictly-monotonic-
// timestamp invariant from spec §8.
type AccountHistoryRepository struct {
	db *gorm.DB
}

func NewAccountHistoryRepository() *AccountHistoryRepository {
	return &AccountHistoryRepository{db: database.DB}
}

func (r *AccountHistoryRepository) WithDB(db *gorm.DB) *AccountHistoryRepository {
	return &AccountHistoryRepository{db: db}
}

func (r *AccountHistoryRepository) Append(ctx context.Context, snap *model.AccountHistorySnapshot) error {
	var last model.AccountHistorySnapshot
	err := r.db.WithContext(ctx).Order("timestamp DESC").First(&last).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if err == nil && !snap.Timestamp.After(last.Timestamp) {
		return fmt.Errorf("account_history timestamp must strictly advance: new=%s last=%s", snap.Timestamp, last.Timestamp)
	}
	return r.db.WithContext(ctx).Create(snap).Error
}

func (r *AccountHistoryRepository) FindChronological(ctx context.Context, limit int) ([]model.AccountHistorySnapshot, error) {
	if limit <= 0 {
		limit = 500
	}
	var rows []model.AccountHistorySnapshot
	err := r.db.WithContext(ctx).Order("timestamp ASC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *AccountHistoryRepository) InitialBalance(ctx context.Context) (model.AccountHistorySnapshot, error) {
	var first model.AccountHistorySnapshot
	err := r.db.WithContext(ctx).Order("timestamp ASC").First(&first).Error
	return first, err
}
