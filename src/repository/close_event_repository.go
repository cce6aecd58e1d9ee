package repository

import (
	"context"

	"gorm.io/gorm"

	"perpagent/src/database"
	"perpagent/src/model"
)

// CloseEventRepository is a thin read-side accessor; writes happen inside
// TradeRepository.CreateClose's transaction (and the reconciler's own
// transaction) so the event and its sibling rows never diverge.
type CloseEventRepository struct {
	db *gorm.DB
}

func NewCloseEventRepository() *CloseEventRepository {
	return &CloseEventRepository{db: database.DB}
}

func (r *CloseEventRepository) WithDB(db *gorm.DB) *CloseEventRepository {
	return &CloseEventRepository{db: db}
}

func (r *CloseEventRepository) FindUnprocessed(ctx context.Context) ([]model.PositionCloseEvent, error) {
	var rows []model.PositionCloseEvent
	err := r.db.WithContext(ctx).Where("processed = ?", false).Order("created_at ASC").Find(&rows).Error
	return rows, err
}

func (r *CloseEventRepository) MarkProcessed(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&model.PositionCloseEvent{}).Where("id = ?", id).Update("processed", true).Error
}

func (r *CloseEventRepository) FindRecent(ctx context.Context, limit int) ([]model.PositionCloseEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []model.PositionCloseEvent
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// FindAll returns every close event with no limit, for aggregate
// statistics that must reflect the whole trading history rather than a
// recent window.
func (r *CloseEventRepository) FindAll(ctx context.Context) ([]model.PositionCloseEvent, error) {
	var rows []model.PositionCloseEvent
	err := r.db.WithContext(ctx).Order("created_at ASC").Find(&rows).Error
	return rows, err
}
