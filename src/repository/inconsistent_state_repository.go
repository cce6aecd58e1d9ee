package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"perpagent/src/database"
	"perpagent/src/model"
)

// InconsistentStateRepository persists and resolves split-state failure
// rows, grounded on the teacher's ExceptionRepository
// (src/repository/exception_repository.go).
type InconsistentStateRepository struct {
	db *gorm.DB
}

func NewInconsistentStateRepository() *InconsistentStateRepository {
	return &InconsistentStateRepository{db: database.DB}
}

func (r *InconsistentStateRepository) WithDB(db *gorm.DB) *InconsistentStateRepository {
	return &InconsistentStateRepository{db: db}
}

// Create writes the row in its own transaction, separate from whatever
// caller's logic failed — spec §7's split-state failure policy.
func (r *InconsistentStateRepository) Create(ctx context.Context, s *model.InconsistentState) error {
	logger.WithFields(map[string]interface{}{
		"repo": "InconsistentStateRepository", "op": "Create", "symbol": s.Symbol, "operation": s.Operation,
	}).Warn("recording inconsistent state")
	s.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *InconsistentStateRepository) FindUnresolved(ctx context.Context) ([]model.InconsistentState, error) {
	var rows []model.InconsistentState
	err := r.db.WithContext(ctx).Where("resolved = ?", false).Order("created_at ASC").Find(&rows).Error
	return rows, err
}

func (r *InconsistentStateRepository) MarkResolved(ctx context.Context, id uint, resolvedBy string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&model.InconsistentState{}).Where("id = ?", id).Updates(map[string]interface{}{
		"resolved":    true,
		"resolved_at": &now,
		"resolved_by": resolvedBy,
	}).Error
}

func (r *InconsistentStateRepository) IncrementFailure(ctx context.Context, id uint, lastErr string) error {
	return r.db.WithContext(ctx).Model(&model.InconsistentState{}).Where("id = ?", id).Updates(map[string]interface{}{
		"failure_count": gorm.Expr("failure_count + 1"),
		"last_error":    lastErr,
	}).Error
}

func (r *InconsistentStateRepository) CountUnresolved(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.InconsistentState{}).Where("resolved = ?", false).Count(&count).Error
	return count, err
}
