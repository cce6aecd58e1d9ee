package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"perpagent/src/database"
	"perpagent/src/model"
)

// PositionRepository handles read/write operations for local position
// mirrors, grounded on the teacher's OrderRepository (src/repository/orderRep.go).
type PositionRepository struct {
	db *gorm.DB
}

func NewPositionRepository() *PositionRepository {
	return &PositionRepository{db: database.DB}
}

// WithDB allows overriding the underlying *gorm.DB instance, used by
// tests and by callers that need the repository to participate in an
// existing transaction.
func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// FindBySymbolSide returns (nil, nil) if no open position exists.
func (r *PositionRepository) FindBySymbolSide(ctx context.Context, symbol, side string) (*model.Position, error) {
	var p model.Position
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND side = ?", symbol, side).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository", "op": "FindBySymbolSide", "symbol": symbol, "side": side,
		}).WithError(err).Error("failed to find position")
		return nil, err
	}
	return &p, nil
}

func (r *PositionRepository) FindAllOpen(ctx context.Context) ([]model.Position, error) {
	var positions []model.Position
	err := r.db.WithContext(ctx).Find(&positions).Error
	return positions, err
}

// Create inserts a new Position row. Callers must ensure, under the
// per-(symbol, side) mutex, that no row already exists for this key —
// the unique index is the backstop, not the primary guard.
func (r *PositionRepository) Create(ctx context.Context, p *model.Position) error {
	logger.WithFields(map[string]interface{}{
		"repo": "PositionRepository", "op": "Create", "symbol": p.Symbol, "side": p.Side,
	}).Info("creating position")

	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		logger.WithError(err).Error("failed to create position")
		return err
	}
	return nil
}

func (r *PositionRepository) Update(ctx context.Context, p *model.Position) error {
	return r.db.WithContext(ctx).Save(p).Error
}

// Delete removes the local Position row. Callers perform this inside the
// same transaction as the close Trade/PositionCloseEvent writes.
func (r *PositionRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&model.Position{}, id).Error
}
