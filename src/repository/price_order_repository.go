package repository

import (
	"context"
	"fmt"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"perpagent/src/database"
	"perpagent/src/model"
)

// PriceOrderRepository mirrors server-side triggers locally, grounded on
// the teacher's PhemexOrderRepository (src/repository/phemex_order_repository.go).
type PriceOrderRepository struct {
	db *gorm.DB
}

func NewPriceOrderRepository() *PriceOrderRepository {
	return &PriceOrderRepository{db: database.DB}
}

func (r *PriceOrderRepository) WithDB(db *gorm.DB) *PriceOrderRepository {
	return &PriceOrderRepository{db: db}
}

// ActiveByType returns the single active trigger of the given type for
// (symbol, side), or nil. Enforces the "at most one active stop_loss and
// one active take_profit" invariant at read time; Create below enforces
// it at write time.
func (r *PriceOrderRepository) ActiveByType(ctx context.Context, symbol, side, triggerType string) (*model.PriceOrder, error) {
	var po model.PriceOrder
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND side = ? AND type = ? AND status = ?", symbol, side, triggerType, model.PriceOrderStatusActive).
		First(&po).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &po, err
}

func (r *PriceOrderRepository) Create(ctx context.Context, po *model.PriceOrder) error {
	existing, err := r.ActiveByType(ctx, po.Symbol, po.Side, po.Type)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("active %s trigger already exists for %s/%s", po.Type, po.Symbol, po.Side)
	}
	logger.WithFields(map[string]interface{}{
		"repo": "PriceOrderRepository", "op": "Create", "symbol": po.Symbol, "type": po.Type,
	}).Info("creating price order trigger")
	return r.db.WithContext(ctx).Create(po).Error
}

func (r *PriceOrderRepository) UpdateTriggerPrice(ctx context.Context, id uint, newPrice interface{}) error {
	return r.db.WithContext(ctx).Model(&model.PriceOrder{}).Where("id = ?", id).Update("trigger_price", newPrice).Error
}

func (r *PriceOrderRepository) MarkStatus(ctx context.Context, id uint, status string) error {
	return r.db.WithContext(ctx).Model(&model.PriceOrder{}).Where("id = ?", id).Update("status", status).Error
}

// CancelAllActive cancels all active triggers for (symbol, side); called
// idempotently on close — calling it twice is observationally equivalent
// to calling it once (spec §8 round-trip property).
func (r *PriceOrderRepository) CancelAllActive(ctx context.Context, symbol, side string) error {
	return r.db.WithContext(ctx).Model(&model.PriceOrder{}).
		Where("symbol = ? AND side = ? AND status = ?", symbol, side, model.PriceOrderStatusActive).
		Update("status", model.PriceOrderStatusCancelled).Error
}

func (r *PriceOrderRepository) FindAllActive(ctx context.Context) ([]model.PriceOrder, error) {
	var rows []model.PriceOrder
	err := r.db.WithContext(ctx).Where("status = ?", model.PriceOrderStatusActive).Find(&rows).Error
	return rows, err
}
