package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"perpagent/src/database"
	"perpagent/src/model"
)

var ErrNoPrecedingOpenTrade = errors.New("no preceding open trade for symbol/side")

// TradeRepository persists fill-level rows and, for closes, the full
// close transaction described in spec §4.4 "on close": cancel sibling
// triggers, write the close Trade row, write the PositionCloseEvent,
// delete the Position row — atomically. Grounded on the teacher's
// OrderRepository.CreateWithAutoLog / UpdateStatusWithAutoLog pattern of
// pairing a primary write with an audit row inside one db.Transaction.
type TradeRepository struct {
	db *gorm.DB
}

func NewTradeRepository() *TradeRepository {
	return &TradeRepository{db: database.DB}
}

func (r *TradeRepository) WithDB(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// CreateOpen inserts the open Trade row, the Position row, and any
// PriceOrder trigger rows produced by the risk engine's OnOpen step, all
// in one transaction, mirroring spec §4.4 step 5.
func (r *TradeRepository) CreateOpen(ctx context.Context, trade *model.Trade, position *model.Position, triggers []model.PriceOrder) error {
	logger.WithFields(map[string]interface{}{
		"repo": "TradeRepository", "op": "CreateOpen", "symbol": trade.Symbol, "side": trade.Side,
	}).Info("creating open trade with position and triggers")

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(trade).Error; err != nil {
			return err
		}
		position.OrderID = trade.ID
		if err := tx.Create(position).Error; err != nil {
			return err
		}
		for i := range triggers {
			triggers[i].PositionOrderID = position.ID
			if err := tx.Create(&triggers[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateClose requires a preceding open Trade for (symbol, side) with a
// strictly smaller Timestamp (spec §3 invariant), then, in one
// transaction: cancels active triggers for (symbol, side), inserts the
// close Trade row, inserts the PositionCloseEvent, and deletes the
// Position row.
func (r *TradeRepository) CreateClose(
	ctx context.Context,
	close *model.Trade,
	event *model.PositionCloseEvent,
	positionID uint,
) error {
	logger.WithFields(map[string]interface{}{
		"repo": "TradeRepository", "op": "CreateClose", "symbol": close.Symbol, "side": close.Side,
	}).Info("creating close trade")

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var priorOpen model.Trade
		err := tx.Where("symbol = ? AND side = ? AND type = ? AND timestamp < ?",
			close.Symbol, close.Side, model.TradeTypeOpen, close.Timestamp).
			Order("timestamp DESC").First(&priorOpen).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoPrecedingOpenTrade
		}
		if err != nil {
			return err
		}

		if err := tx.Model(&model.PriceOrder{}).
			Where("symbol = ? AND side = ? AND status = ?", close.Symbol, close.Side, model.PriceOrderStatusActive).
			Update("status", model.PriceOrderStatusCancelled).Error; err != nil {
			return err
		}

		if err := tx.Create(close).Error; err != nil {
			return err
		}

		event.CreatedAt = time.Now().UTC()
		if err := tx.Create(event).Error; err != nil {
			return err
		}

		if err := tx.Delete(&model.Position{}, positionID).Error; err != nil {
			return err
		}

		return nil
	})
}

// CreatePartialClose records one partial take-profit fill: a close-type
// Trade row for the fraction exited, a PositionCloseEvent (normally
// closeReason=partial_close), and the position's updated
// remaining-quantity/metadata row — all in one transaction. Unlike
// CreateClose, the Position row is saved, not deleted, since the
// position stays open after a partial fill.
func (r *TradeRepository) CreatePartialClose(
	ctx context.Context,
	partial *model.Trade,
	event *model.PositionCloseEvent,
	position *model.Position,
) error {
	logger.WithFields(map[string]interface{}{
		"repo": "TradeRepository", "op": "CreatePartialClose", "symbol": partial.Symbol, "side": partial.Side,
	}).Info("creating partial close trade")

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(partial).Error; err != nil {
			return err
		}
		event.CreatedAt = time.Now().UTC()
		if err := tx.Create(event).Error; err != nil {
			return err
		}
		return tx.Save(position).Error
	})
}

// FindLastOpen returns the most recent open Trade row for (symbol,
// side), used by the reconciler to source the entry price/quantity/
// leverage it needs to synthesize a close when the local Position row
// is the thing in question rather than assumed intact.
func (r *TradeRepository) FindLastOpen(ctx context.Context, symbol, side string) (*model.Trade, error) {
	var trade model.Trade
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND side = ? AND type = ?", symbol, side, model.TradeTypeOpen).
		Order("timestamp DESC").First(&trade).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &trade, nil
}

// FindOpenBefore returns the open Trade row immediately preceding the
// given timestamp for (symbol, side), used to pair a close event with
// its opening fill for the dashboard's completed-trades view.
func (r *TradeRepository) FindOpenBefore(ctx context.Context, symbol, side string, before time.Time) (*model.Trade, error) {
	var trade model.Trade
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND side = ? AND type = ? AND timestamp < ?", symbol, side, model.TradeTypeOpen, before).
		Order("timestamp DESC").First(&trade).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &trade, nil
}

func (r *TradeRepository) FindRecent(ctx context.Context, symbol string, limit int) ([]model.Trade, error) {
	var trades []model.Trade
	q := r.db.WithContext(ctx).Order("timestamp DESC")
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	if limit <= 0 {
		limit = 100
	}
	err := q.Limit(limit).Find(&trades).Error
	return trades, err
}
