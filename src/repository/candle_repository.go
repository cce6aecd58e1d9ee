package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"perpagent/src/database"
	"perpagent/src/model"
)

// CandleRepository stores and serves OHLCV candles across the interval
// set the exchange capability interface supports, generalized from the
// teacher's per-timeframe OHLCVRepository (src/repository/ohlcv_repository.go).
type CandleRepository struct {
	db *gorm.DB
}

func NewCandleRepository() *CandleRepository {
	return &CandleRepository{db: database.DB}
}

func (r *CandleRepository) WithDB(db *gorm.DB) *CandleRepository {
	return &CandleRepository{db: db}
}

// Upsert stores a batch of candles, overwriting any row with the same
// (symbol, interval, datetime) — exchange candle history can be
// re-fetched and re-applied idempotently.
func (r *CandleRepository) Upsert(ctx context.Context, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	logger.WithFields(map[string]interface{}{
		"repo": "CandleRepository", "op": "Upsert", "count": len(candles),
	}).Debug("storing candles")
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "interval"}, {Name: "datetime"}},
		DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume"}),
	}).Create(&candles).Error
}

// FetchRecent returns time-ascending candles, mirroring the teacher's
// FetchRecentOHLCV1m (which fetches newest-first then reverses).
func (r *CandleRepository) FetchRecent(ctx context.Context, symbol, interval string, to time.Time, limit int) ([]model.Candle, error) {
	if limit <= 0 {
		limit = 200
	}
	var rows []model.Candle
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND interval = ? AND datetime <= ?", symbol, interval, to).
		Order("datetime DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}
