package database

import (
	"fmt"
	"time"

	"perpagent/src/model"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DB is the single read/write database connection used by the
// application. Unlike the teacher, which split MainDB/ReadOnlyDB for a
// multi-tenant SaaS workload, a single-account agent has no read-replica
// fan-out need, so only one connection pool is kept.
var DB *gorm.DB

// InitDB opens the store connection and runs AutoMigrate over the full
// model set, grounded on database/db_main.go's connection-pool tuning
// and migration invocation.
func InitDB() error {
	config := GetConfig()

	var dialector gorm.Dialector
	switch config.Driver {
	case "postgres":
		dialector = postgres.Open(config.DatabaseURL)
	default:
		dialector = sqlite.Open(config.DatabaseURL)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.LogLevel(config.GormLogLevel)),
	})
	if err != nil {
		logrus.WithError(err).Error("Failed to connect to database")
		return fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB from gorm: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	DB = db
	logrus.Info("[database] connection established")

	if err := DB.AutoMigrate(
		&model.Position{},
		&model.Trade{},
		&model.PriceOrder{},
		&model.PositionCloseEvent{},
		&model.InconsistentState{},
		&model.AgentDecision{},
		&model.AccountHistorySnapshot{},
		&model.Candle{},
	); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	logrus.Info("[database] migrations completed")
	return nil
}
