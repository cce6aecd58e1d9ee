package database

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the store connection settings, grounded on the teacher's
// database/config.go.
type Config struct {
	DatabaseURL  string `envconfig:"DATABASE_URL" default:"file:perpagent.db?cache=shared&_fk=1"`
	Driver       string `envconfig:"DATABASE_DRIVER" default:"sqlite"` // "sqlite" or "postgres"
	GormLogLevel int    `envconfig:"GORM_LOG_LEVEL" default:"1"`       // gorm/logger.LogLevel
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
