package health

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	RefreshInterval time.Duration `envconfig:"HEALTH_CHECK_INTERVAL_MINUTES" default:"1m"`

	// ReconcilerStaleAfter is how long a reconciler pass may go without
	// completing before its absence itself counts as unhealthy, distinct
	// from a pass that ran and errored.
	ReconcilerStaleAfter time.Duration `envconfig:"HEALTH_RECONCILER_STALE_AFTER" default:"30m"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing health env config: %w", err))
	}
	return config
}
