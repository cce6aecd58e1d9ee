package coordinator

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	MaxRequestsPerMinute   int           `envconfig:"COORDINATOR_MAX_REQUESTS_PER_MINUTE" default:"120"`
	MinRequestSpacing      time.Duration `envconfig:"COORDINATOR_MIN_REQUEST_SPACING" default:"50ms"`
	CircuitFailureThreshold int          `envconfig:"COORDINATOR_CIRCUIT_FAILURE_THRESHOLD" default:"5"`
	CircuitBreakerTimeout  time.Duration `envconfig:"COORDINATOR_CIRCUIT_BREAKER_TIMEOUT" default:"2m"`
	BackoffWindow          time.Duration `envconfig:"COORDINATOR_BACKOFF_WINDOW" default:"60s"`
	DefaultBanWindow       time.Duration `envconfig:"COORDINATOR_DEFAULT_BAN_WINDOW" default:"5m"`
	ReportInterval         time.Duration `envconfig:"COORDINATOR_REPORT_INTERVAL" default:"5m"`
	HighFrequencyThreshold int           `envconfig:"COORDINATOR_HIGH_FREQUENCY_THRESHOLD" default:"15"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
