package reversal

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config governs the Reversal Monitor's cadence and emergency-close
// threshold, per spec §4.6.
type Config struct {
	Interval     time.Duration `envconfig:"REVERSAL_MONITOR_INTERVAL_MINUTES" default:"3m"`
	ScoreFloor   int           `envconfig:"RISK_EMERGENCY_SCORE_FLOOR" default:"70"`
	CandleLimit  int           `envconfig:"REVERSAL_CANDLE_LIMIT" default:"30"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing reversal monitor env config: %w", err))
	}
	return config
}
