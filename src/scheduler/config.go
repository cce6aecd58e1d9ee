package scheduler

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Symbols           []string      `envconfig:"TRADING_SYMBOLS" default:"BTC"`
	Interval          time.Duration `envconfig:"TRADING_INTERVAL_MINUTES" default:"15m"`
	OpeningScoreFloor int           `envconfig:"LLM_OPENING_SCORE_FLOOR" default:"70"`
	CandleIntervals   []string      `envconfig:"TRADING_CANDLE_INTERVALS" default:"5m,15m,1h"`

	// MaxOpportunities caps how many ranked open-candidate symbols are
	// handed to the LLM collaborator per tick, so a large watchlist
	// doesn't blow out the prompt context.
	MaxOpportunities int `envconfig:"MAX_OPPORTUNITIES_TO_SHOW" default:"5"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing scheduler env config: %w", err))
	}
	return config
}
