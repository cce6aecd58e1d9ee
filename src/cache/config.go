package cache

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	TickerTTL    time.Duration `envconfig:"CACHE_TICKER_TTL" default:"60s"`
	CandlesTTL   time.Duration `envconfig:"CACHE_CANDLES_TTL" default:"600s"`
	PositionTTL  time.Duration `envconfig:"CACHE_POSITION_TTL" default:"30s"`
	AccountTTL   time.Duration `envconfig:"CACHE_ACCOUNT_TTL" default:"30s"`
	FundingTTL   time.Duration `envconfig:"CACHE_FUNDING_TTL" default:"3600s"`
	FeeTTL       time.Duration `envconfig:"CACHE_FEE_TTL" default:"300s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
