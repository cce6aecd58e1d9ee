package reconciler

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config governs the reconciler's resolve loop and the legacy taker-fee
// fallback used when an exchange fill comes back without a reported fee
// (spec §4.7's open question on fee sourcing is resolved here: prefer
// the actual fill fee, fall back to a flat rate only when absent).
type Config struct {
	Interval time.Duration `envconfig:"RESOLVE_INTERVAL_MINUTES" default:"10m"`

	// PriceOrderCheckInterval paces the trigger-state poller: how often
	// it checks whether a server-side stop-loss/take-profit trigger has
	// fired on its own, independent of the slower resolve pass above.
	PriceOrderCheckInterval time.Duration `envconfig:"PRICE_ORDER_CHECK_INTERVAL" default:"30s"`

	// LegacyTakerFeeRate is applied to notional when a Fill carries no
	// fee at all, matching the source's flat-fee fallback rather than a
	// per-venue schedule the agent has no reliable way to fetch after
	// the fact.
	LegacyTakerFeeRate float64 `envconfig:"RECONCILER_LEGACY_TAKER_FEE_RATE" default:"0.0005"`

	// WarningFailureThreshold/CriticalFailureThreshold gate the notifier
	// alerts spec §4.7 calls for: a single row stuck unresolved for this
	// many consecutive passes fires a warning; this many distinct rows
	// failing within a single pass fires a critical.
	WarningFailureThreshold  int `envconfig:"RECONCILER_WARNING_FAILURE_THRESHOLD" default:"5"`
	CriticalFailureThreshold int `envconfig:"RECONCILER_CRITICAL_FAILURE_THRESHOLD" default:"10"`

	TradeLookbackLimit int `envconfig:"RECONCILER_TRADE_LOOKBACK_LIMIT" default:"50"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing reconciler env config: %w", err))
	}
	return config
}
