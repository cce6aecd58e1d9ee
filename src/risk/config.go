package risk

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ATRPeriod            int     `envconfig:"RISK_ATR_PERIOD" default:"14"`
	ATRMultiplier        float64 `envconfig:"RISK_ATR_MULTIPLIER" default:"1.5"`
	MinStopDistancePct   float64 `envconfig:"RISK_MIN_STOP_DISTANCE_PCT" default:"0.005"`
	MaxStopDistancePct   float64 `envconfig:"RISK_MAX_STOP_DISTANCE_PCT" default:"0.03"`
	RMultiple            float64 `envconfig:"RISK_R_MULTIPLE" default:"5"`
	TrailLookback        int     `envconfig:"RISK_TRAIL_LOOKBACK" default:"20"`
	PeakDrawdownFraction float64 `envconfig:"RISK_PEAK_DRAWDOWN_FRACTION" default:"0.4"`
	EmergencyScoreFloor  int     `envconfig:"RISK_EMERGENCY_SCORE_FLOOR" default:"70"`
	HardTimeCapHours     int     `envconfig:"RISK_HARD_TIME_CAP_HOURS" default:"36"`

	// NY-session sizing flag, false by default. No code path reads it;
	// see session.go.
	EnableSessionSizing bool `envconfig:"ENABLE_SESSION_SIZING" default:"false"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// PartialTier is one staged take-profit level per spec §4.4.
type PartialTier struct {
	RMultiple float64
	Fraction  float64 // fraction of ORIGINAL quantity to close at this tier
	Final     bool
}

// DefaultPartialTiers matches spec §8's worked scenario: 33% at 2R, 33%
// at 3R, the remainder at 4R.
func DefaultPartialTiers() []PartialTier {
	return []PartialTier{
		{RMultiple: 2, Fraction: 0.33},
		{RMultiple: 3, Fraction: 0.33},
		{RMultiple: 4, Fraction: 0.34, Final: true},
	}
}

// TrailTier is one stop-advancement step keyed by PnL percent reached.
type TrailTier struct {
	PnlPercentFloor float64
	StopPnlPercent  float64
}

func DefaultTrailTiers() []TrailTier {
	return []TrailTier{
		{PnlPercentFloor: 0.01, StopPnlPercent: 0},
		{PnlPercentFloor: 0.02, StopPnlPercent: 0.01},
		{PnlPercentFloor: 0.04, StopPnlPercent: 0.02},
	}
}
