package llm

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config governs the policy the Dispatcher enforces around tool calls
// emitted by the LLM collaborator. The LLM invocation itself (the actual
// HTTP call to a model provider) is an external contract per the system
// boundary; this package only types the tool-call vocabulary and
// enforces the gating policy around it.
type Config struct {
	OpeningScoreFloor   int `envconfig:"LLM_OPENING_SCORE_FLOOR" default:"70"`
	MaxToolCallsPerTick int `envconfig:"LLM_MAX_TOOL_CALLS_PER_TICK" default:"20"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing llm env config: %w", err))
	}
	return config
}
