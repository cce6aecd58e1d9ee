// Package config aggregates every component's per-package Config into
// one struct cmd/agent loads once at startup, matching the
// config -> store -> exchange adapter -> ... -> HTTP init order the
// project's dependency graph requires. Each sub-config keeps its own
// envconfig.Process call so a package can still be unit-tested or wired
// standalone without this aggregator.
package config

import (
	"perpagent/src/cache"
	"perpagent/src/coordinator"
	"perpagent/src/database"
	"perpagent/src/exchange"
	"perpagent/src/health"
	"perpagent/src/llm"
	"perpagent/src/notifier"
	"perpagent/src/reconciler"
	"perpagent/src/reversal"
	"perpagent/src/risk"
	"perpagent/src/scheduler"
	"perpagent/src/security"
	"perpagent/src/server"
)

type Config struct {
	Database    database.Config
	Exchange    exchange.Config
	Security    security.Config
	Coordinator coordinator.Config
	Cache       cache.Config
	Notifier    notifier.Config
	Risk        risk.Config
	LLM         llm.Config
	Scheduler   scheduler.Config
	Reversal    reversal.Config
	Reconciler  reconciler.Config
	Health      health.Config
	Server      server.Config
}

// Load reads every sub-config from the environment. It panics on a
// malformed environment, matching each sub-package's own GetConfig
// behavior — there is no sensible degraded mode for a bad config.
func Load() Config {
	return Config{
		Database:    database.GetConfig(),
		Exchange:    exchange.GetConfig(),
		Security:    security.GetConfig(),
		Coordinator: coordinator.GetConfig(),
		Cache:       cache.GetConfig(),
		Notifier:    notifier.GetConfig(),
		Risk:        risk.GetConfig(),
		LLM:         llm.GetConfig(),
		Scheduler:   scheduler.GetConfig(),
		Reversal:    reversal.GetConfig(),
		Reconciler:  reconciler.GetConfig(),
		Health:      health.GetConfig(),
		Server:      *server.GetConfig(),
	}
}
