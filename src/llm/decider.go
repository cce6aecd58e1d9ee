package llm

import "context"

// Decider is the external LLM invocation contract: given a compact
// prompt context and the closed tool vocabulary, it returns the
// sequence of tool calls to execute this tick. The actual model call
// (provider, auth, prompt templating) lives outside this module's
// scope, same as the dashboard frontend and the e-mail transport
// internals — only the contract is specified here.
type Decider interface {
	Decide(ctx context.Context, prompt string, tools []ToolSpec) ([]ToolCall, error)
}

// NoopDecider satisfies Decider without ever calling out to a model; it
// is the wiring default until a real provider adapter is configured, in
// the same spirit as notifier's logging-only Transport.
type NoopDecider struct{}

func (NoopDecider) Decide(ctx context.Context, prompt string, tools []ToolSpec) ([]ToolCall, error) {
	return nil, nil
}
