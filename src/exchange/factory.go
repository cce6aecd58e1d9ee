package exchange

import "fmt"

// New builds the configured adapter. Only one contract family is active
// per deployment, per spec §1's single-symbol, single-account scope.
func New(cfg Config) (Exchange, error) {
	switch cfg.ContractKind {
	case "inverse":
		return NewInverseAdapter(cfg), nil
	case "linear", "":
		return NewLinearAdapter(cfg), nil
	default:
		return nil, fmt.Errorf("unknown EXCHANGE_CONTRACT_TYPE %q", cfg.ContractKind)
	}
}
