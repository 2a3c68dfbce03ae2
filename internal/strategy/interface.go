package strategy

import (
	"github.com/newthinker/scalper/internal/core"
)

// Config holds strategy configuration
type Config struct {
	Params map[string]any
}

// Strategy maps an indicator snapshot to a discrete signal.
// Evaluate must be pure: same bar, same signal.
type Strategy interface {
	Name() string
	Description() string
	Init(cfg Config) error
	Evaluate(bar core.PriceBar) core.Signal
}
