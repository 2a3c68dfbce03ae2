package collector

import (
	"context"
	"time"

	"github.com/newthinker/scalper/internal/core"
)

// Config holds collector configuration
type Config struct {
	Timeout time.Duration
	Extra   map[string]any
}

// Collector defines the interface for market data sources
type Collector interface {
	// Metadata
	Name() string

	// Lifecycle
	Init(cfg Config) error

	// Data fetching
	FetchQuote(ctx context.Context, symbol string) (*core.Quote, error)
	// FetchBars returns bars for a lookback range ("2d") at a bar interval ("1m"), oldest first.
	FetchBars(ctx context.Context, symbol, rng, interval string) ([]core.OHLCV, error)
}
