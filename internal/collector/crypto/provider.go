package crypto

import (
	"context"
	"time"

	"github.com/newthinker/scalper/internal/core"
)

// Provider defines the interface for cryptocurrency exchange data sources
type Provider interface {
	// Name returns the provider identifier (e.g., "binance", "okx")
	Name() string

	// FetchQuote fetches the last traded price for a normalized symbol (e.g., "BTCUSDT")
	FetchQuote(ctx context.Context, symbol string) (*core.Quote, error)

	// FetchBars fetches bars between start and end, oldest first.
	// interval: "1m", "5m", "15m", "30m", "1h", "1d"
	FetchBars(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.OHLCV, error)
}
