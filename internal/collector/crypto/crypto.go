// Package crypto collects intraday bars from crypto exchanges, falling back
// across providers in order.
package crypto

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/scalper/internal/collector"
	"github.com/newthinker/scalper/internal/core"
)

// Collector implements collector.Collector for cryptocurrency markets
type Collector struct {
	providers    []Provider
	defaultQuote string
	now          func() time.Time
}

// New creates a collector that tries providers in the given order.
func New(providers ...Provider) *Collector {
	return &Collector{
		providers:    providers,
		defaultQuote: "USDT",
		now:          time.Now,
	}
}

func (c *Collector) Name() string {
	return "crypto"
}

func (c *Collector) Init(cfg collector.Config) error {
	if quote, ok := cfg.Extra["default_quote"].(string); ok && quote != "" {
		c.defaultQuote = strings.ToUpper(quote)
	}
	if len(c.providers) == 0 {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("crypto collector needs at least one provider"))
	}
	if cfg.Timeout > 0 {
		for _, p := range c.providers {
			if t, ok := p.(interface{ SetTimeout(time.Duration) }); ok {
				t.SetTimeout(cfg.Timeout)
			}
		}
	}
	return nil
}

// Providers returns provider names in fallback order.
func (c *Collector) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// FetchQuote fetches the last price with automatic fallback
func (c *Collector) FetchQuote(ctx context.Context, symbol string) (*core.Quote, error) {
	normalized, err := c.normalize(symbol)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, p := range c.providers {
		quote, err := p.FetchQuote(ctx, normalized)
		if err == nil {
			quote.Symbol = normalized
			quote.Source = "crypto:" + p.Name()
			return quote, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}

	return nil, core.WrapError(core.ErrCollectorFailed,
		fmt.Errorf("all providers failed for %s: %w", normalized, errors.Join(errs...)))
}

// FetchBars fetches the most recent bars in rng with automatic fallback.
// The first provider returning bars wins.
func (c *Collector) FetchBars(ctx context.Context, symbol, rng, interval string) ([]core.OHLCV, error) {
	lookback, err := ParseRange(rng)
	if err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, err)
	}
	if _, err := IntervalDuration(interval); err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, err)
	}
	normalized, err := c.normalize(symbol)
	if err != nil {
		return nil, err
	}

	end := c.now()
	start := end.Add(-lookback)

	var errs []error
	for _, p := range c.providers {
		data, err := p.FetchBars(ctx, normalized, start, end, interval)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if len(data) == 0 {
			continue
		}
		for i := range data {
			data[i].Symbol = symbol
		}
		return data, nil
	}

	if len(errs) > 0 {
		return nil, core.WrapError(core.ErrCollectorFailed,
			fmt.Errorf("all providers failed for %s: %w", normalized, errors.Join(errs...)))
	}
	return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no bars for %s", normalized))
}

func (c *Collector) normalize(symbol string) (string, error) {
	if err := ValidateCryptoSymbol(symbol); err != nil {
		return "", core.WrapError(core.ErrSymbolNotFound, err)
	}
	return NormalizeSymbol(symbol, c.defaultQuote), nil
}

// ParseRange converts a lookback like "2d" or "1mo" to a duration.
func ParseRange(rng string) (time.Duration, error) {
	unit, mult := "", time.Duration(0)
	switch {
	case strings.HasSuffix(rng, "mo"):
		unit, mult = "mo", 30*24*time.Hour
	case strings.HasSuffix(rng, "d"):
		unit, mult = "d", 24*time.Hour
	case strings.HasSuffix(rng, "h"):
		unit, mult = "h", time.Hour
	default:
		return 0, fmt.Errorf("unsupported range: %s", rng)
	}

	n, err := strconv.Atoi(strings.TrimSuffix(rng, unit))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("unsupported range: %s", rng)
	}
	return time.Duration(n) * mult, nil
}

var intervals = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"1d":  24 * time.Hour,
}

// IntervalDuration returns the bar length for a supported interval.
func IntervalDuration(interval string) (time.Duration, error) {
	d, ok := intervals[interval]
	if !ok {
		return 0, fmt.Errorf("unsupported interval: %s", interval)
	}
	return d, nil
}

// BarLimit is the number of bars covering start..end, capped at max.
func BarLimit(start, end time.Time, interval string, max int) int {
	d, err := IntervalDuration(interval)
	if err != nil || d <= 0 {
		return max
	}
	n := int(end.Sub(start) / d)
	if n <= 0 {
		return 1
	}
	if n > max {
		return max
	}
	return n
}
