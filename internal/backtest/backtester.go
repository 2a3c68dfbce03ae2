// Package backtest replays historical bars through the live signal
// pipeline and scores each recorded signal by its forward return.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/newthinker/scalper/internal/core"
	"github.com/newthinker/scalper/internal/history"
	"github.com/newthinker/scalper/internal/indicator"
	"github.com/newthinker/scalper/internal/strategy"
)

// BarSource fetches historical bars. collector.Collector satisfies it.
type BarSource interface {
	FetchBars(ctx context.Context, symbol, rng, interval string) ([]core.OHLCV, error)
}

// Config holds replay settings
type Config struct {
	Params indicator.Params
	// Horizon is how many bars after a signal its exit is taken.
	Horizon       int
	DedupBySignal bool
}

// Backtester runs strategy replays against historical data
type Backtester struct {
	strategy strategy.Strategy
	cfg      Config
}

// New creates a new Backtester. A non-positive horizon becomes 5 bars.
func New(strat strategy.Strategy, cfg Config) *Backtester {
	if cfg.Horizon <= 0 {
		cfg.Horizon = 5
	}
	return &Backtester{strategy: strat, cfg: cfg}
}

// Run fetches bars for pair from src and replays them.
func (b *Backtester) Run(ctx context.Context, src BarSource, pair core.Pair, rng, interval string) (*Result, error) {
	bars, err := src.FetchBars(ctx, pair.Symbol, rng, interval)
	if err != nil {
		return nil, fmt.Errorf("fetching bars: %w", err)
	}
	res, err := b.Replay(ctx, pair, bars)
	if err != nil {
		return nil, err
	}
	res.Interval = interval
	return res, nil
}

// Replay evaluates every bar with enough history, records signals through
// a fresh history log stamped with bar times, and scores each record.
func (b *Backtester) Replay(ctx context.Context, pair core.Pair, bars []core.OHLCV) (*Result, error) {
	points, err := indicator.Points(bars, b.cfg.Params)
	if err != nil {
		return nil, err
	}

	var now time.Time
	log := history.NewLog(
		history.WithClock(func() time.Time { return now }),
		history.WithSignalDedup(b.cfg.DedupBySignal),
	)

	res := &Result{
		Strategy:    b.strategy.Name(),
		Pair:        pair,
		Horizon:     b.cfg.Horizon,
		From:        bars[0].Time,
		To:          bars[len(bars)-1].Time,
		Bars:        len(bars),
		Evaluations: make(map[core.Signal]int),
	}

	for _, pt := range points {
		bar := pt.Bar
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sig := b.strategy.Evaluate(bar)
		res.Evaluations[sig]++

		now = bar.Time
		rec, ok := log.Record(pair.Label, sig, bar.Close, bar.RSI)
		if !ok {
			continue
		}
		res.Trades = append(res.Trades, b.score(rec, bar, bars, pt.Index))
	}

	res.Records = log.All()
	res.Stats = CalculateStats(res.Trades)
	return res, nil
}

// score exits Horizon bars after entry. BUY profits from a rise and SELL
// from a fall.
func (b *Backtester) score(rec core.SignalRecord, entry core.PriceBar, bars []core.OHLCV, i int) Trade {
	t := Trade{
		Record:     rec,
		EntryTime:  entry.Time,
		EntryPrice: entry.Close,
	}

	exit := i + b.cfg.Horizon
	if exit >= len(bars) {
		exit = len(bars) - 1
	} else {
		t.Closed = true
	}
	t.ExitTime = bars[exit].Time
	t.ExitPrice = bars[exit].Close

	if t.EntryPrice > 0 {
		t.Return = (t.ExitPrice - t.EntryPrice) / t.EntryPrice
		if rec.Signal == core.SignalSell {
			t.Return = -t.Return
		}
	}
	return t
}
