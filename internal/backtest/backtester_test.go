package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/newthinker/scalper/internal/core"
	"github.com/newthinker/scalper/internal/indicator"
	"github.com/newthinker/scalper/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

// mockSource implements BarSource for testing
type mockSource struct {
	bars []core.OHLCV
	err  error
	got  []string
}

func (m *mockSource) FetchBars(ctx context.Context, symbol, rng, interval string) ([]core.OHLCV, error) {
	m.got = []string{symbol, rng, interval}
	if m.err != nil {
		return nil, m.err
	}
	return m.bars, nil
}

// scriptedStrategy signals by bar index and is NEUTRAL elsewhere
type scriptedStrategy struct {
	signals map[int]core.Signal
}

func (s *scriptedStrategy) Name() string                   { return "scripted" }
func (s *scriptedStrategy) Description() string            { return "signals at fixed bars" }
func (s *scriptedStrategy) Init(cfg strategy.Config) error { return nil }
func (s *scriptedStrategy) Evaluate(bar core.PriceBar) core.Signal {
	i := int(bar.Time.Sub(start) / time.Minute)
	if sig, ok := s.signals[i]; ok {
		return sig
	}
	return core.SignalNeutral
}

// drifting returns n one-minute bars rising 0.001 per bar with a zigzag.
// Bar 12 repeats bar 11's close.
func drifting(n int) []core.OHLCV {
	bars := make([]core.OHLCV, n)
	for i := range bars {
		c := 1.0 + 0.001*float64(i) + 0.002*float64(i%2)
		if i == 12 {
			c = bars[11].Close
		}
		bars[i] = core.OHLCV{Symbol: "EURUSD=X", Interval: "1m", Open: c, High: c, Low: c, Close: c,
			Time: start.Add(time.Duration(i) * time.Minute)}
	}
	return bars
}

func newBacktester() *Backtester {
	strat := &scriptedStrategy{signals: map[int]core.Signal{
		10: core.SignalBuy,
		11: core.SignalBuy,
		12: core.SignalBuy, // same price as 11, suppressed
		20: core.SignalSell,
		38: core.SignalSell, // horizon runs past the data
	}}
	return New(strat, Config{
		Params:  indicator.Params{RSIPeriod: 3, BBPeriod: 3, MinBars: 5},
		Horizon: 5,
	})
}

func TestBacktester_Replay(t *testing.T) {
	pair := core.Pair{Label: "EUR/USD", Symbol: "EURUSD=X"}
	bars := drifting(40)

	res, err := newBacktester().Replay(context.Background(), pair, bars)
	require.NoError(t, err)

	assert.Equal(t, "scripted", res.Strategy)
	assert.Equal(t, 40, res.Bars)
	assert.Equal(t, 3, res.Evaluations[core.SignalBuy])
	assert.Equal(t, 2, res.Evaluations[core.SignalSell])

	// History semantics: newest first, same-price repeat dropped
	require.Len(t, res.Records, 4)
	assert.Equal(t, core.SignalSell, res.Records[0].Signal)
	assert.Equal(t, "10:10:00", res.Records[3].Time)

	require.Len(t, res.Trades, 4)
	first := res.Trades[0]
	assert.True(t, first.Closed)
	assert.Equal(t, bars[15].Time, first.ExitTime)
	assert.InDelta(t, (bars[15].Close-bars[10].Close)/bars[10].Close, first.Return, 1e-12)

	sell := res.Trades[2]
	assert.Equal(t, core.SignalSell, sell.Record.Signal)
	assert.Less(t, sell.Return, 0.0, "price rose after the SELL")

	last := res.Trades[3]
	assert.False(t, last.Closed)
	assert.Equal(t, bars[39].Time, last.ExitTime)

	assert.Equal(t, 4, res.Stats.TotalTrades)
	assert.Equal(t, 2, res.Stats.WinningTrades)
	assert.Equal(t, 1, res.Stats.LosingTrades)
}

func TestBacktester_Run(t *testing.T) {
	src := &mockSource{bars: drifting(40)}
	pair := core.Pair{Label: "EUR/USD", Symbol: "EURUSD=X"}

	res, err := newBacktester().Run(context.Background(), src, pair, "5d", "1m")
	require.NoError(t, err)

	assert.Equal(t, []string{"EURUSD=X", "5d", "1m"}, src.got)
	assert.Equal(t, "1m", res.Interval)
	assert.Len(t, res.Trades, 4)
}

func TestBacktester_FetchError(t *testing.T) {
	src := &mockSource{err: core.WrapError(core.ErrCollectorFailed, errors.New("down"))}

	_, err := newBacktester().Run(context.Background(), src, core.Pair{Symbol: "X"}, "5d", "1m")
	assert.True(t, errors.Is(err, core.ErrCollectorFailed))
}

func TestBacktester_InsufficientData(t *testing.T) {
	_, err := newBacktester().Replay(context.Background(), core.Pair{}, drifting(3))
	assert.True(t, errors.Is(err, core.ErrInsufficientData))
}

func TestBacktester_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newBacktester().Replay(ctx, core.Pair{}, drifting(40))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_DefaultHorizon(t *testing.T) {
	b := New(&scriptedStrategy{}, Config{})
	assert.Equal(t, 5, b.cfg.Horizon)
}

func TestBacktester_RepeatedTimestamp(t *testing.T) {
	bars := drifting(40)
	// The feed repeats bar 19's timestamp on bar 20.
	bars[20].Time = bars[19].Time

	bt := New(&scriptedStrategy{signals: map[int]core.Signal{19: core.SignalSell}}, Config{
		Params:  indicator.Params{RSIPeriod: 3, BBPeriod: 3, MinBars: 5},
		Horizon: 5,
	})
	res, err := bt.Replay(context.Background(), core.Pair{Label: "EUR/USD"}, bars)
	require.NoError(t, err)

	// Both bars signal at different prices, each exits five bars after itself.
	require.Len(t, res.Trades, 2)
	assert.Equal(t, bars[19].Close, res.Trades[0].EntryPrice)
	assert.Equal(t, bars[24].Close, res.Trades[0].ExitPrice)
	assert.Equal(t, bars[20].Close, res.Trades[1].EntryPrice)
	assert.Equal(t, bars[25].Close, res.Trades[1].ExitPrice)
}
