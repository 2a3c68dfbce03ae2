package backtest

import (
	"math"
	"testing"

	"github.com/newthinker/scalper/internal/core"
	"github.com/stretchr/testify/assert"
)

func closedTrade(sig core.Signal, ret float64) Trade {
	return Trade{Record: core.SignalRecord{Signal: sig}, Return: ret, Closed: true}
}

func TestCalculateStats_Empty(t *testing.T) {
	stats := CalculateStats(nil)
	if stats.TotalTrades != 0 || stats.BySignal != nil {
		t.Errorf("expected zero stats, got %+v", stats)
	}
}

func TestCalculateStats_OnlyOpen(t *testing.T) {
	stats := CalculateStats([]Trade{{Return: 0.02}})
	assert.Equal(t, 1, stats.TotalTrades)
	assert.Equal(t, 1, stats.Open)
	assert.Zero(t, stats.WinRate)
	assert.Zero(t, stats.TotalReturn)
}

func TestCalculateStats(t *testing.T) {
	trades := []Trade{
		closedTrade(core.SignalBuy, 0.010),
		closedTrade(core.SignalBuy, -0.004),
		closedTrade(core.SignalSell, 0.002),
		closedTrade(core.SignalSell, 0.004),
		{Record: core.SignalRecord{Signal: core.SignalSell}, Return: -0.5}, // open
	}

	stats := CalculateStats(trades)

	assert.Equal(t, 5, stats.TotalTrades)
	assert.Equal(t, 1, stats.Open)
	assert.Equal(t, 3, stats.WinningTrades)
	assert.Equal(t, 1, stats.LosingTrades)
	assert.InDelta(t, 75, stats.WinRate, 1e-9)
	assert.InDelta(t, 1.2, stats.TotalReturn, 1e-9)
	assert.InDelta(t, 0.3, stats.AvgReturn, 1e-9)
	assert.InDelta(t, 4.0, stats.ProfitFactor, 1e-9)

	buy := stats.BySignal[core.SignalBuy]
	assert.Equal(t, 2, buy.Trades)
	assert.Equal(t, 1, buy.Wins)
	assert.InDelta(t, 50, buy.WinRate, 1e-9)
	assert.InDelta(t, 0.3, buy.AvgReturn, 1e-9)

	sell := stats.BySignal[core.SignalSell]
	assert.Equal(t, 2, sell.Trades, "open SELL excluded")
	assert.InDelta(t, 100, sell.WinRate, 1e-9)
}

func TestCalculateStats_NoLosses(t *testing.T) {
	stats := CalculateStats([]Trade{closedTrade(core.SignalBuy, 0.01)})
	assert.Zero(t, stats.ProfitFactor)
	assert.Zero(t, stats.MaxDrawdown)
}

func TestCalculateMaxDrawdown(t *testing.T) {
	// 1.0 -> 1.1 -> 0.99 -> 1.089: peak 1.1, trough 0.99
	dd := calculateMaxDrawdown([]float64{0.10, -0.10, 0.10})
	if math.Abs(dd-0.10) > 1e-9 {
		t.Errorf("max drawdown = %f, want 0.10", dd)
	}

	if dd := calculateMaxDrawdown([]float64{-0.02}); math.Abs(dd-0.02) > 1e-9 {
		t.Errorf("drawdown from the start = %f, want 0.02", dd)
	}
}

func TestCalculateSharpeRatio(t *testing.T) {
	if s := calculateSharpeRatio([]float64{0.01}); s != 0 {
		t.Errorf("single return should give 0, got %f", s)
	}
	if s := calculateSharpeRatio([]float64{0.01, 0.01}); s != 0 {
		t.Errorf("zero variance should give 0, got %f", s)
	}
	// mean 0.02, sample stddev 0.01
	if s := calculateSharpeRatio([]float64{0.01, 0.02, 0.03}); math.Abs(s-2) > 1e-9 {
		t.Errorf("sharpe = %f, want 2", s)
	}
}
