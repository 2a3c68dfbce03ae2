package backtest

import (
	"math"

	"github.com/newthinker/scalper/internal/core"
)

// CalculateStats summarizes scored trades. Open trades count toward
// TotalTrades and Open only; every other figure is over closed trades.
func CalculateStats(trades []Trade) Stats {
	if len(trades) == 0 {
		return Stats{}
	}

	stats := Stats{
		TotalTrades: len(trades),
		BySignal:    make(map[core.Signal]DirectionStats),
	}

	var returns []float64
	var gains, losses float64
	for _, t := range trades {
		if !t.IsClosed() {
			stats.Open++
			continue
		}
		returns = append(returns, t.Return)

		dir := stats.BySignal[t.Record.Signal]
		dir.Trades++
		dir.AvgReturn += t.Return
		if t.IsWin() {
			stats.WinningTrades++
			dir.Wins++
			gains += t.Return
		} else {
			stats.LosingTrades++
			losses -= t.Return
		}
		stats.BySignal[t.Record.Signal] = dir
	}

	closed := len(returns)
	if closed == 0 {
		return stats
	}

	var total float64
	for _, r := range returns {
		total += r
	}
	stats.WinRate = percent(stats.WinningTrades, closed)
	stats.AvgReturn = total / float64(closed) * 100
	stats.TotalReturn = total * 100
	stats.MaxDrawdown = calculateMaxDrawdown(returns) * 100
	stats.SharpeRatio = calculateSharpeRatio(returns)
	if losses > 0 {
		stats.ProfitFactor = gains / losses
	}

	for sig, dir := range stats.BySignal {
		dir.WinRate = percent(dir.Wins, dir.Trades)
		dir.AvgReturn = dir.AvgReturn / float64(dir.Trades) * 100
		stats.BySignal[sig] = dir
	}
	return stats
}

func percent(n, of int) float64 {
	if of == 0 {
		return 0
	}
	return float64(n) / float64(of) * 100
}

// calculateMaxDrawdown is the largest peak-to-trough decline of the
// compounded trade returns, as a fraction.
func calculateMaxDrawdown(returns []float64) float64 {
	var maxDD float64
	peak, equity := 1.0, 1.0
	for _, r := range returns {
		equity *= 1 + r
		peak = math.Max(peak, equity)
		maxDD = math.Max(maxDD, (peak-equity)/peak)
	}
	return maxDD
}

// calculateSharpeRatio is the per-trade ratio of mean to sample standard
// deviation. Intraday holding periods vary, so it is not annualized.
func calculateSharpeRatio(returns []float64) float64 {
	n := float64(len(returns))
	if n < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / n

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	stdDev := math.Sqrt(variance / (n - 1))
	if stdDev == 0 {
		return 0
	}
	return mean / stdDev
}
