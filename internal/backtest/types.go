package backtest

import (
	"time"

	"github.com/newthinker/scalper/internal/core"
)

// Result holds the complete replay output
type Result struct {
	Strategy string    `json:"strategy"`
	Pair     core.Pair `json:"pair"`
	Interval string    `json:"interval"`
	Horizon  int       `json:"horizon"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	Bars     int       `json:"bars"`
	// Evaluations counts every evaluated bar by signal, before dedup.
	Evaluations map[core.Signal]int `json:"evaluations"`
	// Records is what the history log would have shown, newest first.
	Records []core.SignalRecord `json:"records"`
	Trades  []Trade             `json:"trades"`
	Stats   Stats               `json:"stats"`
}

// Trade scores one recorded signal by the close Horizon bars later.
type Trade struct {
	Record     core.SignalRecord `json:"record"`
	EntryTime  time.Time         `json:"entry_time"`
	EntryPrice float64           `json:"entry_price"`
	ExitTime   time.Time         `json:"exit_time"`
	ExitPrice  float64           `json:"exit_price"`
	Return     float64           `json:"return"` // fractional, signed for the signal direction
	Closed     bool              `json:"closed"` // false when the data ends before the horizon
}

// Stats holds performance statistics
type Stats struct {
	TotalTrades   int     `json:"total_trades"`
	Open          int     `json:"open"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`     // Percentage of profitable closed trades
	AvgReturn     float64 `json:"avg_return"`   // Mean return percentage per closed trade
	TotalReturn   float64 `json:"total_return"` // Summed return percentage
	MaxDrawdown   float64 `json:"max_drawdown"` // Largest peak-to-trough decline, percentage
	SharpeRatio   float64 `json:"sharpe_ratio"` // Mean over standard deviation of trade returns
	// ProfitFactor is gross gains over gross losses; 0 without losses.
	ProfitFactor float64                        `json:"profit_factor"`
	BySignal     map[core.Signal]DirectionStats `json:"by_signal,omitempty"`
}

// DirectionStats breaks closed trades down by BUY or SELL.
type DirectionStats struct {
	Trades    int     `json:"trades"`
	Wins      int     `json:"wins"`
	WinRate   float64 `json:"win_rate"`
	AvgReturn float64 `json:"avg_return"`
}

// IsWin returns true if the trade was profitable
func (t Trade) IsWin() bool {
	return t.Return > 0
}

// IsClosed returns true if the trade reached its horizon
func (t Trade) IsClosed() bool {
	return t.Closed
}
