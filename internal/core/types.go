package core

import (
	"strconv"
	"time"
)

// Quote represents a real-time price quote
type Quote struct {
	Symbol string
	Price  float64
	Bid    float64
	Ask    float64
	Time   time.Time
	Source string
}

// IsValid checks if the quote has required fields
func (q Quote) IsValid() bool {
	return q.Symbol != "" && q.Price > 0
}

// OHLCV represents a candlestick/bar
type OHLCV struct {
	Symbol   string
	Interval string // "1m", "5m", "1d"
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   int64
	Time     time.Time
}

// Pair maps a display label to the feed ticker. Collector names the feed
// source; empty means the configured default.
type Pair struct {
	Label     string `mapstructure:"label" json:"label"`
	Symbol    string `mapstructure:"symbol" json:"symbol"`
	Collector string `mapstructure:"collector" json:"collector,omitempty"`
}

// Signal is the discrete outcome of evaluating a price bar.
type Signal string

const (
	SignalNeutral Signal = "NEUTRAL"
	SignalBuy     Signal = "BUY"
	SignalSell    Signal = "SELL"
)

// Label returns the dashboard text for the signal.
func (s Signal) Label() string {
	switch s {
	case SignalBuy:
		return "BUY (CALL)"
	case SignalSell:
		return "SELL (PUT)"
	default:
		return "NEUTRAL"
	}
}

// IsActionable reports whether the signal is BUY or SELL.
func (s Signal) IsActionable() bool {
	return s == SignalBuy || s == SignalSell
}

// PriceBar is the latest bar of a series with its indicator values.
type PriceBar struct {
	Time       time.Time
	Close      float64
	RSI        float64
	LowerBand  float64
	MiddleBand float64
	UpperBand  float64
}

// SignalRecord is one entry of the signal history. Price and RSI are
// stored pre-formatted so that equality is decided on display precision.
type SignalRecord struct {
	ID         string    `json:"id"`
	Time       string    `json:"time"`
	Pair       string    `json:"pair"`
	Signal     Signal    `json:"signal"`
	Price      string    `json:"price"`
	RSI        string    `json:"rsi"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ClockFormat is the wall-clock layout used for record and sync times.
const ClockFormat = "15:04:05"

// FormatPrice renders a price with four decimal places, rounded from the
// exact binary value. The result is the history dedup key.
func FormatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// FormatRSI renders an RSI value with one decimal place, rounded from the
// exact binary value.
func FormatRSI(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// FeedStatus describes the state of the most recent refresh cycle.
type FeedStatus string

const (
	StatusStarting     FeedStatus = "starting"
	StatusLive         FeedStatus = "live"
	StatusWaiting      FeedStatus = "waiting"
	StatusReconnecting FeedStatus = "reconnecting"
)

// Notice returns the banner text shown for non-live states.
func (s FeedStatus) Notice() string {
	switch s {
	case StatusWaiting, StatusStarting:
		return "Waiting for market data feed..."
	case StatusReconnecting:
		return "Reconnecting to market feed..."
	default:
		return ""
	}
}

// Snapshot is what the dashboard renders after a refresh cycle.
type Snapshot struct {
	Pair      Pair           `json:"pair"`
	Status    FeedStatus     `json:"status"`
	Notice    string         `json:"notice,omitempty"`
	Price     string         `json:"price,omitempty"`
	RSI       string         `json:"rsi,omitempty"`
	Lower     string         `json:"lower_band,omitempty"`
	Upper     string         `json:"upper_band,omitempty"`
	Signal    Signal         `json:"signal"`
	Label     string         `json:"label"`
	SyncedAt  string         `json:"synced_at,omitempty"`
	Closes    []float64      `json:"closes,omitempty"`
	History   []SignalRecord `json:"history"`
	Interval  string         `json:"interval"`
	UpdatedAt time.Time      `json:"updated_at"`
}
