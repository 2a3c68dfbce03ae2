// Package bbrsi implements a Bollinger Band touch strategy gated by RSI.
package bbrsi

import (
	"fmt"

	"github.com/newthinker/scalper/internal/core"
	"github.com/newthinker/scalper/internal/strategy"
)

const (
	DefaultBuyAbove  = 30.0
	DefaultSellBelow = 70.0
)

// BBRSI emits BUY when price is at or below the lower band while RSI is
// above buyAbove, and SELL when price is at or above the upper band while
// RSI is below sellBelow.
type BBRSI struct {
	buyAbove  float64
	sellBelow float64
}

// New creates a new BB/RSI strategy
func New(buyAbove, sellBelow float64) *BBRSI {
	return &BBRSI{
		buyAbove:  buyAbove,
		sellBelow: sellBelow,
	}
}

// Default returns the strategy with the 30/70 RSI gates.
func Default() *BBRSI {
	return New(DefaultBuyAbove, DefaultSellBelow)
}

func (b *BBRSI) Name() string {
	return "bb_rsi"
}

func (b *BBRSI) Description() string {
	return fmt.Sprintf("Bollinger touch with RSI gate (buy>%.0f, sell<%.0f)", b.buyAbove, b.sellBelow)
}

func (b *BBRSI) Init(cfg strategy.Config) error {
	if v, ok := toFloat(cfg.Params["rsi_buy_above"]); ok {
		b.buyAbove = v
	}
	if v, ok := toFloat(cfg.Params["rsi_sell_below"]); ok {
		b.sellBelow = v
	}
	if b.buyAbove >= b.sellBelow {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("rsi_buy_above %.1f must be below rsi_sell_below %.1f", b.buyAbove, b.sellBelow))
	}
	return nil
}

// Evaluate checks BUY before SELL. Inverted bands are not special-cased.
func (b *BBRSI) Evaluate(bar core.PriceBar) core.Signal {
	if bar.Close <= bar.LowerBand && bar.RSI > b.buyAbove {
		return core.SignalBuy
	}
	if bar.Close >= bar.UpperBand && bar.RSI < b.sellBelow {
		return core.SignalSell
	}
	return core.SignalNeutral
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
