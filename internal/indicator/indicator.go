// Package indicator computes the RSI and Bollinger Band values the signal
// rules are evaluated against. Series math is delegated to cinar/indicator.
package indicator

import (
	"fmt"
	"math"
	"sync"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/volatility"
	"github.com/newthinker/scalper/internal/core"
)

// Params configures indicator lengths and the minimum series size.
type Params struct {
	RSIPeriod int
	BBPeriod  int
	MinBars   int
}

// DefaultParams returns RSI(14), BBands(20, 2) and a 25 bar floor.
func DefaultParams() Params {
	return Params{RSIPeriod: 14, BBPeriod: 20, MinBars: 25}
}

// RSI returns the Wilder relative strength index of closes.
// The output is shorter than the input by the warm-up period.
func RSI(closes []float64, period int) []float64 {
	if len(closes) <= period {
		return []float64{}
	}
	rsi := momentum.NewRsiWithPeriod[float64](period)
	return helper.ChanToSlice(rsi.Compute(helper.SliceToChan(closes)))
}

// BollingerBands returns the upper, middle and lower bands at two standard
// deviations around a simple moving average of period.
func BollingerBands(closes []float64, period int) (upper, middle, lower []float64) {
	if len(closes) < period {
		return []float64{}, []float64{}, []float64{}
	}
	bb := volatility.NewBollingerBandsWithPeriod[float64](period)
	upperCh, middleCh, lowerCh := bb.Compute(helper.SliceToChan(closes))

	// The three outputs share one upstream; drain them together.
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); upper = helper.ChanToSlice(upperCh) }()
	go func() { defer wg.Done(); middle = helper.ChanToSlice(middleCh) }()
	go func() { defer wg.Done(); lower = helper.ChanToSlice(lowerCh) }()
	wg.Wait()

	return upper, middle, lower
}

// Closes extracts close prices from bars in order.
func Closes(bars []core.OHLCV) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

// Tail returns at most the last n values.
func Tail(values []float64, n int) []float64 {
	if n <= 0 || len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}

// Latest computes indicators over bars and returns the final bar with its
// RSI and band values.
func Latest(bars []core.OHLCV, p Params) (core.PriceBar, error) {
	if len(bars) < p.MinBars || len(bars) <= p.RSIPeriod || len(bars) < p.BBPeriod {
		return core.PriceBar{}, core.WrapError(core.ErrInsufficientData,
			fmt.Errorf("need %d bars, got %d", p.MinBars, len(bars)))
	}

	closes := Closes(bars)
	rsi := RSI(closes, p.RSIPeriod)
	upper, middle, lower := BollingerBands(closes, p.BBPeriod)
	if len(rsi) == 0 || len(upper) == 0 || len(middle) == 0 || len(lower) == 0 {
		return core.PriceBar{}, core.WrapError(core.ErrIndicatorFailed,
			fmt.Errorf("empty indicator output for %d bars", len(bars)))
	}

	last := bars[len(bars)-1]
	bar := core.PriceBar{
		Time:       last.Time,
		Close:      last.Close,
		RSI:        rsi[len(rsi)-1],
		LowerBand:  lower[len(lower)-1],
		MiddleBand: middle[len(middle)-1],
		UpperBand:  upper[len(upper)-1],
	}
	if !finite(bar.RSI, bar.LowerBand, bar.MiddleBand, bar.UpperBand) {
		return core.PriceBar{}, core.WrapError(core.ErrIndicatorFailed,
			fmt.Errorf("non-finite indicator value at %s", last.Time.Format(core.ClockFormat)))
	}

	return bar, nil
}

// Point is one Series entry with the index of its source bar.
type Point struct {
	Index int
	Bar   core.PriceBar
}

// Series computes indicators once over bars and returns a PriceBar for
// every bar from the first one with MinBars of history. Bars whose
// indicator values are not finite are skipped.
func Series(bars []core.OHLCV, p Params) ([]core.PriceBar, error) {
	points, err := Points(bars, p)
	if err != nil {
		return nil, err
	}
	out := make([]core.PriceBar, len(points))
	for i, pt := range points {
		out[i] = pt.Bar
	}
	return out, nil
}

// Points is Series keeping each bar's position in bars, which stays
// unambiguous when timestamps repeat.
func Points(bars []core.OHLCV, p Params) ([]Point, error) {
	if len(bars) < p.MinBars || len(bars) <= p.RSIPeriod || len(bars) < p.BBPeriod {
		return nil, core.WrapError(core.ErrInsufficientData,
			fmt.Errorf("need %d bars, got %d", p.MinBars, len(bars)))
	}

	closes := Closes(bars)
	rsi := RSI(closes, p.RSIPeriod)
	upper, middle, lower := BollingerBands(closes, p.BBPeriod)
	if len(rsi) == 0 || len(upper) == 0 || len(middle) == 0 || len(lower) == 0 {
		return nil, core.WrapError(core.ErrIndicatorFailed,
			fmt.Errorf("empty indicator output for %d bars", len(bars)))
	}

	// Outputs are shorter than the input by their warm-up; align from the end.
	n := len(bars)
	first := max(p.MinBars-1, n-len(rsi), n-len(upper), n-len(middle), n-len(lower))
	out := make([]Point, 0, n-first)
	for i := first; i < n; i++ {
		bar := core.PriceBar{
			Time:       bars[i].Time,
			Close:      bars[i].Close,
			RSI:        rsi[len(rsi)-n+i],
			LowerBand:  lower[len(lower)-n+i],
			MiddleBand: middle[len(middle)-n+i],
			UpperBand:  upper[len(upper)-n+i],
		}
		if !finite(bar.RSI, bar.LowerBand, bar.MiddleBand, bar.UpperBand) {
			continue
		}
		out = append(out, Point{Index: i, Bar: bar})
	}
	return out, nil
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
