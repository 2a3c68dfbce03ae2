// Package binance serves spot quotes and klines from the Binance public
// market data API through github.com/adshao/go-binance.
package binance

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/newthinker/scalper/internal/collector/crypto"
	"github.com/newthinker/scalper/internal/core"
	"github.com/shopspring/decimal"
)

// maxKlines is the per-request cap of the klines endpoint.
const maxKlines = 1000

// Binance implements the crypto Provider interface for Binance exchange
type Binance struct {
	client *gobinance.Client
}

// New creates a new Binance provider. Market data endpoints need no keys.
func New() *Binance {
	client := gobinance.NewClient("", "")
	client.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	return &Binance{client: client}
}

// NewWithBaseURL creates a Binance provider with custom base URL (for testing)
func NewWithBaseURL(url string) *Binance {
	b := New()
	b.client.BaseURL = url
	return b
}

func (b *Binance) Name() string {
	return "binance"
}

// SetTimeout bounds each request.
func (b *Binance) SetTimeout(d time.Duration) {
	b.client.HTTPClient.Timeout = d
}

// FetchQuote fetches the 24h ticker, which carries last, bid and ask.
func (b *Binance) FetchQuote(ctx context.Context, symbol string) (*core.Quote, error) {
	stats, err := b.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching quote: %w", err)
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("empty ticker for %s", symbol)
	}
	t := stats[0]

	price, err := decimal.NewFromString(t.LastPrice)
	if err != nil || !price.IsPositive() {
		return nil, fmt.Errorf("invalid last price %q", t.LastPrice)
	}

	return &core.Quote{
		Symbol: symbol,
		Price:  price.InexactFloat64(),
		Bid:    parseOr(t.BidPrice, 0),
		Ask:    parseOr(t.AskPrice, 0),
		Time:   time.UnixMilli(t.CloseTime),
		Source: "binance",
	}, nil
}

// FetchBars fetches the most recent klines ending at end, oldest first.
// Klines with an unparseable close are skipped.
func (b *Binance) FetchBars(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.OHLCV, error) {
	klines, err := b.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		EndTime(end.UnixMilli()).
		Limit(crypto.BarLimit(start, end, interval, maxKlines)).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching klines: %w", err)
	}

	data := make([]core.OHLCV, 0, len(klines))
	for _, k := range klines {
		closePrice, err := decimal.NewFromString(k.Close)
		if err != nil {
			continue
		}
		c := closePrice.InexactFloat64()

		data = append(data, core.OHLCV{
			Symbol:   symbol,
			Interval: interval,
			Open:     parseOr(k.Open, c),
			High:     parseOr(k.High, c),
			Low:      parseOr(k.Low, c),
			Close:    c,
			Volume:   int64(parseOr(k.Volume, 0)),
			Time:     time.UnixMilli(k.OpenTime),
		})
	}

	return data, nil
}

func parseOr(s string, fallback float64) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fallback
	}
	return d.InexactFloat64()
}
