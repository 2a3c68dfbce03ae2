package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/scalper/internal/collector/crypto"
	"github.com/newthinker/scalper/internal/core"
)

const (
	baseURL = "https://www.okx.com"

	// maxCandles is the per-request cap of the candles endpoint.
	maxCandles = 300
)

// OKX implements the crypto Provider interface for OKX exchange
type OKX struct {
	client  *http.Client
	baseURL string
}

// New creates a new OKX provider
func New() *OKX {
	return &OKX{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: baseURL,
	}
}

// NewWithBaseURL creates an OKX provider with custom base URL (for testing)
func NewWithBaseURL(url string) *OKX {
	o := New()
	o.baseURL = url
	return o
}

func (o *OKX) Name() string {
	return "okx"
}

// SetTimeout bounds each request.
func (o *OKX) SetTimeout(d time.Duration) {
	o.client.Timeout = d
}

// toInstID converts normalized symbol to OKX instrument ID
// BTCUSDT -> BTC-USDT
func (o *OKX) toInstID(symbol string) string {
	base, quote := crypto.ParseSymbol(symbol)
	if quote == "" {
		return base
	}
	return base + "-" + quote
}

// FetchQuote fetches the ticker from OKX
func (o *OKX) FetchQuote(ctx context.Context, symbol string) (*core.Quote, error) {
	var result okxTickerResponse
	if err := o.get(ctx, "/api/v5/market/ticker", url.Values{"instId": {o.toInstID(symbol)}}, &result); err != nil {
		return nil, fmt.Errorf("fetching quote: %w", err)
	}
	if result.Code != "0" || len(result.Data) == 0 {
		return nil, fmt.Errorf("okx error: %s", result.Msg)
	}

	data := result.Data[0]
	price, err := strconv.ParseFloat(data.Last, 64)
	if err != nil || price <= 0 {
		return nil, fmt.Errorf("invalid last price %q", data.Last)
	}
	bid, _ := strconv.ParseFloat(data.BidPx, 64)
	ask, _ := strconv.ParseFloat(data.AskPx, 64)
	ts, _ := strconv.ParseInt(data.Ts, 10, 64)

	return &core.Quote{
		Symbol: symbol,
		Price:  price,
		Bid:    bid,
		Ask:    ask,
		Time:   time.UnixMilli(ts),
		Source: "okx",
	}, nil
}

// FetchBars fetches the most recent candles ending at end, oldest first
func (o *OKX) FetchBars(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.OHLCV, error) {
	q := url.Values{}
	q.Set("instId", o.toInstID(symbol))
	q.Set("bar", o.toInterval(interval))
	// after: records older than this timestamp
	q.Set("after", strconv.FormatInt(end.UnixMilli()+1, 10))
	q.Set("limit", strconv.Itoa(crypto.BarLimit(start, end, interval, maxCandles)))

	var result okxCandleResponse
	if err := o.get(ctx, "/api/v5/market/candles", q, &result); err != nil {
		return nil, fmt.Errorf("fetching candles: %w", err)
	}
	if result.Code != "0" {
		return nil, fmt.Errorf("okx error: %s", result.Msg)
	}

	data := make([]core.OHLCV, 0, len(result.Data))
	// OKX returns newest first, reverse for chronological order
	for i := len(result.Data) - 1; i >= 0; i-- {
		candle := result.Data[i]
		if len(candle) < 6 {
			continue
		}

		closePrice, err := strconv.ParseFloat(candle[4], 64)
		if err != nil {
			continue
		}
		ts, _ := strconv.ParseInt(candle[0], 10, 64)

		data = append(data, core.OHLCV{
			Symbol:   symbol,
			Interval: interval,
			Open:     parseOr(candle[1], closePrice),
			High:     parseOr(candle[2], closePrice),
			Low:      parseOr(candle[3], closePrice),
			Close:    closePrice,
			Volume:   int64(parseOr(candle[5], 0)),
			Time:     time.UnixMilli(ts),
		})
	}

	return data, nil
}

func (o *OKX) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (o *OKX) toInterval(interval string) string {
	switch interval {
	case "1h", "2h", "4h", "1d", "1w":
		return strings.ToUpper(interval)
	default:
		return interval
	}
}

func parseOr(s string, fallback float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return f
}

// OKX API response types
type okxTickerResponse struct {
	Code string      `json:"code"`
	Msg  string      `json:"msg"`
	Data []okxTicker `json:"data"`
}

type okxTicker struct {
	InstID string `json:"instId"`
	Last   string `json:"last"`
	BidPx  string `json:"bidPx"`
	AskPx  string `json:"askPx"`
	Ts     string `json:"ts"`
}

type okxCandleResponse struct {
	Code string     `json:"code"`
	Msg  string     `json:"msg"`
	Data [][]string `json:"data"`
}
