package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/newthinker/scalper/internal/collector"
	"github.com/newthinker/scalper/internal/core"
)

const (
	defaultBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"
	userAgent      = "Mozilla/5.0 (compatible; scalper/1.0)"
)

// validSymbol matches FX and crypto tickers like EURUSD=X, BTC-USD, ^VIX
var validSymbol = regexp.MustCompile(`^\^?[A-Za-z0-9]{1,12}([-.=][A-Za-z0-9]{1,6})?$`)

var validRanges = map[string]bool{
	"1d": true, "2d": true, "5d": true, "1mo": true, "3mo": true,
}

var validIntervals = map[string]bool{
	"1m": true, "2m": true, "5m": true, "15m": true, "30m": true, "1h": true, "1d": true,
}

// validateSymbol checks if a symbol has valid format
func validateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if len(symbol) > 20 {
		return fmt.Errorf("symbol too long: %s", symbol)
	}
	if !validSymbol.MatchString(symbol) {
		return fmt.Errorf("invalid symbol format: %s", symbol)
	}
	return nil
}

// Option configures the Yahoo collector.
type Option func(*Yahoo)

// WithBaseURL points the collector at a different chart endpoint.
func WithBaseURL(u string) Option {
	return func(y *Yahoo) { y.baseURL = u }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(y *Yahoo) { y.client = c }
}

// Yahoo implements the Yahoo Finance chart collector
type Yahoo struct {
	client  *http.Client
	baseURL string
}

// New creates a new Yahoo collector
func New(opts ...Option) *Yahoo {
	y := &Yahoo{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: defaultBaseURL,
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

func (y *Yahoo) Name() string {
	return "yahoo"
}

func (y *Yahoo) Init(cfg collector.Config) error {
	if cfg.Timeout > 0 {
		y.client.Timeout = cfg.Timeout
	}
	if u, ok := cfg.Extra["base_url"].(string); ok && u != "" {
		y.baseURL = u
	}
	return nil
}

// FetchQuote fetches the latest regular market price
func (y *Yahoo) FetchQuote(ctx context.Context, symbol string) (*core.Quote, error) {
	r, err := y.chart(ctx, symbol, "1d", "1m")
	if err != nil {
		return nil, err
	}

	meta := r.Meta
	if meta.RegularMarketPrice <= 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no price for symbol: %s", symbol))
	}

	return &core.Quote{
		Symbol: symbol,
		Price:  meta.RegularMarketPrice,
		Time:   time.Unix(int64(meta.RegularMarketTime), 0),
		Source: "yahoo",
	}, nil
}

// FetchBars fetches intraday OHLCV bars. Bars with a missing close are skipped.
func (y *Yahoo) FetchBars(ctx context.Context, symbol, rng, interval string) ([]core.OHLCV, error) {
	if !validRanges[rng] {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unsupported range: %s", rng))
	}
	if !validIntervals[interval] {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unsupported interval: %s", interval))
	}

	r, err := y.chart(ctx, symbol, rng, interval)
	if err != nil {
		return nil, err
	}
	if len(r.Indicators.Quote) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no quote series for symbol: %s", symbol))
	}

	quotes := r.Indicators.Quote[0]
	data := make([]core.OHLCV, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		c := at(quotes.Close, i)
		if c == nil {
			continue // Skip missing data
		}
		bar := core.OHLCV{
			Symbol:   symbol,
			Interval: interval,
			Open:     valueOr(at(quotes.Open, i), *c),
			High:     valueOr(at(quotes.High, i), *c),
			Low:      valueOr(at(quotes.Low, i), *c),
			Close:    *c,
			Time:     time.Unix(int64(ts), 0),
		}
		if i < len(quotes.Volume) && quotes.Volume[i] != nil {
			bar.Volume = int64(*quotes.Volume[i])
		}
		data = append(data, bar)
	}

	if len(data) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no bars for symbol: %s", symbol))
	}

	return data, nil
}

func (y *Yahoo) chart(ctx context.Context, symbol, rng, interval string) (*chartResult, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, core.WrapError(core.ErrSymbolNotFound, err)
	}

	q := url.Values{}
	q.Set("range", rng)
	q.Set("interval", interval)
	reqURL := fmt.Sprintf("%s/%s?%s", y.baseURL, url.PathEscape(symbol), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("fetching chart: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, core.WrapError(core.ErrSymbolNotFound, fmt.Errorf("symbol %s", symbol))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("unexpected status: %d", resp.StatusCode))
	}

	var result chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("decoding response: %w", err))
	}

	if result.Chart.Error != nil {
		return nil, core.WrapError(core.ErrCollectorFailed,
			fmt.Errorf("yahoo error: %s", result.Chart.Error.Description))
	}

	if len(result.Chart.Result) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no data for symbol: %s", symbol))
	}

	return &result.Chart.Result[0], nil
}

func at(values []*float64, i int) *float64 {
	if i >= len(values) {
		return nil
	}
	return values[i]
}

func valueOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

// Yahoo API response types
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta       chartMeta  `json:"meta"`
	Timestamp  []int64    `json:"timestamp"`
	Indicators indicators `json:"indicators"`
}

type chartMeta struct {
	Symbol             string  `json:"symbol"`
	Currency           string  `json:"currency"`
	RegularMarketPrice float64 `json:"regularMarketPrice"`
	RegularMarketTime  int64   `json:"regularMarketTime"`
}

type indicators struct {
	Quote []quoteIndicator `json:"quote"`
}

type quoteIndicator struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*int64   `json:"volume"`
}
