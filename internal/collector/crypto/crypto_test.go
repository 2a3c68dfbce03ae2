package crypto

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/newthinker/scalper/internal/collector"
	"github.com/newthinker/scalper/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_ImplementsCollector(t *testing.T) {
	var _ collector.Collector = (*Collector)(nil)
}

func TestCollector_Name(t *testing.T) {
	c := New()
	if c.Name() != "crypto" {
		t.Errorf("expected 'crypto', got '%s'", c.Name())
	}
}

// Mock provider for testing
type mockProvider struct {
	name     string
	quote    *core.Quote
	bars     []core.OHLCV
	quoteErr error
	barsErr  error

	gotSymbol string
	gotStart  time.Time
	gotEnd    time.Time
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) FetchQuote(ctx context.Context, symbol string) (*core.Quote, error) {
	m.gotSymbol = symbol
	if m.quoteErr != nil {
		return nil, m.quoteErr
	}
	q := *m.quote
	return &q, nil
}

func (m *mockProvider) FetchBars(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.OHLCV, error) {
	m.gotSymbol, m.gotStart, m.gotEnd = symbol, start, end
	if m.barsErr != nil {
		return nil, m.barsErr
	}
	return append([]core.OHLCV(nil), m.bars...), nil
}

func bars(closes ...float64) []core.OHLCV {
	out := make([]core.OHLCV, len(closes))
	for i, c := range closes {
		out[i] = core.OHLCV{Close: c, Time: time.Unix(int64(i*60), 0)}
	}
	return out
}

func TestCollector_Init(t *testing.T) {
	c := New(&mockProvider{name: "p"})
	require.NoError(t, c.Init(collector.Config{Extra: map[string]any{"default_quote": "usdc"}}))
	assert.Equal(t, "USDC", c.defaultQuote)

	err := New().Init(collector.Config{})
	assert.True(t, errors.Is(err, core.ErrConfigMissing))
}

func TestCollector_Providers(t *testing.T) {
	c := New(&mockProvider{name: "okx"}, &mockProvider{name: "binance"})
	assert.Equal(t, []string{"okx", "binance"}, c.Providers())
}

func TestCollector_FetchQuote_Fallback(t *testing.T) {
	primary := &mockProvider{name: "primary", quoteErr: errors.New("primary down")}
	backup := &mockProvider{name: "backup", quote: &core.Quote{Price: 64000}}

	c := New(primary, backup)
	quote, err := c.FetchQuote(context.Background(), "BTC-USD")
	require.NoError(t, err)

	assert.Equal(t, 64000.0, quote.Price)
	assert.Equal(t, "BTCUSDT", quote.Symbol)
	assert.Equal(t, "crypto:backup", quote.Source)
	assert.Equal(t, "BTCUSDT", primary.gotSymbol)
}

func TestCollector_FetchQuote_AllFail(t *testing.T) {
	c := New(
		&mockProvider{name: "a", quoteErr: errors.New("a down")},
		&mockProvider{name: "b", quoteErr: errors.New("b down")},
	)
	_, err := c.FetchQuote(context.Background(), "BTC")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrCollectorFailed))
	assert.Contains(t, err.Error(), "a down")
	assert.Contains(t, err.Error(), "b down")
}

func TestCollector_FetchBars_Fallback(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	primary := &mockProvider{name: "primary", barsErr: errors.New("rate limited")}
	backup := &mockProvider{name: "backup", bars: bars(1, 2, 3)}

	c := New(primary, backup)
	c.now = func() time.Time { return now }

	data, err := c.FetchBars(context.Background(), "BTC-USD", "2d", "1m")
	require.NoError(t, err)
	require.Len(t, data, 3)

	// Bars keep the pair's own symbol
	assert.Equal(t, "BTC-USD", data[0].Symbol)
	assert.Equal(t, "BTCUSDT", backup.gotSymbol)
	assert.Equal(t, now, backup.gotEnd)
	assert.Equal(t, now.Add(-48*time.Hour), backup.gotStart)
}

func TestCollector_FetchBars_EmptyIsNoData(t *testing.T) {
	c := New(&mockProvider{name: "a"}, &mockProvider{name: "b"})
	_, err := c.FetchBars(context.Background(), "BTC", "1d", "1m")
	assert.True(t, errors.Is(err, core.ErrNoData))
}

func TestCollector_FetchBars_AllFail(t *testing.T) {
	c := New(&mockProvider{name: "a", barsErr: errors.New("down")})
	_, err := c.FetchBars(context.Background(), "BTC", "1d", "1m")
	assert.True(t, errors.Is(err, core.ErrCollectorFailed))
}

func TestCollector_FetchBars_InvalidInput(t *testing.T) {
	c := New(&mockProvider{name: "a", bars: bars(1)})
	ctx := context.Background()

	_, err := c.FetchBars(ctx, "BTC", "2y", "1m")
	assert.True(t, errors.Is(err, core.ErrConfigInvalid), "bad range")

	_, err = c.FetchBars(ctx, "BTC", "1d", "3m")
	assert.True(t, errors.Is(err, core.ErrConfigInvalid), "bad interval")

	_, err = c.FetchBars(ctx, "BTC?x=1", "1d", "1m")
	assert.True(t, errors.Is(err, core.ErrSymbolNotFound), "bad symbol")
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		rng     string
		want    time.Duration
		wantErr bool
	}{
		{"1d", 24 * time.Hour, false},
		{"2d", 48 * time.Hour, false},
		{"6h", 6 * time.Hour, false},
		{"1mo", 30 * 24 * time.Hour, false},
		{"0d", 0, true},
		{"d", 0, true},
		{"2y", 0, true},
	}

	for _, tc := range tests {
		got, err := ParseRange(tc.rng)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseRange(%q) error = %v, wantErr %v", tc.rng, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseRange(%q) = %s, want %s", tc.rng, got, tc.want)
		}
	}
}

func TestBarLimit(t *testing.T) {
	end := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 60, BarLimit(end.Add(-time.Hour), end, "1m", 1000))
	assert.Equal(t, 1000, BarLimit(end.Add(-48*time.Hour), end, "1m", 1000))
	assert.Equal(t, 1, BarLimit(end, end, "1m", 1000))
	assert.Equal(t, 300, BarLimit(end.Add(-time.Hour), end, "bogus", 300))
}
