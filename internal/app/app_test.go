package app

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/newthinker/scalper/internal/alert"
	"github.com/newthinker/scalper/internal/briefing"
	"github.com/newthinker/scalper/internal/collector"
	"github.com/newthinker/scalper/internal/config"
	"github.com/newthinker/scalper/internal/core"
	"github.com/newthinker/scalper/internal/history"
	"github.com/newthinker/scalper/internal/metrics"
	"github.com/newthinker/scalper/internal/notifier"
	"github.com/newthinker/scalper/internal/session"
	"github.com/newthinker/scalper/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCollector struct {
	name    string
	mu      sync.Mutex
	bars    []core.OHLCV
	err     error
	calls   int
	symbols []string
}

func (m *mockCollector) Name() string {
	if m.name != "" {
		return m.name
	}
	return "yahoo"
}
func (m *mockCollector) Init(cfg collector.Config) error { return nil }
func (m *mockCollector) FetchQuote(ctx context.Context, symbol string) (*core.Quote, error) {
	return &core.Quote{Symbol: symbol, Price: 1.08}, nil
}
func (m *mockCollector) FetchBars(ctx context.Context, symbol, rng, interval string) ([]core.OHLCV, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.symbols = append(m.symbols, symbol)
	if m.err != nil {
		return nil, m.err
	}
	return m.bars, nil
}

func (m *mockCollector) set(bars []core.OHLCV, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars, m.err = bars, err
}

func (m *mockCollector) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fixedStrategy struct{ sig core.Signal }

func (f fixedStrategy) Name() string                   { return "fixed" }
func (f fixedStrategy) Description() string            { return "fixed signal" }
func (f fixedStrategy) Init(cfg strategy.Config) error { return nil }
func (f fixedStrategy) Evaluate(core.PriceBar) core.Signal {
	return f.sig
}

type mockNotifier struct {
	mu       sync.Mutex
	received []core.SignalRecord
}

func (m *mockNotifier) Name() string                   { return "mock" }
func (m *mockNotifier) Init(cfg notifier.Config) error { return nil }
func (m *mockNotifier) Send(_ context.Context, rec core.SignalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, rec)
	return nil
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.received)
}

// wave returns n one-minute bars oscillating around base, ending at last.
func wave(n int, base, last float64) []core.OHLCV {
	start := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	bars := make([]core.OHLCV, n)
	for i := range bars {
		c := base + 0.002*math.Sin(float64(i)/2)
		if i == n-1 {
			c = last
		}
		bars[i] = core.OHLCV{
			Symbol: "EURUSD=X", Interval: "1m",
			Open: c, High: c, Low: c, Close: c,
			Time: start.Add(time.Duration(i) * time.Minute),
		}
	}
	return bars
}

func newTestApp(t *testing.T, sig core.Signal) (*App, *mockCollector, *mockNotifier) {
	t.Helper()
	cfg := config.Defaults()
	sess, err := session.New(session.Config{
		Pairs:        cfg.Pairs,
		DefaultPair:  cfg.DefaultPair,
		DisplayLimit: cfg.History.DisplayLimit,
		Interval:     cfg.Refresh.Interval,
	}, history.NewLog(), nil)
	require.NoError(t, err)

	a := New(cfg, sess, nil)
	coll := &mockCollector{bars: wave(40, 1.08, 1.0800)}
	a.RegisterCollector(coll)
	a.SetStrategy(fixedStrategy{sig: sig})
	n := &mockNotifier{}
	require.NoError(t, a.RegisterNotifier(n))
	return a, coll, n
}

func TestRunOnce_Live(t *testing.T) {
	a, _, n := newTestApp(t, core.SignalBuy)

	res := a.RunOnce(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, core.StatusLive, res.Status)
	assert.True(t, res.Accepted)
	assert.Equal(t, "1.0800", res.Record.Price)
	assert.Len(t, res.Closes, 40)

	snap := a.Session().Snapshot()
	assert.Equal(t, core.StatusLive, snap.Status)
	assert.Equal(t, "1.0800", snap.Price)
	assert.Equal(t, "BUY (CALL)", snap.Label)
	assert.Empty(t, snap.Notice)
	assert.NotEmpty(t, snap.SyncedAt)
	require.Len(t, snap.History, 1)
	assert.Equal(t, core.SignalBuy, snap.History[0].Signal)
	assert.Equal(t, 1, n.count())
}

func TestRunOnce_ChartTail(t *testing.T) {
	a, coll, _ := newTestApp(t, core.SignalNeutral)
	coll.set(wave(80, 1.08, 1.0810), nil)

	res := a.RunOnce(context.Background())
	require.NoError(t, res.Err)
	assert.Len(t, res.Closes, 50)
	assert.Equal(t, 1.0810, res.Closes[49])
}

func TestRunOnce_SuppressesSamePrice(t *testing.T) {
	a, coll, n := newTestApp(t, core.SignalBuy)
	ctx := context.Background()

	a.RunOnce(ctx)
	res := a.RunOnce(ctx)
	assert.False(t, res.Accepted)
	assert.Equal(t, 1, a.Session().History().Len())

	coll.set(wave(40, 1.08, 1.0795), nil)
	res = a.RunOnce(ctx)
	assert.True(t, res.Accepted)

	hist := a.Session().History().All()
	require.Len(t, hist, 2)
	assert.Equal(t, "1.0795", hist[0].Price)
	assert.Equal(t, 2, n.count())
}

func TestRunOnce_NeutralNotRecorded(t *testing.T) {
	a, _, n := newTestApp(t, core.SignalNeutral)

	res := a.RunOnce(context.Background())
	require.NoError(t, res.Err)
	assert.False(t, res.Accepted)
	assert.Zero(t, a.Session().History().Len())
	assert.Equal(t, "NEUTRAL", a.Session().Snapshot().Label)
	assert.Zero(t, n.count())
}

func TestRunOnce_InsufficientDataWaits(t *testing.T) {
	a, coll, _ := newTestApp(t, core.SignalBuy)
	coll.set(wave(10, 1.08, 1.08), nil)

	res := a.RunOnce(context.Background())
	assert.True(t, errors.Is(res.Err, core.ErrInsufficientData))
	assert.Equal(t, core.StatusWaiting, res.Status)

	snap := a.Session().Snapshot()
	assert.Equal(t, "Waiting for market data feed...", snap.Notice)
	assert.Zero(t, a.Session().History().Len())
}

func TestRunOnce_NoDataWaits(t *testing.T) {
	a, coll, _ := newTestApp(t, core.SignalBuy)
	coll.set(nil, core.WrapError(core.ErrNoData, errors.New("empty")))

	res := a.RunOnce(context.Background())
	assert.Equal(t, core.StatusWaiting, res.Status)
}

func TestRunOnce_FailureReconnects(t *testing.T) {
	a, coll, _ := newTestApp(t, core.SignalBuy)
	ctx := context.Background()

	a.RunOnce(ctx)
	require.Equal(t, 1, a.Session().History().Len())

	coll.set(nil, core.WrapError(core.ErrCollectorFailed, errors.New("connection reset")))
	res := a.RunOnce(ctx)
	assert.Equal(t, core.StatusReconnecting, res.Status)

	snap := a.Session().Snapshot()
	assert.Equal(t, "Reconnecting to market feed...", snap.Notice)
	// Last good values and history are kept
	assert.Equal(t, "1.0800", snap.Price)
	assert.Equal(t, 1, a.Session().History().Len())
}

func TestRunOnce_UnknownCollector(t *testing.T) {
	a, _, _ := newTestApp(t, core.SignalBuy)
	a.cfg.Feed.Collector = "missing"

	res := a.RunOnce(context.Background())
	assert.Equal(t, core.StatusReconnecting, res.Status)
	assert.True(t, errors.Is(res.Err, core.ErrConfigInvalid))
}

func TestRunOnce_RecordsMetrics(t *testing.T) {
	a, _, _ := newTestApp(t, core.SignalSell)
	reg := metrics.NewRegistry()
	a.SetMetrics(reg)

	a.RunOnce(context.Background())

	mfs, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"scalper_cycles_total",
		"scalper_signals_evaluated_total",
		"scalper_history_records_total",
		"scalper_notifications_total",
	} {
		assert.True(t, names[want], "missing %s", want)
	}
}

func TestSetInterval(t *testing.T) {
	a, _, _ := newTestApp(t, core.SignalBuy)

	err := a.SetInterval(10 * time.Second)
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
	assert.Equal(t, 60*time.Second, a.Interval())

	require.NoError(t, a.SetInterval(90*time.Second))
	assert.Equal(t, 90*time.Second, a.Interval())
	assert.Equal(t, "1m30s", a.Session().Snapshot().Interval)
}

func TestSelectPair(t *testing.T) {
	a, coll, _ := newTestApp(t, core.SignalBuy)

	_, err := a.SelectPair("XAU/USD")
	assert.True(t, errors.Is(err, core.ErrPairNotFound))

	p, err := a.SelectPair("BTC/USD")
	require.NoError(t, err)
	assert.Equal(t, "BTC-USD", p.Symbol)

	a.RunOnce(context.Background())
	coll.mu.Lock()
	defer coll.mu.Unlock()
	assert.Equal(t, "BTC-USD", coll.symbols[len(coll.symbols)-1])
}

func TestStart_RunsImmediatelyAndStops(t *testing.T) {
	a, coll, _ := newTestApp(t, core.SignalBuy)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Start(ctx) }()

	assert.Eventually(t, func() bool { return coll.callCount() >= 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return a.Stats()["running"].(bool) }, time.Second, 10*time.Millisecond)

	// A second Start is rejected while running
	assert.Error(t, a.Start(context.Background()))

	// Rescheduling works while running
	require.NoError(t, a.SetInterval(30*time.Second))

	// Selecting a pair triggers an immediate refresh
	before := coll.callCount()
	_, err := a.SelectPair("GBP/USD")
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return coll.callCount() > before }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	assert.False(t, a.Stats()["running"].(bool))
}

func TestSelectPair_CancelledRunSkipsRefresh(t *testing.T) {
	a, coll, _ := newTestApp(t, core.SignalBuy)
	status := a.session.Status()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a.mu.Lock()
	a.runCtx, a.running = ctx, true
	a.mu.Unlock()

	_, err := a.SelectPair("GBP/USD")
	require.NoError(t, err)
	a.cycleWG.Wait()

	assert.Zero(t, coll.callCount())
	assert.Equal(t, status, a.session.Status())
	assert.Equal(t, "GBP/USD", a.session.Pair().Label)
}

func TestStart_WaitsForPairRefresh(t *testing.T) {
	a, coll, _ := newTestApp(t, core.SignalBuy)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Start(ctx) }()
	assert.Eventually(t, func() bool { return a.Stats()["running"].(bool) }, 2*time.Second, 10*time.Millisecond)

	for _, label := range []string{"GBP/USD", "BTC/USD", "EUR/USD"} {
		_, err := a.SelectPair(label)
		require.NoError(t, err)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	// Nothing refreshes once Start has returned.
	calls := coll.callCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, coll.callCount())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want core.FeedStatus
	}{
		{core.ErrNoData, core.StatusWaiting},
		{core.WrapError(core.ErrInsufficientData, errors.New("5 bars")), core.StatusWaiting},
		{core.ErrIndicatorFailed, core.StatusWaiting},
		{core.ErrCollectorFailed, core.StatusReconnecting},
		{core.ErrCollectorTimeout, core.StatusReconnecting},
		{errors.New("unexpected"), core.StatusReconnecting},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), "err=%v", tt.err)
	}
}

type alertSink struct {
	mu   sync.Mutex
	msgs []string
}

func (s *alertSink) Name() string { return "sink" }
func (s *alertSink) Notify(_ context.Context, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func TestHealth_TracksFailures(t *testing.T) {
	a, coll, _ := newTestApp(t, core.SignalNeutral)
	ctx := context.Background()

	coll.set(nil, core.WrapError(core.ErrCollectorFailed, errors.New("timeout")))
	a.RunOnce(ctx)
	a.RunOnce(ctx)

	h := a.Health()
	assert.Equal(t, 2.0, h["consecutive_failures"])
	assert.Equal(t, 0.0, h["feed_live"])

	coll.set(wave(40, 1.08, 1.0800), nil)
	a.RunOnce(ctx)

	h = a.Health()
	assert.Equal(t, 0.0, h["consecutive_failures"])
	assert.Equal(t, 1.0, h["feed_live"])
	assert.Less(t, h["seconds_since_live"], 5.0)
	assert.Equal(t, 60.0, h["refresh_interval_seconds"])
}

func TestCheckAlerts(t *testing.T) {
	a, coll, _ := newTestApp(t, core.SignalNeutral)
	ctx := context.Background()

	sink := &alertSink{}
	rules := []alert.Rule{{
		Name:     "feed_failing",
		Expr:     "consecutive_failures >= 2",
		Severity: "warning",
		Message:  "Feed keeps failing",
	}}
	a.SetAlerts(alert.NewEvaluator([]alert.Notifier{sink}, nil), rules, time.Minute)

	coll.set(nil, core.WrapError(core.ErrCollectorFailed, errors.New("reset")))
	a.RunOnce(ctx)
	assert.Empty(t, a.CheckAlerts(ctx))

	a.RunOnce(ctx)
	assert.Equal(t, []string{"feed_failing"}, a.CheckAlerts(ctx))
	require.Len(t, sink.msgs, 1)
	assert.Contains(t, sink.msgs[0], "consecutive_failures=2")
}

func TestCheckAlerts_Disabled(t *testing.T) {
	a, _, _ := newTestApp(t, core.SignalNeutral)
	assert.Nil(t, a.CheckAlerts(context.Background()))
}

func TestRunOnce_PairCollector(t *testing.T) {
	cfg := config.Defaults()
	cfg.Pairs = append(cfg.Pairs, core.Pair{Label: "BTC/USDT", Symbol: "BTC-USDT", Collector: "crypto"})
	sess, err := session.New(session.Config{
		Pairs:        cfg.Pairs,
		DefaultPair:  cfg.DefaultPair,
		DisplayLimit: cfg.History.DisplayLimit,
		Interval:     cfg.Refresh.Interval,
	}, history.NewLog(), nil)
	require.NoError(t, err)

	a := New(cfg, sess, nil)
	yahoo := &mockCollector{bars: wave(40, 1.08, 1.0800)}
	crypto := &mockCollector{name: "crypto", bars: wave(40, 1.08, 1.0800)}
	a.RegisterCollector(yahoo)
	a.RegisterCollector(crypto)

	_, err = a.SelectPair("BTC/USDT")
	require.NoError(t, err)

	res := a.RunOnce(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, 1, crypto.callCount())
	assert.Equal(t, 0, yahoo.callCount())
	assert.Equal(t, []string{"BTC-USDT"}, crypto.symbols)
}

type stubBriefer struct {
	mu   sync.Mutex
	reqs []briefing.Request
	err  error
}

func (b *stubBriefer) Brief(_ context.Context, req briefing.Request) (*briefing.Briefing, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reqs = append(b.reqs, req)
	if b.err != nil {
		return nil, b.err
	}
	return &briefing.Briefing{
		RecordID: req.Record.ID,
		Pair:     req.Record.Pair,
		Signal:   req.Record.Signal,
		Price:    req.Record.Price,
		Summary:  "Lower band tag.",
		Risk:     "low",
	}, nil
}

type textNotifier struct {
	mockNotifier
	texts []string
}

func (n *textNotifier) Name() string { return "text" }
func (n *textNotifier) SendText(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return nil
}

func TestRunOnce_Briefing(t *testing.T) {
	a, coll, _ := newTestApp(t, core.SignalBuy)
	text := &textNotifier{}
	require.NoError(t, a.RegisterNotifier(text))
	b := &stubBriefer{}
	a.SetBriefer(b)
	ctx := context.Background()

	a.RunOnce(ctx)
	coll.set(wave(40, 1.08, 1.0795), nil)
	res := a.RunOnce(ctx)
	require.True(t, res.Accepted)
	a.WaitBriefings()

	require.Len(t, b.reqs, 2)
	second := b.reqs[1]
	assert.Equal(t, res.Record.ID, second.Record.ID)
	assert.Equal(t, 1.0795, second.Bar.Close)
	require.Len(t, second.Recent, 1, "earlier record only")
	assert.Equal(t, "1.0800", second.Recent[0].Price)

	last := a.LastBriefing()
	require.NotNil(t, last)
	assert.Equal(t, "1.0795", last.Price)

	require.Len(t, text.texts, 2)
	assert.Contains(t, text.texts[1], "Lower band tag.")
}

func TestRunOnce_BriefingFailureIsLogged(t *testing.T) {
	a, _, n := newTestApp(t, core.SignalSell)
	a.SetBriefer(&stubBriefer{err: errors.New("llm down")})

	res := a.RunOnce(context.Background())
	a.WaitBriefings()

	require.NoError(t, res.Err)
	assert.True(t, res.Accepted)
	assert.Nil(t, a.LastBriefing())
	assert.Equal(t, 1, n.count(), "signal routing is unaffected")
}
