package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/scalper/internal/alert"
	"github.com/newthinker/scalper/internal/briefing"
	"github.com/newthinker/scalper/internal/collector"
	"github.com/newthinker/scalper/internal/config"
	"github.com/newthinker/scalper/internal/core"
	"github.com/newthinker/scalper/internal/indicator"
	"github.com/newthinker/scalper/internal/logger"
	"github.com/newthinker/scalper/internal/metrics"
	"github.com/newthinker/scalper/internal/notifier"
	"github.com/newthinker/scalper/internal/router"
	"github.com/newthinker/scalper/internal/session"
	"github.com/newthinker/scalper/internal/storage/journal"
	"github.com/newthinker/scalper/internal/strategy"
	"github.com/newthinker/scalper/internal/strategy/bbrsi"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CycleResult is the outcome of one refresh cycle.
type CycleResult struct {
	Pair     core.Pair
	Status   core.FeedStatus
	Bar      core.PriceBar
	Signal   core.Signal
	Record   core.SignalRecord
	Accepted bool
	Closes   []float64
	Err      error
}

// App is the main application orchestrator
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	collectors *collector.Registry
	strategy   strategy.Strategy
	notifiers  *notifier.Registry
	router     *router.Router
	session    *session.Session
	metrics    *metrics.Registry
	params     indicator.Params

	// cycleMu serializes refresh cycles
	cycleMu sync.Mutex
	// cycleWG tracks refreshes started outside the scheduler
	cycleWG sync.WaitGroup

	mu       sync.RWMutex
	interval time.Duration
	cron     *cron.Cron
	entryID  cron.EntryID
	runCtx   context.Context
	running  bool
	cancel   context.CancelFunc

	// feed health, guarded by mu
	startedAt time.Time
	lastLive  time.Time
	failures  int

	alerts        *alert.Evaluator
	alertRules    []alert.Rule
	alertInterval time.Duration

	briefer   Briefer
	briefWG   sync.WaitGroup
	lastBrief *briefing.Briefing // guarded by mu
}

// Briefer writes a note for a newly recorded signal.
type Briefer interface {
	Brief(ctx context.Context, req briefing.Request) (*briefing.Briefing, error)
}

// New creates a new App instance
func New(cfg *config.Config, sess *session.Session, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = config.Defaults()
	}

	notifiers := notifier.NewRegistry()
	routerCfg := router.Config{
		Cooldown:       cfg.Router.Cooldown,
		EnabledSignals: router.ParseSignals(cfg.Router.EnabledSignals),
	}
	r := router.New(routerCfg, notifiers, logger.Named("router"))

	return &App{
		cfg:        cfg,
		logger:     logger,
		collectors: collector.NewRegistry(),
		strategy:   bbrsi.New(cfg.Strategy.RSIBuyAbove, cfg.Strategy.RSISellBelow),
		notifiers:  notifiers,
		router:     r,
		session:    sess,
		params: indicator.Params{
			RSIPeriod: cfg.Indicators.RSIPeriod,
			BBPeriod:  cfg.Indicators.BBPeriod,
			MinBars:   cfg.Feed.MinBars,
		},
		interval:  cfg.Refresh.Interval,
		startedAt: time.Now(),
	}
}

// RegisterCollector adds a collector to the app
func (a *App) RegisterCollector(c collector.Collector) {
	a.collectors.Register(c)
}

// RegisterNotifier adds a notifier to the app
func (a *App) RegisterNotifier(n notifier.Notifier) error {
	return a.notifiers.Register(n)
}

// SetStrategy replaces the signal strategy
func (a *App) SetStrategy(s strategy.Strategy) {
	a.strategy = s
}

// SetJournal sets the journal accepted records are written to
func (a *App) SetJournal(j journal.Journal) {
	a.router.SetJournal(j)
}

// SetMetrics sets the metrics registry
func (a *App) SetMetrics(m *metrics.Registry) {
	a.metrics = m
	a.router.SetMetrics(m)
	m.SetRefreshInterval(a.Interval().Seconds())
	m.SetHistorySize(a.session.History().Len())
}

// SetAlerts enables feed health alerts, checked every interval while running.
func (a *App) SetAlerts(eval *alert.Evaluator, rules []alert.Rule, interval time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = eval
	a.alertRules = rules
	a.alertInterval = interval
}

// Session returns the dashboard session
func (a *App) Session() *session.Session {
	return a.session
}

// SetBriefer enables LLM briefings for newly recorded signals.
func (a *App) SetBriefer(b Briefer) {
	a.briefer = b
}

// LastBriefing returns the most recent briefing, or nil.
func (a *App) LastBriefing() *briefing.Briefing {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastBrief
}

// WaitBriefings blocks until in-flight briefings finish.
func (a *App) WaitBriefings() {
	a.briefWG.Wait()
}

// Notifiers returns the notifier registry
func (a *App) Notifiers() *notifier.Registry {
	return a.notifiers
}

// Router returns the signal router
func (a *App) Router() *router.Router {
	return a.router
}

// Interval returns the refresh interval
func (a *App) Interval() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.interval
}

// SetInterval changes the refresh interval and reschedules a running loop.
func (a *App) SetInterval(d time.Duration) error {
	if err := config.ValidateInterval(d); err != nil {
		return err
	}

	a.mu.Lock()
	a.interval = d
	if a.cron != nil {
		a.cron.Remove(a.entryID)
		id, err := a.cron.AddFunc(everySpec(d), a.scheduledCycle)
		if err != nil {
			a.mu.Unlock()
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("rescheduling: %w", err))
		}
		a.entryID = id
	}
	a.mu.Unlock()

	a.session.SetInterval(d)
	if a.metrics != nil {
		a.metrics.SetRefreshInterval(d.Seconds())
	}
	a.logger.Info("refresh interval changed", zap.Duration("interval", d))
	return nil
}

// SelectPair switches the session pair and, when running, refreshes right away.
func (a *App) SelectPair(label string) (core.Pair, error) {
	p, err := a.session.SelectPair(label)
	if err != nil {
		return core.Pair{}, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.running && a.runCtx.Err() == nil {
		ctx := a.runCtx
		a.cycleWG.Add(1)
		go func() {
			defer a.cycleWG.Done()
			if ctx.Err() != nil {
				return
			}
			a.RunOnce(ctx)
		}()
	}
	return p, nil
}

// Start runs a first cycle immediately and then one per interval until ctx is done.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	cronLog := logger.Cron(a.logger)
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	id, err := c.AddFunc(everySpec(a.interval), a.scheduledCycle)
	if err != nil {
		a.mu.Unlock()
		cancel()
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("scheduling cycle: %w", err))
	}
	if a.alerts != nil && a.alertInterval > 0 {
		if _, err := c.AddFunc(everySpec(a.alertInterval), a.scheduledAlerts); err != nil {
			a.mu.Unlock()
			cancel()
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("scheduling alerts: %w", err))
		}
	}
	a.cron, a.entryID = c, id
	a.runCtx, a.cancel = ctx, cancel
	a.running = true
	interval := a.interval
	a.mu.Unlock()

	a.logger.Info("scalper starting",
		zap.String("pair", a.session.Pair().Label),
		zap.String("collector", a.cfg.Feed.Collector),
		zap.Duration("interval", interval),
	)

	// Initial run
	a.RunOnce(ctx)
	c.Start()

	<-ctx.Done()
	a.logger.Info("scalper shutting down")
	// SelectPair only adds to cycleWG under mu with a live context, so
	// after this barrier no new refresh can start.
	a.mu.Lock()
	a.mu.Unlock()
	<-c.Stop().Done()
	a.cycleWG.Wait()
	a.briefWG.Wait()

	a.mu.Lock()
	a.running = false
	a.cron = nil
	a.runCtx = nil
	a.mu.Unlock()
	return ctx.Err()
}

// Stop stops the refresh loop
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

func (a *App) scheduledCycle() {
	a.mu.RLock()
	ctx := a.runCtx
	a.mu.RUnlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	a.RunOnce(ctx)
}

func (a *App) scheduledAlerts() {
	a.mu.RLock()
	ctx := a.runCtx
	a.mu.RUnlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	a.CheckAlerts(ctx)
}

// CheckAlerts evaluates alert rules against the current feed health and
// returns the names of rules that fired.
func (a *App) CheckAlerts(ctx context.Context) []string {
	a.mu.RLock()
	eval, rules := a.alerts, a.alertRules
	a.mu.RUnlock()
	if eval == nil {
		return nil
	}

	eval.SetMetrics(a.Health())
	return eval.EvaluateAll(ctx, rules)
}

// Health returns the feed health values alert rules are written against.
func (a *App) Health() map[string]float64 {
	a.mu.RLock()
	since := a.lastLive
	if since.IsZero() {
		since = a.startedAt
	}
	failures := a.failures
	interval := a.interval
	a.mu.RUnlock()

	live := 0.0
	if a.session.Status() == core.StatusLive {
		live = 1
	}

	return map[string]float64{
		"consecutive_failures":     float64(failures),
		"seconds_since_live":       time.Since(since).Seconds(),
		"feed_live":                live,
		"history_size":             float64(a.session.History().Len()),
		"refresh_interval_seconds": interval.Seconds(),
	}
}

// RunOnce performs a single refresh cycle for the selected pair.
func (a *App) RunOnce(ctx context.Context) CycleResult {
	a.cycleMu.Lock()
	defer a.cycleMu.Unlock()

	start := time.Now()
	res := a.cycle(ctx)

	a.mu.Lock()
	if res.Err != nil {
		a.failures++
	} else {
		a.failures = 0
		a.lastLive = time.Now()
	}
	a.mu.Unlock()

	if res.Err != nil {
		a.session.SetStatus(res.Status)
		level := a.logger.Warn
		if res.Status == core.StatusWaiting {
			level = a.logger.Debug
		}
		level("refresh cycle incomplete",
			zap.String("pair", res.Pair.Label),
			zap.String("status", string(res.Status)),
			zap.Error(res.Err),
		)
	}

	if a.metrics != nil {
		a.metrics.RecordCycle(string(res.Status), time.Since(start).Seconds())
	}
	return res
}

func (a *App) cycle(ctx context.Context) CycleResult {
	pair := a.session.Pair()
	res := CycleResult{Pair: pair, Signal: core.SignalNeutral}

	bars, err := a.fetch(ctx, pair)
	if err != nil {
		res.Status, res.Err = statusFor(err), err
		return res
	}

	bar, err := indicator.Latest(bars, a.params)
	if err != nil {
		res.Status, res.Err = statusFor(err), err
		return res
	}
	res.Bar = bar
	res.Closes = indicator.Tail(indicator.Closes(bars), a.cfg.Feed.ChartBars)

	res.Signal = a.strategy.Evaluate(bar)
	hist := a.session.History()
	res.Record, res.Accepted = hist.Record(pair.Label, res.Signal, bar.Close, bar.RSI)

	if a.metrics != nil {
		a.metrics.RecordEvaluation(pair.Label, string(res.Signal))
		if res.Signal.IsActionable() {
			a.metrics.RecordHistory(res.Accepted, hist.Len())
		}
	}

	if res.Accepted {
		a.logger.Info("signal recorded",
			zap.String("pair", pair.Label),
			zap.String("signal", string(res.Signal)),
			zap.String("price", res.Record.Price),
			zap.String("rsi", res.Record.RSI),
		)
		if err := a.router.Route(ctx, res.Record); err != nil {
			a.logger.Error("failed to route record", zap.String("id", res.Record.ID), zap.Error(err))
		}
		if a.briefer != nil {
			recent := hist.Recent(6)
			if len(recent) > 0 {
				recent = recent[1:]
			}
			a.startBriefing(ctx, briefing.Request{
				Record: res.Record,
				Bar:    bar,
				Closes: res.Closes,
				Recent: recent,
			})
		}
	}

	res.Status = core.StatusLive
	a.session.Publish(core.Snapshot{
		Pair:     pair,
		Status:   core.StatusLive,
		Price:    core.FormatPrice(bar.Close),
		RSI:      core.FormatRSI(bar.RSI),
		Lower:    core.FormatPrice(bar.LowerBand),
		Upper:    core.FormatPrice(bar.UpperBand),
		Signal:   res.Signal,
		Label:    res.Signal.Label(),
		SyncedAt: time.Now().Format(core.ClockFormat),
		Closes:   res.Closes,
	})

	a.logger.Debug("refresh cycle complete",
		zap.String("pair", pair.Label),
		zap.Float64("close", bar.Close),
		zap.Float64("rsi", bar.RSI),
		zap.String("signal", string(res.Signal)),
	)
	return res
}

func (a *App) fetch(ctx context.Context, pair core.Pair) ([]core.OHLCV, error) {
	name := pair.Collector
	if name == "" {
		name = a.cfg.Feed.Collector
	}
	c, err := a.collectors.MustGet(name)
	if err != nil {
		return nil, err
	}

	if a.cfg.Feed.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Feed.Timeout)
		defer cancel()
	}

	bars, err := c.FetchBars(ctx, pair.Symbol, a.cfg.Feed.Range, a.cfg.Feed.Interval)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, core.WrapError(core.ErrCollectorTimeout, err)
		}
		return nil, err
	}
	return bars, nil
}

// startBriefing generates a briefing in the background and sends it to
// the text-capable notifiers. It outlives the triggering request; the
// briefer's own timeout bounds it. Failures are logged only.
func (a *App) startBriefing(ctx context.Context, req briefing.Request) {
	ctx = context.WithoutCancel(ctx)
	a.briefWG.Add(1)
	go func() {
		defer a.briefWG.Done()

		b, err := a.briefer.Brief(ctx, req)
		if err != nil {
			a.logger.Warn("briefing failed",
				zap.String("id", req.Record.ID),
				zap.String("pair", req.Record.Pair),
				zap.Error(err),
			)
			return
		}

		a.mu.Lock()
		a.lastBrief = b
		a.mu.Unlock()

		if a.notifiers.Len() == 0 {
			return
		}
		if err := a.notifiers.Notify(ctx, b.Text()); err != nil {
			a.logger.Warn("failed to send briefing", zap.String("id", req.Record.ID), zap.Error(err))
		}
	}()
}

// statusFor maps a cycle error to the feed status shown on the dashboard.
func statusFor(err error) core.FeedStatus {
	switch {
	case errors.Is(err, core.ErrNoData),
		errors.Is(err, core.ErrInsufficientData),
		errors.Is(err, core.ErrIndicatorFailed):
		return core.StatusWaiting
	default:
		return core.StatusReconnecting
	}
}

func everySpec(d time.Duration) string {
	return "@every " + d.String()
}

// Stats returns application statistics
func (a *App) Stats() map[string]any {
	health := a.Health()

	a.mu.RLock()
	defer a.mu.RUnlock()

	return map[string]any{
		"running":    a.running,
		"interval":   a.interval.String(),
		"pair":       a.session.Pair().Label,
		"status":     string(a.session.Status()),
		"collectors": a.collectors.Names(),
		"strategy":   a.strategy.Name(),
		"notifiers":  a.notifiers.Names(),
		"history":    a.session.History().Len(),
		"router":     a.router.Stats(),
		"health":     health,
		"briefing":   a.lastBrief,
	}
}
