package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/newthinker/scalper/internal/backtest"
	"github.com/newthinker/scalper/internal/collector"
	"github.com/newthinker/scalper/internal/config"
	"github.com/newthinker/scalper/internal/core"
	"github.com/newthinker/scalper/internal/indicator"
	"github.com/newthinker/scalper/internal/logger"
	"github.com/newthinker/scalper/internal/strategy/bbrsi"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	backtestPair    string
	backtestRange   string
	backtestHorizon int
	backtestSignals int
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay historical bars through the signal pipeline",
	Long: "Fetch historical bars for a pair, evaluate every bar the way the live feed would, " +
		"record signals through the history rules and score each one by its forward return.",
	RunE: runBacktest,
}

func init() {
	backtestCmd.Flags().StringVar(&backtestPair, "pair", "", "pair label to replay (default: configured default pair)")
	backtestCmd.Flags().StringVar(&backtestRange, "range", "", "lookback range, e.g. 5d (default: feed.range)")
	backtestCmd.Flags().IntVar(&backtestHorizon, "horizon", 5, "bars after a signal at which it is scored")
	backtestCmd.Flags().IntVar(&backtestSignals, "signals", 10, "most recent scored signals to list")
	rootCmd.AddCommand(backtestCmd)
}

func runBacktest(cmd *cobra.Command, args []string) error {
	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	label := backtestPair
	if label == "" {
		label = cfg.DefaultPair
	}
	pair, ok := cfg.Pair(label)
	if !ok {
		return core.WrapError(core.ErrPairNotFound, fmt.Errorf("%q", label))
	}

	feeds, err := collectors(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Feed.Timeout*4)
	defer cancel()

	res, err := newReplayer(cfg, feeds, log).Replay(ctx, pair, backtestRange, backtestHorizon)
	if err != nil {
		return fmt.Errorf("replaying %s: %w", pair.Label, err)
	}

	printResult(os.Stdout, res, backtestSignals)
	return nil
}

// replayer runs replays against the live collectors with the live
// pipeline settings. It backs both the CLI and the replay API.
type replayer struct {
	cfg   *config.Config
	feeds []collector.Collector
	log   *zap.Logger
}

func newReplayer(cfg *config.Config, feeds []collector.Collector, log *zap.Logger) *replayer {
	return &replayer{cfg: cfg, feeds: feeds, log: log}
}

// Replay fetches bars for pair over rng, empty meaning feed.range, and
// replays them at feed.interval.
func (r *replayer) Replay(ctx context.Context, pair core.Pair, rng string, horizon int) (*backtest.Result, error) {
	src, err := sourceFor(r.feeds, pair, r.cfg.Feed.Collector)
	if err != nil {
		return nil, err
	}
	if rng == "" {
		rng = r.cfg.Feed.Range
	}

	r.log.Debug("replaying",
		zap.String("pair", pair.Label),
		zap.String("collector", src.Name()),
		zap.String("range", rng),
		zap.String("interval", r.cfg.Feed.Interval),
		zap.Int("horizon", horizon),
	)
	return newBacktester(r.cfg, horizon).Run(ctx, src, pair, rng, r.cfg.Feed.Interval)
}

// newBacktester mirrors the live pipeline settings from cfg.
func newBacktester(cfg *config.Config, horizon int) *backtest.Backtester {
	return backtest.New(
		bbrsi.New(cfg.Strategy.RSIBuyAbove, cfg.Strategy.RSISellBelow),
		backtest.Config{
			Params: indicator.Params{
				RSIPeriod: cfg.Indicators.RSIPeriod,
				BBPeriod:  cfg.Indicators.BBPeriod,
				MinBars:   cfg.Feed.MinBars,
			},
			Horizon:       horizon,
			DedupBySignal: cfg.History.DedupBySignal,
		},
	)
}

// sourceFor picks the collector a pair names, falling back to fallback.
func sourceFor(feeds []collector.Collector, pair core.Pair, fallback string) (collector.Collector, error) {
	name := pair.Collector
	if name == "" {
		name = fallback
	}
	for _, feed := range feeds {
		if feed.Name() == name {
			return feed, nil
		}
	}
	return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("no collector named %q", name))
}

func printResult(out io.Writer, res *backtest.Result, limit int) {
	fmt.Fprintf(out, "=== Replay: %s (%s) ===\n", res.Pair.Label, res.Strategy)
	fmt.Fprintf(out, "Period:   %s to %s (%d bars, %s)\n",
		res.From.Format("2006-01-02 15:04"), res.To.Format("2006-01-02 15:04"), res.Bars, res.Interval)
	fmt.Fprintf(out, "Signals:  %d BUY, %d SELL evaluated, %d recorded\n",
		res.Evaluations[core.SignalBuy], res.Evaluations[core.SignalSell], len(res.Records))
	fmt.Fprintf(out, "Horizon:  %d bars\n\n", res.Horizon)

	s := res.Stats
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SIDE\tTRADES\tWINS\tWIN RATE\tAVG RETURN\t")
	for _, sig := range []core.Signal{core.SignalBuy, core.SignalSell} {
		d := s.BySignal[sig]
		fmt.Fprintf(w, "%s\t%d\t%d\t%.1f%%\t%.4f%%\t\n", sig, d.Trades, d.Wins, d.WinRate, d.AvgReturn)
	}
	fmt.Fprintf(w, "ALL\t%d\t%d\t%.1f%%\t%.4f%%\t\n",
		s.WinningTrades+s.LosingTrades, s.WinningTrades, s.WinRate, s.AvgReturn)
	w.Flush()

	fmt.Fprintf(out, "\nTotal return %.4f%%, max drawdown %.4f%%, sharpe %.2f, profit factor %.2f, %d open\n",
		s.TotalReturn, s.MaxDrawdown, s.SharpeRatio, s.ProfitFactor, s.Open)

	if len(res.Trades) == 0 || limit <= 0 {
		return
	}

	trades := res.Trades
	if len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}
	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSIGNAL\tENTRY\tEXIT\tRETURN\t")
	for i := len(trades) - 1; i >= 0; i-- {
		t := trades[i]
		ret := fmt.Sprintf("%+.4f%%", t.Return*100)
		if !t.Closed {
			ret += " (open)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n",
			t.EntryTime.Format("01-02 "+core.ClockFormat),
			t.Record.Signal.Label(),
			core.FormatPrice(t.EntryPrice),
			core.FormatPrice(t.ExitPrice),
			ret,
		)
	}
	w.Flush()
}
