package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/newthinker/scalper/internal/core"
	"github.com/newthinker/scalper/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	scanPair   string
	scanNotify bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one refresh cycle and print the result",
	Long:  "Fetch bars for a pair, compute RSI and Bollinger Bands on the latest bar and print the signal.",
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanPair, "pair", "", "pair label to scan (default: configured default pair)")
	scanCmd.Flags().BoolVar(&scanNotify, "notify", false, "send actionable signals to configured notifiers")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	c, err := build(cfg, log, scanNotify)
	if err != nil {
		return err
	}
	defer c.Close()

	if scanPair != "" {
		if _, err := c.app.SelectPair(scanPair); err != nil {
			return fmt.Errorf("selecting pair: %w", err)
		}
	}

	res := c.app.RunOnce(context.Background())
	if res.Err != nil {
		log.Debug("scan failed", zap.Error(res.Err))
		fmt.Printf("%s: %s\n", res.Pair.Label, res.Status.Notice())
		return res.Err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PAIR\tPRICE\tRSI\tLOWER\tUPPER\tSIGNAL\tBAR TIME\t")
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
		res.Pair.Label,
		core.FormatPrice(res.Bar.Close),
		core.FormatRSI(res.Bar.RSI),
		core.FormatPrice(res.Bar.LowerBand),
		core.FormatPrice(res.Bar.UpperBand),
		res.Signal.Label(),
		res.Bar.Time.Format(core.ClockFormat),
	)
	w.Flush()

	if res.Signal.IsActionable() {
		fmt.Printf("\nRecorded %s at %s (%s)\n", res.Record.Signal, res.Record.Price, res.Record.Time)
	}

	c.app.WaitBriefings()
	if b := c.app.LastBriefing(); b != nil {
		fmt.Printf("\nBriefing (%s, risk %s):\n%s\n", b.Provider, b.Risk, b.Summary)
	}
	return nil
}
