package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/newthinker/scalper/internal/core"
	"github.com/newthinker/scalper/internal/logger"
	"github.com/newthinker/scalper/internal/storage/journal"
	"github.com/spf13/cobra"
)

var (
	journalLimit  int
	journalPair   string
	journalSignal string
	journalSince  time.Duration
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "List journaled signal records",
	RunE:  runJournal,
}

func init() {
	journalCmd.Flags().IntVar(&journalLimit, "limit", 50, "maximum number of records")
	journalCmd.Flags().StringVar(&journalPair, "pair", "", "filter by pair label")
	journalCmd.Flags().StringVar(&journalSignal, "signal", "", "filter by signal (BUY or SELL)")
	journalCmd.Flags().DurationVar(&journalSince, "since", 0, "only records newer than this (e.g. 24h)")
	rootCmd.AddCommand(journalCmd)
}

func runJournal(cmd *cobra.Command, args []string) error {
	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	if cfg.Storage.Journal.Path == "" {
		return fmt.Errorf("no journal configured (storage.journal.path)")
	}

	j, err := openJournal(cfg, log)
	if err != nil {
		return err
	}
	defer j.Close()

	filter := journal.ListFilter{
		Pair:   journalPair,
		Signal: core.Signal(strings.ToUpper(journalSignal)),
		Limit:  journalLimit,
	}
	if journalSince > 0 {
		filter.From = time.Now().Add(-journalSince)
	}

	records, err := j.List(context.Background(), filter)
	if err != nil {
		return fmt.Errorf("listing journal: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No journaled signals found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RECORDED\tTIME\tPAIR\tSIGNAL\tPRICE\tRSI\t")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
			rec.RecordedAt.Local().Format("2006-01-02 15:04:05"),
			rec.Time, rec.Pair, rec.Signal.Label(), rec.Price, rec.RSI)
	}
	return w.Flush()
}
