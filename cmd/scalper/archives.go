package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/newthinker/scalper/internal/logger"
	"github.com/newthinker/scalper/internal/storage/archive"
	"github.com/spf13/cobra"
)

var archivesCmd = &cobra.Command{
	Use:   "archives [path]",
	Short: "List archived histories or print one",
	Long:  "Without arguments, list archived history snapshots. With a path, print its records.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runArchives,
}

func init() {
	rootCmd.AddCommand(archivesCmd)
}

func runArchives(cmd *cobra.Command, args []string) error {
	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	archiver, err := openArchiver(cfg)
	if err != nil {
		return err
	}
	if archiver == nil {
		return fmt.Errorf("no archive configured (storage.archive.type)")
	}

	ctx := context.Background()
	if len(args) == 1 {
		snap, err := archiver.Load(ctx, args[0])
		if err != nil {
			return err
		}
		return printSnapshot(snap)
	}

	paths, err := archiver.List(ctx)
	if err != nil {
		return fmt.Errorf("listing archives: %w", err)
	}
	if len(paths) == 0 {
		fmt.Println("No archived histories.")
		return nil
	}
	for _, p := range paths {
		fmt.Println(p)
	}
	return nil
}

func printSnapshot(snap *archive.Snapshot) error {
	fmt.Printf("Cleared at %s, %d records\n\n", snap.ClearedAt.Local().Format("2006-01-02 15:04:05"), snap.Count)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tPAIR\tSIGNAL\tPRICE\tRSI\t")
	for _, rec := range snap.Records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n", rec.Time, rec.Pair, rec.Signal.Label(), rec.Price, rec.RSI)
	}
	return w.Flush()
}
