package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "scalper",
	Short: "Scalper - live FX and crypto signal dashboard",
	Long: `Scalper polls intraday bars for a currency pair, evaluates a Bollinger Band
and RSI rule on the latest bar and keeps a deduplicated history of BUY and SELL signals.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
