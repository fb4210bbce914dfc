package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/mmradar/internal/exchange"
	"github.com/rewired-gh/mmradar/internal/monitor"
)

var analyzeJSON bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze SYMBOL...",
	Short: "Analyze instruments once and print the assessments",
	Long: `Fetch the current order book, candles and trades of each instrument and
print its risk assessment. Wall removal needs a baseline and is skipped
in one-shot mode.

Examples:
  mmradar analyze btc eth/usdt
  mmradar analyze SOLUSDT --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print assessments as JSON")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client := exchange.NewClient(exchangeOptions(cfg.Exchange), nil)
	mon := monitor.New(client, monitorConfig(cfg.Monitor), nil)
	results := mon.Scan(cmd.Context(), args)

	out := cmd.OutOrStdout()
	if analyzeJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		for i, a := range results {
			if i > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintln(out, monitor.FormatAlert(a))
		}
	}

	for _, a := range results {
		if !a.Failed() {
			return nil
		}
	}
	return fmt.Errorf("all %d analyses failed", len(results))
}
