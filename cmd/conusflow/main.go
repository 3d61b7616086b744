package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hydrostat/conusflow/cmd/conusflow/commands"
)

var rootCmd = &cobra.Command{
	Use:   "conusflow",
	Short: "conusflow - CONUS404 daily acquisition orchestrator",
	Long: `conusflow - per-day acquisition of the CONUS404 hydro-climate reanalysis.

conusflow fans a date range out across a bounded pool of worker
subprocesses, records failed days in a durable ledger, and converges the
survivors through a retry pass whose leftovers become the terminal
failure record.

Available commands:
  run     - Full acquisition: main pass plus automatic retry
  retry   - Re-run only the dates in the failure ledger
  worker  - Process a single date (launched by the pool)
  combine - Fold daily files into the combined archive
  config  - Show or initialize configuration
  version - Show version information

Examples:
  conusflow run                       # Acquire the configured date range
  conusflow retry                     # Retry yesterday's leftovers
  conusflow worker 1988-04-01         # One day, in the foreground
  conusflow combine                   # Build the combined archive
  conusflow config show               # Print the effective configuration`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to conusflow.toml (default: search upward from the working directory)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit JSON log lines instead of console output")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.RetryCmd)
	rootCmd.AddCommand(commands.WorkerCmd)
	rootCmd.AddCommand(commands.CombineCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
