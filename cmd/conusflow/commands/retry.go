package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hydrostat/conusflow/driver"
	"github.com/hydrostat/conusflow/errors"
	"github.com/hydrostat/conusflow/logger"
	"github.com/hydrostat/conusflow/pool"
)

// RetryCmd re-runs the dates recorded in the failure ledger
var RetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-run only the dates in the failure ledger",
	Long: `Re-run the dates recorded in the failure ledger through a
narrower worker pool.

Dates that succeed drop out of the record; dates that fail again get an
updated message and timestamp. Whatever remains is written to the
terminal failure file, which is produced even when empty so downstream
tooling can tell "retried, all clear" from "never retried". Exits
nonzero when any date remains failed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}

		logPath, err := logger.InitializeWithRunLog(jsonLogs(cmd), cfg.Paths.LogDir, "retry")
		if err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		defer logger.Cleanup()

		monitor := pool.NewMonitor(cfg.Memory, logger.Logger)
		d := driver.New(cfg, monitor, logger.Logger)

		ctx, cancel := signalContext()
		defer cancel()

		report, err := d.Retry(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Retry %s: %d/%d dates recovered in %s (log: %s)\n",
			report.RunID, report.RetryRecovered, report.RetryAttempted,
			report.Elapsed.Round(time.Second), logPath)

		if report.Remaining > 0 {
			return errors.Newf("%d date(s) remain failed, see %s", report.Remaining, cfg.Paths.TerminalFile)
		}
		return nil
	},
}
