package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hydrostat/conusflow/config"
	"github.com/hydrostat/conusflow/driver"
	"github.com/hydrostat/conusflow/errors"
	"github.com/hydrostat/conusflow/logger"
	"github.com/hydrostat/conusflow/pool"
)

// RunCmd executes the full acquisition run
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full acquisition: main pass plus automatic retry",
	Long: `Run the acquisition over the configured date range.

Every date gets its own worker subprocess, at most pool.max_procs of
them at a time. Failed dates land in the failure ledger and are retried
through a narrower pool once the main pass drains. Dates still failing
after the retry pass are written to the terminal failure file and the
command exits nonzero.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}

		logPath, err := logger.InitializeWithRunLog(jsonLogs(cmd), cfg.Paths.LogDir, "driver")
		if err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		defer logger.Cleanup()

		monitor := pool.NewMonitor(cfg.Memory, logger.Logger)
		watchThresholds(cmd, monitor)

		d := driver.New(cfg, monitor, logger.Logger)
		if cfg.Dataset.StacAPIURL != "" {
			d.Resolver = driver.NewSTACResolver(cfg.Dataset, logger.Logger)
		}

		ctx, cancel := signalContext()
		defer cancel()

		report, err := d.Run(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Run %s: %d/%d dates succeeded", report.RunID, report.Succeeded, report.Attempted)
		if report.RetryAttempted > 0 {
			fmt.Printf(", %d/%d recovered on retry", report.RetryRecovered, report.RetryAttempted)
		}
		fmt.Printf(" in %s (log: %s)\n", report.Elapsed.Round(time.Second), logPath)

		if report.Remaining > 0 {
			return errors.Newf("%d date(s) remain failed, see %s", report.Remaining, cfg.Paths.TerminalFile)
		}
		return nil
	},
}

// watchThresholds hot-reloads memory thresholds when an explicit config
// file is in use. A run can last days; operators tune the limits without
// restarting it.
func watchThresholds(cmd *cobra.Command, monitor *pool.Monitor) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return
	}
	watcher, err := config.NewWatcher(path)
	if err != nil {
		logger.Warnw("Config watcher unavailable, memory thresholds frozen for this run",
			"path", path, "error", err)
		return
	}
	watcher.OnReload(func(cfg *config.Config) error {
		monitor.SetThresholds(cfg.Memory.WarningPercent, cfg.Memory.CriticalPercent)
		return nil
	})
	watcher.Start()
}
