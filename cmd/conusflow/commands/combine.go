package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hydrostat/conusflow/combine"
	"github.com/hydrostat/conusflow/errors"
	"github.com/hydrostat/conusflow/logger"
	"github.com/hydrostat/conusflow/pool"
)

// CombineCmd folds the daily files into the combined archive
var CombineCmd = &cobra.Command{
	Use:   "combine",
	Short: "Fold daily files into the combined archive",
	Long: `Concatenate every daily file under the data directory into the
configured combined output file.

Days are grouped by year and concatenated in batches of at most
combine.batch_size, and memory is checked before each year so the run
stops instead of swapping the machine to death.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}

		if err := logger.Initialize(jsonLogs(cmd)); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		defer logger.Cleanup()

		monitor := pool.NewMonitor(cfg.Memory, logger.Logger)

		ctx, cancel := signalContext()
		defer cancel()

		if err := combine.New(cfg, monitor, logger.Logger).Run(ctx); err != nil {
			return err
		}
		fmt.Printf("Combined archive written to %s\n", cfg.Combine.OutputFile)
		return nil
	},
}
