package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/hydrostat/conusflow/config"
	"github.com/hydrostat/conusflow/dataset"
	"github.com/hydrostat/conusflow/errors"
	"github.com/hydrostat/conusflow/logger"
	"github.com/hydrostat/conusflow/worker"
)

var (
	workerAssetHref      string
	workerStorageOptions string
	workerOpenKwargs     string
)

// WorkerCmd processes a single date. The pool launches it as a
// subprocess with stdout and stderr redirected to the per-date log, but
// it also works standalone for debugging one day.
var WorkerCmd = &cobra.Command{
	Use:   "worker <date>",
	Short: "Process a single date (launched by the pool)",
	Long: `Download, aggregate, and validate one day of the dataset.

Exits 0 when the day's file is written and passes validation, 1
otherwise. A file that fails validation is removed before exit so a
later retry starts clean.

Example:
  conusflow worker 1988-04-01`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}

		if err := logger.Initialize(jsonLogs(cmd)); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		defer logger.Cleanup()

		date, err := time.Parse(config.DateLayout, args[0])
		if err != nil {
			return errors.Wrapf(err, "invalid date %q, expected YYYY-MM-DD", args[0])
		}

		var assets *dataset.AssetFiles
		if workerAssetHref != "" {
			assets = &dataset.AssetFiles{
				Href:               workerAssetHref,
				StorageOptionsPath: workerStorageOptions,
				OpenKwargsPath:     workerOpenKwargs,
			}
		}

		provider := dataset.NewCommandProvider(cfg, assets, logger.Logger)
		w := worker.New(cfg, provider, logger.Logger)

		ctx, cancel := signalContext()
		defer cancel()

		return w.Run(ctx, date)
	},
}

func init() {
	WorkerCmd.Flags().StringVar(&workerAssetHref, "asset-href", "", "Pre-resolved asset href from the coordinator")
	WorkerCmd.Flags().StringVar(&workerStorageOptions, "storage-options", "", "Path to the storage options JSON file")
	WorkerCmd.Flags().StringVar(&workerOpenKwargs, "open-kwargs", "", "Path to the open kwargs JSON file")
}
