// Package worker implements the single-date worker unit. It runs inside an
// isolated subprocess launched by the pool: acquire one day, aggregate it,
// validate it, exit 0 or 1. Nothing here ever touches the coordinator's state.
package worker

import (
	"context"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hydrostat/conusflow/config"
	"github.com/hydrostat/conusflow/dataset"
	"github.com/hydrostat/conusflow/errors"
	"github.com/hydrostat/conusflow/qc"
)

// Worker processes exactly one date
type Worker struct {
	cfg      *config.Config
	provider dataset.Provider
	rules    []qc.Rule
	logger   *zap.SugaredLogger
}

// New creates a worker around the given dataset provider
func New(cfg *config.Config, provider dataset.Provider, logger *zap.SugaredLogger) *Worker {
	return &Worker{
		cfg:      cfg,
		provider: provider,
		rules:    qc.DefaultRules(),
		logger:   logger,
	}
}

// Run downloads, aggregates, and validates one day. A file that fails
// validation is removed before the error is returned, so a later retry
// starts clean and the combined archive never sees a corrupt day.
func (w *Worker) Run(ctx context.Context, date time.Time) error {
	key := date.Format(config.DateLayout)
	w.logger.Infow("Worker starting", "date", key, "pid", os.Getpid())

	agg, err := w.provider.FetchAndAggregate(ctx, date)
	if err != nil {
		return errors.Wrapf(err, "download failed for %s", key)
	}

	w.logger.Infow("Validation starting", "date", key, "file", agg.Path)
	violations := qc.Validate(agg, w.rules)
	if len(violations) > 0 {
		w.logger.Errorw("Validation failed",
			"date", key,
			"file", agg.Path,
			"violations", strings.Join(violations, "; "))

		if err := os.Remove(agg.Path); err != nil && !os.IsNotExist(err) {
			w.logger.Errorw("Could not clean up invalid file", "file", agg.Path, "error", err)
		} else {
			w.logger.Infow("Cleaned up invalid file", "file", agg.Path)
		}

		return errors.Wrapf(errors.ErrValidationFailed, "date %s: %s", key, strings.Join(violations, "; "))
	}

	w.logger.Infow("Worker succeeded",
		"date", key,
		"file", agg.Path,
		"hourly_records", agg.HourlyRecords)
	return nil
}
