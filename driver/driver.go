// Package driver coordinates a full acquisition run: resolve the remote
// asset, fan the date range out across a bounded pool of worker
// subprocesses, record failures in the durable ledger, and converge the
// survivors through a narrower retry pass whose leftovers become the
// terminal failure record.
package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hydrostat/conusflow/config"
	"github.com/hydrostat/conusflow/dataset"
	"github.com/hydrostat/conusflow/errors"
	"github.com/hydrostat/conusflow/ledger"
	"github.com/hydrostat/conusflow/pool"
)

// AssetResolver prepares the remote dataset connection before workers
// launch. Implementations return the files workers need to open the
// store, or nil when workers resolve the asset themselves.
type AssetResolver interface {
	Setup(ctx context.Context) (*dataset.AssetFiles, error)
}

// CommandBuilder produces the per-date worker command for a pass.
// Assets may be nil when no connection files were prepared.
type CommandBuilder func(assets *dataset.AssetFiles) pool.WorkerCommand

// Report summarizes one driver invocation
type Report struct {
	RunID          string
	Attempted      int
	Succeeded      int
	Failed         int
	RetryAttempted int
	RetryRecovered int
	Remaining      int
	Elapsed        time.Duration
}

// ExitCode maps the report onto the process exit convention: zero only
// when no dates remain failed after all passes.
func (r *Report) ExitCode() int {
	if r.Remaining > 0 {
		return 1
	}
	return 0
}

// Driver owns one acquisition run end to end
type Driver struct {
	cfg     *config.Config
	monitor *pool.Monitor
	ledger  *ledger.Ledger
	logger  *zap.SugaredLogger

	// Resolver may be nil; workers then resolve the asset themselves.
	Resolver AssetResolver

	// WorkerCommand and RetryCommand are overridable for tests and for
	// deployments that wrap the worker binary.
	WorkerCommand CommandBuilder
	RetryCommand  CommandBuilder
}

// New wires a driver from configuration. The ledger path and worker
// log directories all derive from cfg.Paths.
func New(cfg *config.Config, monitor *pool.Monitor, logger *zap.SugaredLogger) *Driver {
	d := &Driver{
		cfg:     cfg,
		monitor: monitor,
		ledger:  ledger.New(cfg.Paths.LedgerFile, cfg.VariableNames(), logger),
		logger:  logger,
	}
	d.WorkerCommand = d.selfWorkerCommand
	d.RetryCommand = d.selfWorkerCommand
	return d
}

// Ledger exposes the failure ledger backing this run
func (d *Driver) Ledger() *ledger.Ledger {
	return d.ledger
}

// selfWorkerCommand re-invokes the running binary in worker mode, the
// default production arrangement.
func (d *Driver) selfWorkerCommand(assets *dataset.AssetFiles) pool.WorkerCommand {
	exe, err := os.Executable()
	if err != nil {
		d.logger.Warnw("Could not resolve own executable path, falling back to PATH lookup", "error", err)
		exe = "conusflow"
	}
	return func(task pool.Task) (string, []string) {
		args := []string{"worker", task.Key()}
		if assets != nil {
			args = append(args,
				"--asset-href", assets.Href,
				"--storage-options", assets.StorageOptionsPath,
				"--open-kwargs", assets.OpenKwargsPath)
		}
		return exe, args
	}
}

// Run executes the main acquisition pass over the configured date range,
// then, if any dates failed, immediately runs the retry pass. The
// terminal failure file is written only by the retry pass; a run where
// every date succeeds first time leaves no terminal record behind.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.NewString()}

	dates, err := d.cfg.DateRange()
	if err != nil {
		return nil, errors.Wrap(err, "invalid date range")
	}

	d.logger.Infow("Acquisition run starting",
		"run_id", report.RunID,
		"start_date", d.cfg.Dates.Start,
		"end_date", d.cfg.Dates.End,
		"days", len(dates),
		"max_processes", d.cfg.Pool.MaxProcs)
	if d.monitor != nil {
		d.monitor.LogMemory("initial")
	}

	if err := d.ledger.Clear(); err != nil {
		return nil, errors.Wrap(err, "could not reset failure ledger")
	}

	var assets *dataset.AssetFiles
	if d.Resolver != nil {
		assets, err = d.Resolver.Setup(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "asset setup failed")
		}
		defer func() {
			if cerr := assets.Cleanup(); cerr != nil {
				d.logger.Warnw("Could not remove connection parameter files", "error", cerr)
			}
		}()
	}

	tasks := make([]pool.Task, 0, len(dates))
	for _, day := range dates {
		tasks = append(tasks, pool.NewTask(day))
	}

	result, err := d.runPass(ctx, "main", d.cfg.Pool.MaxProcs, tasks,
		d.WorkerCommand(assets), filepath.Join(d.cfg.Paths.LogDir, "workers"),
		func(o pool.Outcome) {
			if o.Succeeded() {
				return
			}
			var lerr error
			if errors.IsLaunchError(o.Err) {
				lerr = d.ledger.RecordLaunchFailure(o.Task.Key(), o.Err)
			} else {
				lerr = d.ledger.RecordFailure(o.Task.Key(), o.ExitCode)
			}
			if lerr != nil {
				d.logger.Errorw("Could not persist failure record",
					"date", o.Task.Key(), "error", lerr)
			}
		})
	if err != nil {
		return nil, err
	}

	report.Attempted = len(tasks)
	report.Succeeded = len(result.Succeeded)
	report.Failed = len(result.Failed)

	if report.Failed > 0 {
		d.logger.Infow("Main pass left failures, starting retry pass",
			"failed", report.Failed)
		retry, err := d.Retry(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "retry pass failed")
		}
		report.RetryAttempted = retry.RetryAttempted
		report.RetryRecovered = retry.RetryRecovered
		report.Remaining = retry.Remaining
	} else {
		d.logger.Infow("All dates succeeded on the first pass")
	}

	report.Elapsed = time.Since(start)
	if d.monitor != nil {
		d.monitor.LogMemory("final")
	}
	d.logger.Infow("Acquisition run finished",
		"run_id", report.RunID,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"recovered", report.RetryRecovered,
		"remaining", report.Remaining,
		"elapsed", report.Elapsed.Round(time.Second))
	return report, nil
}

// Retry re-runs only the dates recorded in the failure ledger through a
// narrower pool. Successful dates drop out of the record; failures get
// an updated message and timestamp. Whatever remains is persisted as the
// terminal failure file, which is written even when empty so downstream
// tooling can distinguish "retried, all clear" from "never retried".
func (d *Driver) Retry(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.NewString()}

	remaining := d.ledger.Load()
	if len(remaining) == 0 {
		d.logger.Infow("No failed jobs to retry")
		if err := ledger.WriteTerminal(d.cfg.Paths.TerminalFile, nil); err != nil {
			return nil, errors.Wrap(err, "could not write terminal failure file")
		}
		report.Elapsed = time.Since(start)
		return report, nil
	}

	keys := make([]string, 0, len(remaining))
	for key := range remaining {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	tasks := make([]pool.Task, 0, len(keys))
	for _, key := range keys {
		task, err := pool.ParseTask(key)
		if err != nil {
			d.logger.Warnw("Skipping unparsable ledger entry", "date", key, "error", err)
			continue
		}
		tasks = append(tasks, task)
	}

	d.logger.Infow("Retry pass starting",
		"run_id", report.RunID,
		"dates", len(tasks),
		"max_processes", d.cfg.Pool.RetryProcs)

	result, err := d.runPass(ctx, "retry", d.cfg.Pool.RetryProcs, tasks,
		d.RetryCommand(nil), filepath.Join(d.cfg.Paths.LogDir, "workers_retry"),
		func(o pool.Outcome) {
			key := o.Task.Key()
			if o.Succeeded() {
				delete(remaining, key)
				return
			}
			rec := remaining[key]
			if errors.IsLaunchError(o.Err) {
				rec.ErrorMessage = "Failed to launch retry worker: " + o.Err.Error()
			} else {
				rec.ErrorMessage = retryFailureMessage(o.ExitCode)
			}
			rec.LastAttempt = time.Now().UTC().Format(time.RFC3339)
			remaining[key] = rec
		})
	if err != nil {
		return nil, err
	}

	report.RetryAttempted = len(tasks)
	report.RetryRecovered = len(result.Succeeded)
	report.Remaining = len(remaining)

	if err := ledger.WriteTerminal(d.cfg.Paths.TerminalFile, remaining); err != nil {
		return nil, errors.Wrap(err, "could not write terminal failure file")
	}

	report.Elapsed = time.Since(start)
	if report.Remaining > 0 {
		d.logger.Errorw("Retry pass finished with unrecoverable dates",
			"remaining", report.Remaining,
			"terminal_file", d.cfg.Paths.TerminalFile)
	} else {
		d.logger.Infow("Retry pass recovered every failed date",
			"recovered", report.RetryRecovered)
	}
	return report, nil
}

func retryFailureMessage(exitCode int) string {
	return fmt.Sprintf("Retry failed with exit code %d", exitCode)
}

// runPass drives one bounded pool over the task list, routing every
// outcome through the single-writer record callback.
func (d *Driver) runPass(ctx context.Context, label string, bound int, tasks []pool.Task,
	command pool.WorkerCommand, logDir string, onOutcome pool.OutcomeFunc) (*pool.Result, error) {

	launcher, err := pool.NewProcessLauncher(command, logDir)
	if err != nil {
		return nil, errors.Wrapf(err, "could not prepare %s pass log directory", label)
	}

	runner := pool.NewRunner(pool.RunnerConfig{
		Label:          label,
		Bound:          bound,
		PollInterval:   d.cfg.Pool.PollInterval(),
		ReportInterval: d.cfg.Memory.CheckInterval(),
		TaskTimeout:    d.cfg.Pool.TaskTimeout(),
	}, launcher, d.monitor, d.logger)
	runner.OnOutcome(onOutcome)

	return runner.Run(ctx, tasks)
}
