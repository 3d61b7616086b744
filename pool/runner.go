package pool

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hydrostat/conusflow/errors"
)

// Launcher starts a worker subprocess for one task.
type Launcher interface {
	Launch(ctx context.Context, task Task) (*Handle, error)
}

// OutcomeFunc observes each terminal task outcome as it is classified.
// The ledger hooks in here; the callback runs on the runner goroutine, so
// single-writer semantics for the ledger file hold by construction.
type OutcomeFunc func(Outcome)

// RunnerConfig parameterizes one pass.
type RunnerConfig struct {
	Label          string        // "main" or "retry", for log lines
	Bound          int           // max simultaneously active workers
	PollInterval   time.Duration // sleep between poll cycles
	ReportInterval time.Duration // cadence of memory/progress reports, 0 disables
	TaskTimeout    time.Duration // per-worker deadline, 0 = never kill
}

// Runner drains an ordered task list through a bounded set of worker
// subprocesses. Launch order follows input order; completion order is
// whatever the operating system delivers.
type Runner struct {
	cfg       RunnerConfig
	launcher  Launcher
	monitor   *Monitor // may be nil
	logger    *zap.SugaredLogger
	onOutcome OutcomeFunc // may be nil
}

// NewRunner creates a runner for one pass
func NewRunner(cfg RunnerConfig, launcher Launcher, monitor *Monitor, logger *zap.SugaredLogger) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Runner{
		cfg:      cfg,
		launcher: launcher,
		monitor:  monitor,
		logger:   logger,
	}
}

// OnOutcome registers the outcome observer. Must be called before Run.
func (r *Runner) OnOutcome(fn OutcomeFunc) {
	r.onOutcome = fn
}

// Run executes all tasks to completion and returns the pass result.
// Guarantees: at most Bound workers active at any instant; each task
// launched at most once; exactly one Outcome per task, launch failures
// included. Returns early only when ctx is cancelled, after killing any
// still-active workers.
func (r *Runner) Run(ctx context.Context, tasks []Task) (*Result, error) {
	start := time.Now()
	result := &Result{}

	var active []*Handle
	next := 0
	lastReport := start

	r.logger.Infow("Pass starting",
		"pass", r.cfg.Label,
		"tasks", len(tasks),
		"bound", r.cfg.Bound)

	for next < len(tasks) || len(active) > 0 {
		select {
		case <-ctx.Done():
			r.abandonActive(active, result)
			result.Elapsed = time.Since(start)
			return result, errors.Wrapf(ctx.Err(), "%s pass cancelled", r.cfg.Label)
		default:
		}

		active = r.reapFinished(active, result)

		if r.cfg.TaskTimeout > 0 {
			r.killOverdue(active)
		}

		for len(active) < r.cfg.Bound && next < len(tasks) {
			task := tasks[next]
			next++

			r.logger.Infow("Launching worker",
				"pass", r.cfg.Label,
				"date", task.Key(),
				"position", next,
				"total", len(tasks))

			handle, err := r.launcher.Launch(ctx, task)
			if err != nil {
				// A worker that never started still yields an Outcome, so the
				// ledger sees it and the retry pass can pick it up.
				r.logger.Errorw("Failed to launch worker",
					"pass", r.cfg.Label,
					"date", task.Key(),
					"error", err)
				result.LaunchFailures++
				r.record(result, Outcome{Task: task, ExitCode: -1, Err: err})
				continue
			}

			r.logger.Infow("Worker launched",
				"pass", r.cfg.Label,
				"date", task.Key(),
				"pid", handle.PID,
				"log", handle.LogPath)
			active = append(active, handle)
		}

		if r.cfg.ReportInterval > 0 && time.Since(lastReport) >= r.cfg.ReportInterval {
			r.report(tasks, active, result, start)
			lastReport = time.Now()
		}

		if next >= len(tasks) && len(active) == 0 {
			break
		}

		select {
		case <-ctx.Done():
		case <-time.After(r.cfg.PollInterval):
		}
	}

	result.Elapsed = time.Since(start)
	r.logger.Infow("Pass complete",
		"pass", r.cfg.Label,
		"succeeded", len(result.Succeeded),
		"failed", len(result.Failed),
		"launch_failures", result.LaunchFailures,
		"elapsed", result.Elapsed.Round(time.Millisecond))

	return result, nil
}

// reapFinished polls every active handle and classifies the ones that exited
func (r *Runner) reapFinished(active []*Handle, result *Result) []*Handle {
	remaining := active[:0]
	for _, h := range active {
		exited, code := h.Poll()
		if !exited {
			remaining = append(remaining, h)
			continue
		}

		outcome := Outcome{Task: h.Task, ExitCode: code, Duration: h.Runtime()}
		if h.timedOut {
			outcome.Err = errors.Wrapf(errors.ErrTimeout, "date %s after %s", h.Task.Key(), r.cfg.TaskTimeout)
		}

		if outcome.Succeeded() {
			r.logger.Infow("Worker succeeded",
				"pass", r.cfg.Label,
				"date", h.Task.Key(),
				"pid", h.PID,
				"duration", outcome.Duration.Round(time.Millisecond))
		} else {
			r.logger.Warnw("Worker failed",
				"pass", r.cfg.Label,
				"date", h.Task.Key(),
				"pid", h.PID,
				"exit_code", code,
				"duration", outcome.Duration.Round(time.Millisecond))
		}
		r.record(result, outcome)
	}
	return remaining
}

// killOverdue forcibly terminates workers that ran past the deadline. Their
// exits are reaped on a later poll cycle like any other termination.
func (r *Runner) killOverdue(active []*Handle) {
	for _, h := range active {
		if h.timedOut || h.Runtime() <= r.cfg.TaskTimeout {
			continue
		}
		r.logger.Warnw("Worker exceeded deadline, killing",
			"pass", r.cfg.Label,
			"date", h.Task.Key(),
			"pid", h.PID,
			"runtime", h.Runtime().Round(time.Second),
			"timeout", r.cfg.TaskTimeout)
		h.timedOut = true
		if err := h.Kill(); err != nil {
			r.logger.Errorw("Failed to kill overdue worker",
				"date", h.Task.Key(),
				"pid", h.PID,
				"error", err)
		}
	}
}

// abandonActive records cancellation outcomes for workers still running when
// the pass context is cancelled, after attempting to kill them.
func (r *Runner) abandonActive(active []*Handle, result *Result) {
	for _, h := range active {
		if err := h.Kill(); err != nil {
			r.logger.Warnw("Failed to kill worker during cancellation",
				"date", h.Task.Key(), "pid", h.PID, "error", err)
		}
		r.record(result, Outcome{
			Task:     h.Task,
			ExitCode: -1,
			Err:      errors.Newf("pass cancelled while date %s was running", h.Task.Key()),
			Duration: h.Runtime(),
		})
	}
}

func (r *Runner) record(result *Result, outcome Outcome) {
	result.Outcomes = append(result.Outcomes, outcome)
	if outcome.Succeeded() {
		result.Succeeded = append(result.Succeeded, outcome.Task)
	} else {
		result.Failed = append(result.Failed, outcome.Task)
	}
	if r.onOutcome != nil {
		r.onOutcome(outcome)
	}
}

func (r *Runner) report(tasks []Task, active []*Handle, result *Result, start time.Time) {
	if r.monitor != nil {
		r.monitor.LogMemory("periodic check")
		r.monitor.LogWorkers(active)
	}

	done := len(result.Succeeded) + len(result.Failed)
	r.logger.Infow("Progress",
		"pass", r.cfg.Label,
		"completed", len(result.Succeeded),
		"failed", len(result.Failed),
		"active", len(active),
		"pending", len(tasks)-done-len(active),
		"elapsed", time.Since(start).Round(time.Second))
}
