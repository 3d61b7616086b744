// Package pool provides a bounded pool of per-date worker subprocesses.
//
// One Runner instance drives one pass: it launches at most Bound workers at
// a time, polls them for termination without blocking, and produces exactly
// one Outcome per task. Both the main pass and the retry pass use the same
// Runner, parameterized by concurrency bound and launcher.
package pool

import (
	"time"

	"github.com/hydrostat/conusflow/config"
)

// Task identifies a single calendar date to process. Immutable.
type Task struct {
	Date time.Time
}

// NewTask creates a task for the given date, normalized to midnight UTC
func NewTask(date time.Time) Task {
	y, m, d := date.Date()
	return Task{Date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseTask parses a canonical YYYY-MM-DD date key into a task
func ParseTask(key string) (Task, error) {
	date, err := time.ParseInLocation(config.DateLayout, key, time.UTC)
	if err != nil {
		return Task{}, err
	}
	return Task{Date: date}, nil
}

// Key returns the canonical YYYY-MM-DD date key
func (t Task) Key() string {
	return t.Date.Format(config.DateLayout)
}

// Compact returns the YYYYMMDD form used in file names
func (t Task) Compact() string {
	return t.Date.Format("20060102")
}

// Outcome is the terminal result of one task attempt within a pass.
type Outcome struct {
	Task     Task
	ExitCode int // 0 = success; -1 = launch failure or kill before exit
	Err      error
	Duration time.Duration
}

// Succeeded reports whether the worker produced and validated its day
func (o Outcome) Succeeded() bool {
	return o.ExitCode == 0 && o.Err == nil
}

// Result summarizes one full pass over a task list.
type Result struct {
	Outcomes       []Outcome
	Succeeded      []Task
	Failed         []Task
	LaunchFailures int
	Elapsed        time.Duration
}
