// Package ledger persists the failure state shared between the main pass
// and the retry pass as a single JSON document keyed by date.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/hydrostat/conusflow/errors"
)

// Record is one failed date awaiting retry. The variable list is always the
// full configured set: the system does not track partial per-variable failure.
// LastAttempt holds an RFC 3339 timestamp, the on-disk contract shared with
// downstream tooling.
type Record struct {
	Date             string   `json:"date"`
	VariablesToRetry []string `json:"variables_to_retry"`
	ErrorMessage     string   `json:"error_message"`
	LastAttempt      string   `json:"last_attempt"`
}

// Ledger owns the failure document at one path. All writers run on a single
// coordinator goroutine per pass, and passes run sequentially, so reads and
// read-modify-writes never race.
type Ledger struct {
	path      string
	variables []string
	logger    *zap.SugaredLogger
}

// New creates a ledger at path. variables is the full configured variable
// set stamped into every record.
func New(path string, variables []string, logger *zap.SugaredLogger) *Ledger {
	return &Ledger{path: path, variables: variables, logger: logger}
}

// Path returns the ledger file path
func (l *Ledger) Path() string {
	return l.path
}

// Load returns the current failure mapping. An absent or unparsable ledger
// loads as an empty mapping: corruption is logged, never propagated.
func (l *Ledger) Load() map[string]Record {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			l.logger.Warnw("Could not read failure ledger, treating as empty",
				"path", l.path, "error", err)
		}
		return map[string]Record{}
	}

	var records map[string]Record
	if err := json.Unmarshal(data, &records); err != nil {
		l.logger.Warnw("Failure ledger is corrupt, treating as empty",
			"path", l.path, "error", err)
		return map[string]Record{}
	}
	if records == nil {
		records = map[string]Record{}
	}
	return records
}

// Clear resets the ledger to an empty mapping. Called at the start of every
// fresh end-to-end run: the ledger is scoped to one run, not cumulative.
func (l *Ledger) Clear() error {
	return l.Write(map[string]Record{})
}

// RecordFailure appends or overwrites the record for a date that exited
// nonzero. Last write wins; recording the same date twice never duplicates.
func (l *Ledger) RecordFailure(date string, exitCode int) error {
	return l.record(date, fmt.Sprintf("Worker failed with exit code %d", exitCode))
}

// RecordLaunchFailure records a date whose worker never started. Counting
// these as retryable failures keeps them visible to the retry pass instead
// of silently dropping them.
func (l *Ledger) RecordLaunchFailure(date string, launchErr error) error {
	return l.record(date, fmt.Sprintf("Failed to launch worker: %v", launchErr))
}

func (l *Ledger) record(date, message string) error {
	records := l.Load()
	records[date] = Record{
		Date:             date,
		VariablesToRetry: l.variables,
		ErrorMessage:     message,
		LastAttempt:      time.Now().UTC().Format(time.RFC3339),
	}
	if err := l.Write(records); err != nil {
		return errors.Wrapf(err, "failed to record failure for %s", date)
	}
	l.logger.Infow("Recorded failure to ledger", "date", date, "path", l.path)
	return nil
}

// Write persists the full mapping, replacing the previous document. The
// write goes through a temp file and rename so readers never observe a
// half-written ledger.
func (l *Ledger) Write(records map[string]Record) error {
	return writeDocument(l.path, records)
}

// WriteTerminal persists records as the terminal failure set at path. An
// empty mapping is still written: the empty file is the success signal.
func WriteTerminal(path string, records map[string]Record) error {
	return writeDocument(path, records)
}

func writeDocument(path string, records map[string]Record) error {
	if records == nil {
		records = map[string]Record{}
	}

	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal failure records")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create ledger directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return errors.Wrap(err, "failed to create ledger temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "failed to write ledger temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "failed to close ledger temp file")
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "failed to replace ledger at %s", path)
	}
	return nil
}
