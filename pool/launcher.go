package pool

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/hydrostat/conusflow/errors"
)

// WorkerCommand builds the command line that processes one date.
type WorkerCommand func(task Task) (bin string, args []string)

// ProcessLauncher launches one worker subprocess per task with its output
// redirected to a dedicated per-date log file. The subprocess boundary is
// deliberate: a worker that blows up its memory or wedges cannot corrupt
// the coordinator or its siblings.
type ProcessLauncher struct {
	command WorkerCommand
	logDir  string
	env     []string
}

// NewProcessLauncher creates a launcher writing worker logs into logDir
func NewProcessLauncher(command WorkerCommand, logDir string) (*ProcessLauncher, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create worker log directory %s", logDir)
	}
	return &ProcessLauncher{
		command: command,
		logDir:  logDir,
		env:     os.Environ(),
	}, nil
}

// Launch starts the worker for one task.
//
// The command is deliberately NOT bound to ctx: the coordinator decides when
// to kill workers (timeout, cancellation) via Handle.Kill rather than having
// context teardown reap them behind the runner's back.
func (l *ProcessLauncher) Launch(_ context.Context, task Task) (*Handle, error) {
	bin, args := l.command(task)

	cmd := exec.Command(bin, args...)
	cmd.Env = l.env

	logPath := filepath.Join(l.logDir, "download_"+task.Compact()+".log")
	return StartWorker(task, cmd, logPath)
}
