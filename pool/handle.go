package pool

import (
	"os"
	"os/exec"
	"time"

	"github.com/hydrostat/conusflow/errors"
)

// Handle represents one running worker subprocess. It is owned exclusively
// by the Runner that launched it and is discarded the moment its exit status
// is observed.
type Handle struct {
	Task      Task
	PID       int
	LogPath   string
	StartedAt time.Time

	cmd      *exec.Cmd
	logFile  *os.File
	done     chan struct{}
	exitCode int
	waitErr  error

	// set by the runner when it kills an overdue worker; read only after done
	timedOut bool
}

// StartWorker launches cmd with stdout and stderr redirected to logPath and
// returns a pollable handle. A goroutine reaps the process so the runner can
// observe termination without ever blocking on a specific child.
func StartWorker(task Task, cmd *exec.Cmd, logPath string) (*Handle, error) {
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrLaunch, "cannot create worker log %s: %v", logPath, err)
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, errors.Wrapf(errors.ErrLaunch, "date %s: %v", task.Key(), err)
	}

	h := &Handle{
		Task:      task,
		PID:       cmd.Process.Pid,
		LogPath:   logPath,
		StartedAt: time.Now(),
		cmd:       cmd,
		logFile:   logFile,
		done:      make(chan struct{}),
	}

	go func() {
		err := cmd.Wait()
		h.exitCode = exitCodeFrom(cmd, err)
		h.waitErr = err
		logFile.Close()
		close(h.done)
	}()

	return h, nil
}

// Poll reports, without blocking, whether the worker has terminated and with
// which exit code. The exit code is only meaningful when exited is true.
func (h *Handle) Poll() (exited bool, exitCode int) {
	select {
	case <-h.done:
		return true, h.exitCode
	default:
		return false, 0
	}
}

// Kill forcibly terminates the worker. The reaper goroutine still observes
// the resulting exit, so the runner picks it up on a later poll cycle.
func (h *Handle) Kill() error {
	if h.cmd == nil || h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}

// Runtime returns how long the worker has been running
func (h *Handle) Runtime() time.Duration {
	return time.Since(h.StartedAt)
}

func exitCodeFrom(cmd *exec.Cmd, err error) int {
	if err == nil {
		return 0
	}
	if cmd.ProcessState != nil {
		if code := cmd.ProcessState.ExitCode(); code >= 0 {
			return code
		}
	}
	// Killed by signal or wait failure: report -1 like a launch failure
	return -1
}
