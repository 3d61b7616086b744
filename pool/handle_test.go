package pool

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hydrostat/conusflow/errors"
)

func waitForExit(t *testing.T, h *Handle) int {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if exited, code := h.Poll(); exited {
			return code
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("worker did not exit in time")
	return 0
}

func TestStartWorkerRedirectsOutputAndReportsExitCode(t *testing.T) {
	dir := t.TempDir()
	task, err := ParseTask("1988-04-01")
	require.NoError(t, err)

	logPath := filepath.Join(dir, "download_19880401.log")
	cmd := exec.Command("sh", "-c", "echo processing 1988-04-01; exit 3")
	h, err := StartWorker(task, cmd, logPath)
	require.NoError(t, err)

	code := waitForExit(t, h)
	assert.Equal(t, 3, code)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "processing 1988-04-01")
}

func TestStartWorkerMissingBinaryIsLaunchError(t *testing.T) {
	dir := t.TempDir()
	task, err := ParseTask("1988-04-01")
	require.NoError(t, err)

	cmd := exec.Command(filepath.Join(dir, "does-not-exist"))
	_, err = StartWorker(task, cmd, filepath.Join(dir, "w.log"))
	require.Error(t, err)
	assert.True(t, errors.IsLaunchError(err))
}

func TestPollDoesNotBlockWhileRunning(t *testing.T) {
	dir := t.TempDir()
	task, err := ParseTask("1988-04-01")
	require.NoError(t, err)

	cmd := exec.Command("sleep", "10")
	h, err := StartWorker(task, cmd, filepath.Join(dir, "w.log"))
	require.NoError(t, err)
	defer h.Kill()

	start := time.Now()
	exited, _ := h.Poll()
	assert.False(t, exited)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

// subprocessLauncher launches real processes; used for timeout coverage
// where Kill must actually terminate something.
type subprocessLauncher struct {
	dir     string
	command []string
}

func (l *subprocessLauncher) Launch(_ context.Context, task Task) (*Handle, error) {
	cmd := exec.Command(l.command[0], l.command[1:]...)
	return StartWorker(task, cmd, filepath.Join(l.dir, "download_"+task.Compact()+".log"))
}

func TestRunnerKillsOverdueWorker(t *testing.T) {
	launcher := &subprocessLauncher{dir: t.TempDir(), command: []string{"sleep", "60"}}
	cfg := RunnerConfig{
		Label:        "test",
		Bound:        1,
		PollInterval: 10 * time.Millisecond,
		TaskTimeout:  100 * time.Millisecond,
	}
	runner := NewRunner(cfg, launcher, nil, zaptest.NewLogger(t).Sugar())

	result, err := runner.Run(context.Background(), someTasks(t, 1))
	require.NoError(t, err)

	require.Len(t, result.Failed, 1)
	require.Len(t, result.Outcomes, 1)
	assert.True(t, errors.IsTimeoutError(result.Outcomes[0].Err))
	assert.Equal(t, -1, result.Outcomes[0].ExitCode)
}
