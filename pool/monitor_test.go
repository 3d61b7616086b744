package pool

import (
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hydrostat/conusflow/config"
)

func observedMonitor(cfg config.MemoryConfig) (*Monitor, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	return NewMonitor(cfg, zap.New(core).Sugar()), logs
}

func TestLogMemoryEmitsInfoLine(t *testing.T) {
	m, logs := observedMonitor(config.MemoryConfig{WarningPercent: 100, CriticalPercent: 100})

	m.LogMemory("initial")

	entries := logs.All()
	require.NotEmpty(t, entries)
	assert.Contains(t, entries[0].Message, "Memory stats")
}

func TestLogMemoryEscalatesWhenThresholdCrossed(t *testing.T) {
	// Any real machine uses more than 0% of its memory.
	m, logs := observedMonitor(config.MemoryConfig{WarningPercent: 0.01, CriticalPercent: 0.01})

	m.LogMemory("periodic check")

	entries := logs.All()
	require.NotEmpty(t, entries)
	assert.Equal(t, zap.ErrorLevel, entries[0].Level)
	assert.Contains(t, entries[0].Message, "CRITICAL")
}

func TestMemoryCriticalFalseWithGenerousThreshold(t *testing.T) {
	m, _ := observedMonitor(config.MemoryConfig{WarningPercent: 100, CriticalPercent: 100})
	assert.False(t, m.MemoryCritical())
}

func TestSetThresholdsAppliesLive(t *testing.T) {
	m, _ := observedMonitor(config.MemoryConfig{WarningPercent: 100, CriticalPercent: 100})
	assert.False(t, m.MemoryCritical())

	m.SetThresholds(0.01, 0.01)
	assert.True(t, m.MemoryCritical())
}

func TestLogWorkersToleratesEndedProcess(t *testing.T) {
	m, logs := observedMonitor(config.MemoryConfig{WarningPercent: 100, CriticalPercent: 100})

	task, err := ParseTask("1988-04-01")
	require.NoError(t, err)

	// A worker that exits immediately; by the time we inspect it the pid is gone.
	cmd := exec.Command("true")
	h, err := StartWorker(task, cmd, filepath.Join(t.TempDir(), "w.log"))
	require.NoError(t, err)
	waitForExit(t, h)
	time.Sleep(50 * time.Millisecond)

	m.LogWorkers([]*Handle{h})

	found := false
	for _, e := range logs.All() {
		if e.Message == "Worker process ended" {
			found = true
		}
	}
	assert.True(t, found, "an exited worker should resolve to a process-ended observation")
}

func TestLogWorkersEmptySet(t *testing.T) {
	m, logs := observedMonitor(config.MemoryConfig{WarningPercent: 100, CriticalPercent: 100})
	m.LogWorkers(nil)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "No active workers")
}
