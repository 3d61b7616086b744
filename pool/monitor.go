package pool

import (
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/hydrostat/conusflow/config"
)

const bytesPerMB = 1024 * 1024

// Monitor samples system and per-worker memory on behalf of the runner.
// It is purely observational: crossing a threshold logs a warning or a
// critical alert but never pauses launches or kills workers.
type Monitor struct {
	mu              sync.RWMutex
	warningPercent  float64
	criticalPercent float64
	logger          *zap.SugaredLogger
}

// NewMonitor creates a monitor with thresholds from the memory config
func NewMonitor(cfg config.MemoryConfig, logger *zap.SugaredLogger) *Monitor {
	return &Monitor{
		warningPercent:  cfg.WarningPercent,
		criticalPercent: cfg.CriticalPercent,
		logger:          logger,
	}
}

// SetThresholds updates the warning/critical thresholds. Wired to the config
// watcher so threshold changes apply mid-run.
func (m *Monitor) SetThresholds(warningPercent, criticalPercent float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warningPercent = warningPercent
	m.criticalPercent = criticalPercent
}

// LogMemory samples system memory and emits an informational line, escalating
// to warning or critical when the configured thresholds are crossed.
func (m *Monitor) LogMemory(context string) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		m.logger.Warnw("Failed to sample system memory", "error", err)
		return
	}

	m.mu.RLock()
	warning, critical := m.warningPercent, m.criticalPercent
	m.mu.RUnlock()

	fields := []interface{}{
		"context", context,
		"available_mb", float64(vm.Available) / bytesPerMB,
		"total_mb", float64(vm.Total) / bytesPerMB,
		"used_percent", vm.UsedPercent,
	}

	switch {
	case vm.UsedPercent > critical:
		m.logger.Errorw("CRITICAL: memory usage above critical threshold", append(fields, "threshold", critical)...)
	case vm.UsedPercent > warning:
		m.logger.Warnw("Memory usage above warning threshold", append(fields, "threshold", warning)...)
	default:
		m.logger.Infow("Memory stats", fields...)
	}
}

// MemoryCritical reports whether system memory is currently above the
// critical threshold. The combine batch job refuses to start new year groups
// while this holds.
func (m *Monitor) MemoryCritical() bool {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return false // cannot sample, assume OK
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return vm.UsedPercent > m.criticalPercent
}

// LogWorkers reports runtime, resident memory, and status for every active
// worker. A worker that exited between listing and querying resolves to a
// "process ended" observation rather than an error.
func (m *Monitor) LogWorkers(handles []*Handle) {
	if len(handles) == 0 {
		m.logger.Infow("No active workers")
		return
	}

	m.logger.Infow("Active workers", "count", len(handles))
	for _, h := range handles {
		runtime := h.Runtime().Round(time.Second)

		proc, err := process.NewProcess(int32(h.PID))
		if err != nil {
			m.logger.Infow("Worker process ended",
				"pid", h.PID, "date", h.Task.Key(), "runtime", runtime)
			continue
		}

		memInfo, err := proc.MemoryInfo()
		if err != nil {
			m.logger.Infow("Worker process ended",
				"pid", h.PID, "date", h.Task.Key(), "runtime", runtime)
			continue
		}

		status := "unknown"
		if states, err := proc.Status(); err == nil && len(states) > 0 {
			status = strings.Join(states, ",")
		}

		m.logger.Infow("Worker stats",
			"pid", h.PID,
			"date", h.Task.Key(),
			"runtime", runtime,
			"rss_mb", float64(memInfo.RSS)/bytesPerMB,
			"status", status)
	}
}
