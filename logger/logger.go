// Package logger provides the shared zap logger for conusflow.
//
// The driver and the retry orchestrator log to stdout and, when a log
// directory is configured, to a timestamped run log file. Worker processes
// log to stdout only; the pool redirects their streams to per-date files.
package logger

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Logger is the global logger instance
	Logger *zap.SugaredLogger
)

func init() {
	// Safe no-op logger until Initialize is called, so early code paths
	// cannot hit a nil pointer.
	Logger = zap.NewNop().Sugar()
}

// Initialize sets up the global logger writing to stdout.
func Initialize(jsonOutput bool) error {
	core, err := buildCore(jsonOutput, zapcore.AddSync(os.Stdout))
	if err != nil {
		return err
	}
	Logger = zap.New(core).Sugar()
	return nil
}

// InitializeWithRunLog sets up the global logger teeing stdout with a
// timestamped run log file in logDir, e.g. logs/driver_20260831_154501.log.
// Returns the log file path so the final report can reference it.
func InitializeWithRunLog(jsonOutput bool, logDir, prefix string) (string, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return "", err
	}

	name := prefix + "_" + time.Now().Format("20060102_150405") + ".log"
	path := filepath.Join(logDir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", err
	}

	sink := zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout), zapcore.AddSync(f))
	core, err := buildCore(jsonOutput, sink)
	if err != nil {
		return "", err
	}
	Logger = zap.New(core).Sugar()
	return path, nil
}

func buildCore(jsonOutput bool, sink zapcore.WriteSyncer) (zapcore.Core, error) {
	if jsonOutput {
		cfg := zap.NewProductionEncoderConfig()
		return zapcore.NewCore(zapcore.NewJSONEncoder(cfg), sink, zap.InfoLevel), nil
	}

	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), sink, zap.InfoLevel), nil
}

// Cleanup flushes any buffered log entries
func Cleanup() {
	if Logger != nil {
		Logger.Sync()
	}
}

// Infow logs an info message with structured fields
func Infow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Infow(msg, keysAndValues...)
	}
}

// Warnw logs a warning message with structured fields
func Warnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Warnw(msg, keysAndValues...)
	}
}

// Errorw logs an error message with structured fields
func Errorw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Errorw(msg, keysAndValues...)
	}
}

// Infof logs a formatted info message
func Infof(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Infof(format, args...)
	}
}
