package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeDoesNotPanicBeforeOrAfter(t *testing.T) {
	// Package init installs a no-op logger; calls before Initialize are safe.
	Infow("before initialize", "k", "v")

	require.NoError(t, Initialize(false))
	Infow("after initialize", "k", "v")
	Cleanup()
}

func TestInitializeWithRunLogCreatesFile(t *testing.T) {
	dir := t.TempDir()
	path, err := InitializeWithRunLog(false, dir, "driver")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(filepath.Base(path), "driver_"))
	assert.True(t, strings.HasSuffix(path, ".log"))

	Infow("run started", "dates", 3)
	Cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "run started")
}
