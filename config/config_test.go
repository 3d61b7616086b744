package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultTestConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	return cfg
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := defaultTestConfig(t)

	assert.Equal(t, 8, cfg.Pool.MaxProcs)
	assert.Equal(t, 2, cfg.Pool.RetryProcs)
	assert.Equal(t, time.Second, cfg.Pool.PollInterval())
	assert.Equal(t, time.Duration(0), cfg.Pool.TaskTimeout())
	assert.Equal(t, 30*time.Second, cfg.Memory.CheckInterval())
	assert.Equal(t, 85.0, cfg.Memory.WarningPercent)
	assert.Equal(t, 90.0, cfg.Memory.CriticalPercent)
	assert.Equal(t, "data/failed_jobs.json", cfg.Paths.LedgerFile)
	assert.Equal(t, "ultimate_failures.json", cfg.Paths.TerminalFile)
}

func TestVariableNamesSortedFullSet(t *testing.T) {
	cfg := defaultTestConfig(t)

	names := cfg.VariableNames()
	assert.Len(t, names, 9)
	assert.Equal(t, []string{"ACRAINLSM", "LAI", "PSFC", "Q2", "T2", "TD2", "U10", "V10", "Z"}, names)
}

func TestDateRangeInclusive(t *testing.T) {
	cfg := defaultTestConfig(t)
	cfg.Dates = DatesConfig{Start: "1988-03-31", End: "1988-04-02"}

	dates, err := cfg.DateRange()
	require.NoError(t, err)
	require.Len(t, dates, 3)
	assert.Equal(t, "1988-03-31", dates[0].Format(DateLayout))
	assert.Equal(t, "1988-04-02", dates[2].Format(DateLayout))
}

func TestDateRangeSingleDay(t *testing.T) {
	cfg := defaultTestConfig(t)
	cfg.Dates = DatesConfig{Start: "1988-04-01", End: "1988-04-01"}

	dates, err := cfg.DateRange()
	require.NoError(t, err)
	assert.Len(t, dates, 1)
}

func TestDateRangeRejectsInvertedRange(t *testing.T) {
	cfg := defaultTestConfig(t)
	cfg.Dates = DatesConfig{Start: "1988-04-02", End: "1988-04-01"}

	_, err := cfg.DateRange()
	assert.Error(t, err)
}

func TestDateRangeRejectsMalformedDate(t *testing.T) {
	cfg := defaultTestConfig(t)
	cfg.Dates = DatesConfig{Start: "04/01/1988", End: "1988-04-02"}

	_, err := cfg.DateRange()
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max procs", func(c *Config) { c.Pool.MaxProcs = 0 }},
		{"zero retry procs", func(c *Config) { c.Pool.RetryProcs = 0 }},
		{"negative timeout", func(c *Config) { c.Pool.TaskTimeoutSeconds = -1 }},
		{"critical below warning", func(c *Config) { c.Memory.CriticalPercent = 50 }},
		{"no variables", func(c *Config) { c.Variables = nil }},
		{"derived unknown dep", func(c *Config) {
			c.Derived = map[string]DerivedConfig{
				"X": {DependsOn: []string{"NOPE"}, Formula: "wind_speed"},
			}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultTestConfig(t)
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestPersistAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conusflow.toml")

	cfg := defaultTestConfig(t)
	cfg.Pool.MaxProcs = 4
	cfg.Dates = DatesConfig{Start: "1990-01-01", End: "1990-12-31"}
	require.NoError(t, Persist(cfg, path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Pool.MaxProcs)
	assert.Equal(t, "1990-01-01", loaded.Dates.Start)

	// Variable names are case-sensitive dataset identifiers; the round
	// trip must not fold them (viper lowercases its own map keys).
	assert.Equal(t, cfg.VariableNames(), loaded.VariableNames())
	assert.Contains(t, loaded.Variables, "T2")
	assert.NotContains(t, loaded.Variables, "t2")
	require.Contains(t, loaded.Derived, "W")
	assert.Equal(t, []string{"U10", "V10"}, loaded.Derived["W"].DependsOn)
}

func TestLoadFromFilePreservesVariableCase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conusflow.toml")
	doc := `
[dates]
start = "1988-04-01"
end = "1988-04-02"

[variables]
T2 = true
ACRAINLSM = false

[derived.WX]
depends_on = ["T2"]
intensive = true
formula = "wind_speed"
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"ACRAINLSM", "T2"}, loaded.VariableNames())
	require.Contains(t, loaded.Derived, "WX")
	assert.Equal(t, []string{"T2"}, loaded.Derived["WX"].DependsOn)
}

func TestPersistRotatesBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conusflow.toml")
	cfg := defaultTestConfig(t)

	require.NoError(t, Persist(cfg, path))
	require.NoError(t, Persist(cfg, path))

	_, err := os.Stat(path + ".back1")
	assert.NoError(t, err, "second persist should back up first write")
}
