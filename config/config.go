package config

import (
	"sort"
	"time"

	"github.com/hydrostat/conusflow/errors"
)

// DateLayout is the canonical date key format used in the ledger, worker
// arguments, and file names.
const DateLayout = "2006-01-02"

// Config is the complete conusflow configuration. It is loaded once and
// passed explicitly into each component constructor; components never read
// ambient global state.
type Config struct {
	Dates   DatesConfig   `mapstructure:"dates" toml:"dates"`
	Pool    PoolConfig    `mapstructure:"pool" toml:"pool"`
	Memory  MemoryConfig  `mapstructure:"memory" toml:"memory"`
	Paths   PathsConfig   `mapstructure:"paths" toml:"paths"`
	Dataset DatasetConfig `mapstructure:"dataset" toml:"dataset"`
	Combine CombineConfig `mapstructure:"combine" toml:"combine"`

	// Variables maps variable name -> intensive flag.
	// Intensive variables are averaged over the day, extensive ones summed.
	Variables map[string]bool `mapstructure:"variables" toml:"variables"`

	// Derived variables computed from aggregated ones inside the worker.
	Derived map[string]DerivedConfig `mapstructure:"derived" toml:"derived"`
}

// DatesConfig bounds the inclusive date range for a run
type DatesConfig struct {
	Start string `mapstructure:"start" toml:"start"` // YYYY-MM-DD
	End   string `mapstructure:"end" toml:"end"`     // YYYY-MM-DD
}

// PoolConfig configures the bounded process pool
type PoolConfig struct {
	MaxProcs            int `mapstructure:"max_procs" toml:"max_procs"`                         // concurrency bound for the main pass (default: 8)
	RetryProcs          int `mapstructure:"retry_procs" toml:"retry_procs"`                     // concurrency bound for the retry pass (default: 2)
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds" toml:"poll_interval_seconds"` // sleep between poll cycles (default: 1)
	TaskTimeoutSeconds  int `mapstructure:"task_timeout_seconds" toml:"task_timeout_seconds"`   // per-worker deadline, 0 = no timeout (default: 0)
}

// MemoryConfig configures the resource monitor thresholds
type MemoryConfig struct {
	CheckIntervalSeconds int     `mapstructure:"check_interval_seconds" toml:"check_interval_seconds"` // seconds between memory samples (default: 30)
	WarningPercent       float64 `mapstructure:"warning_percent" toml:"warning_percent"`               // default: 85
	CriticalPercent      float64 `mapstructure:"critical_percent" toml:"critical_percent"`             // default: 90
}

// PathsConfig configures where data, logs, and failure state live
type PathsConfig struct {
	DataDir      string `mapstructure:"data_dir" toml:"data_dir"`           // default: data
	LogDir       string `mapstructure:"log_dir" toml:"log_dir"`             // default: logs
	LedgerFile   string `mapstructure:"ledger_file" toml:"ledger_file"`     // default: data/failed_jobs.json
	TerminalFile string `mapstructure:"terminal_file" toml:"terminal_file"` // default: ultimate_failures.json
}

// DatasetConfig configures STAC asset resolution and the aggregation tool
type DatasetConfig struct {
	StacAPIURL        string `mapstructure:"stac_api_url" toml:"stac_api_url"`               // default: Planetary Computer STAC root
	Collection        string `mapstructure:"collection" toml:"collection"`                   // default: conus404
	Asset             string `mapstructure:"asset" toml:"asset"`                             // default: zarr-abfs
	RequestsPerMinute int    `mapstructure:"requests_per_minute" toml:"requests_per_minute"` // STAC request rate limit (default: 30)

	// ToolPath is the external aggregation tool invoked by the worker to do
	// the Zarr slicing and NetCDF serialization. Empty means the worker
	// fails fast with a configuration error.
	ToolPath string `mapstructure:"tool_path" toml:"tool_path"`
}

// CombineConfig configures the multi-year recombination batch job
type CombineConfig struct {
	BatchSize  int    `mapstructure:"batch_size" toml:"batch_size"`   // daily files per concat batch (default: 30)
	OutputFile string `mapstructure:"output_file" toml:"output_file"` // default: data/processed/conus404_daily_combined.nc
	ToolPath   string `mapstructure:"tool_path" toml:"tool_path"`     // external NetCDF concat tool
}

// DerivedConfig describes a variable computed from aggregated variables.
// Formula names the computation the worker knows how to perform.
type DerivedConfig struct {
	DependsOn []string `mapstructure:"depends_on" toml:"depends_on"`
	Intensive bool     `mapstructure:"intensive" toml:"intensive"`
	Formula   string   `mapstructure:"formula" toml:"formula"` // e.g. "wind_speed"
}

// VariableNames returns the configured variable names in sorted order.
// This is the "full variable set" recorded for every ledger entry.
func (c *Config) VariableNames() []string {
	names := make([]string, 0, len(c.Variables))
	for name := range c.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DateRange expands the configured inclusive range into one Task date per day.
func (c *Config) DateRange() ([]time.Time, error) {
	start, err := time.ParseInLocation(DateLayout, c.Dates.Start, time.UTC)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid dates.start %q", c.Dates.Start)
	}
	end, err := time.ParseInLocation(DateLayout, c.Dates.End, time.UTC)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid dates.end %q", c.Dates.End)
	}
	if end.Before(start) {
		return nil, errors.Newf("dates.end %s is before dates.start %s", c.Dates.End, c.Dates.Start)
	}

	var dates []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates, nil
}

// PollInterval returns the pool poll interval as a duration
func (c *PoolConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// TaskTimeout returns the per-task deadline, 0 meaning disabled
func (c *PoolConfig) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutSeconds) * time.Second
}

// CheckInterval returns the memory sampling interval as a duration
func (c *MemoryConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}
