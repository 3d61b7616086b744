package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Date range defaults (short range; real runs override in conusflow.toml)
	v.SetDefault("dates.start", "1988-03-31")
	v.SetDefault("dates.end", "1988-04-17")

	// Pool defaults
	v.SetDefault("pool.max_procs", 8)
	v.SetDefault("pool.retry_procs", 2)
	v.SetDefault("pool.poll_interval_seconds", 1)
	v.SetDefault("pool.task_timeout_seconds", 0) // no per-task deadline unless opted in

	// Memory monitor defaults
	v.SetDefault("memory.check_interval_seconds", 30)
	v.SetDefault("memory.warning_percent", 85.0)
	v.SetDefault("memory.critical_percent", 90.0)

	// Path defaults
	v.SetDefault("paths.data_dir", "data")
	v.SetDefault("paths.log_dir", "logs")
	v.SetDefault("paths.ledger_file", "data/failed_jobs.json")
	v.SetDefault("paths.terminal_file", "ultimate_failures.json")

	// Dataset defaults
	v.SetDefault("dataset.stac_api_url", "https://planetarycomputer.microsoft.com/api/stac/v1")
	v.SetDefault("dataset.collection", "conus404")
	v.SetDefault("dataset.asset", "zarr-abfs")
	v.SetDefault("dataset.requests_per_minute", 30)

	// Combine defaults
	v.SetDefault("combine.batch_size", 30)
	v.SetDefault("combine.output_file", "data/processed/conus404_daily_combined.nc")

	// The variable and derived tables are NOT registered here: viper folds
	// map keys to lower case, which would corrupt the case-sensitive
	// CONUS404 variable names (T2 -> t2). They are decoded straight from
	// the TOML file instead; see loadVariableTables.
}

// DefaultVariables is the variable aggregation map:
// true = intensive (average), false = extensive (sum).
func DefaultVariables() map[string]bool {
	return map[string]bool{
		"T2":        true,  // temperature
		"Q2":        true,  // specific humidity
		"TD2":       true,  // dewpoint
		"PSFC":      true,  // surface pressure
		"ACRAINLSM": false, // accumulated rain
		"LAI":       true,  // leaf area index
		"U10":       true,  // u wind component
		"V10":       true,  // v wind component
		"Z":         true,  // geopotential height
	}
}

// DefaultDerived is the default derived variable set: wind speed from the
// two wind components.
func DefaultDerived() map[string]DerivedConfig {
	return map[string]DerivedConfig{
		"W": {
			DependsOn: []string{"U10", "V10"},
			Intensive: true,
			Formula:   "wind_speed",
		},
	}
}
