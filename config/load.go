package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/hydrostat/conusflow/errors"
)

// ConfigFileName is the project config file searched for by Load
const ConfigFileName = "conusflow.toml"

// Load reads the conusflow configuration: defaults, then the nearest
// conusflow.toml walking up from the working directory, then CONUSFLOW_*
// environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("CONUSFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if path := findProjectConfig(); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	}

	return unmarshal(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	return unmarshal(v)
}

// LoadWithViper loads configuration using a provided Viper instance.
// Useful for tests that want to set values directly.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := loadVariableTables(&cfg, v.ConfigFileUsed()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadVariableTables fills cfg.Variables and cfg.Derived, bypassing viper.
// Viper folds map keys to lower case, which would corrupt the case-sensitive
// CONUS404 variable names end to end (tool arguments, QC rule matching, the
// variables_to_retry list in ledger records). The two tables are therefore
// decoded straight from the TOML file when one is in use, and fall back to
// the built-in defaults otherwise.
func loadVariableTables(cfg *Config, configFile string) error {
	cfg.Variables = DefaultVariables()
	cfg.Derived = DefaultDerived()

	if configFile == "" {
		return nil
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return errors.Wrapf(err, "failed to re-read config file %s", configFile)
	}

	var doc struct {
		Variables map[string]bool          `toml:"variables"`
		Derived   map[string]DerivedConfig `toml:"derived"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return errors.Wrapf(err, "failed to parse variable tables from %s", configFile)
	}

	if len(doc.Variables) > 0 {
		cfg.Variables = doc.Variables
	}
	if len(doc.Derived) > 0 {
		cfg.Derived = doc.Derived
	}
	return nil
}

// findProjectConfig searches for conusflow.toml by walking up the directory
// tree. Returns the first match or empty string.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		path := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(path); err == nil {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
