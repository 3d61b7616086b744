package config

import "github.com/hydrostat/conusflow/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Pool.MaxProcs <= 0 {
		return errors.Newf("pool.max_procs must be > 0, got %d", c.Pool.MaxProcs)
	}
	if c.Pool.RetryProcs <= 0 {
		return errors.Newf("pool.retry_procs must be > 0, got %d", c.Pool.RetryProcs)
	}
	if c.Pool.PollIntervalSeconds <= 0 {
		return errors.Newf("pool.poll_interval_seconds must be > 0, got %d", c.Pool.PollIntervalSeconds)
	}

	// Task timeout: 0 = disabled, negative = invalid
	if c.Pool.TaskTimeoutSeconds < 0 {
		return errors.Newf("pool.task_timeout_seconds must be >= 0, got %d", c.Pool.TaskTimeoutSeconds)
	}

	if c.Memory.CheckIntervalSeconds <= 0 {
		return errors.Newf("memory.check_interval_seconds must be > 0, got %d", c.Memory.CheckIntervalSeconds)
	}
	if c.Memory.WarningPercent <= 0 || c.Memory.WarningPercent > 100 {
		return errors.Newf("memory.warning_percent must be in (0, 100], got %.1f", c.Memory.WarningPercent)
	}
	if c.Memory.CriticalPercent <= 0 || c.Memory.CriticalPercent > 100 {
		return errors.Newf("memory.critical_percent must be in (0, 100], got %.1f", c.Memory.CriticalPercent)
	}
	if c.Memory.CriticalPercent < c.Memory.WarningPercent {
		return errors.Newf("memory.critical_percent (%.1f) must be >= memory.warning_percent (%.1f)",
			c.Memory.CriticalPercent, c.Memory.WarningPercent)
	}

	if len(c.Variables) == 0 {
		return errors.New("variables map cannot be empty")
	}

	for name, d := range c.Derived {
		if len(d.DependsOn) == 0 {
			return errors.Newf("derived.%s.depends_on cannot be empty", name)
		}
		if d.Formula == "" {
			return errors.Newf("derived.%s.formula cannot be empty", name)
		}
		for _, dep := range d.DependsOn {
			if _, ok := c.Variables[dep]; !ok {
				return errors.Newf("derived.%s depends on unknown variable %q", name, dep)
			}
		}
	}

	if c.Combine.BatchSize <= 0 {
		return errors.Newf("combine.batch_size must be > 0, got %d", c.Combine.BatchSize)
	}

	// Dates are validated lazily by DateRange so that commands which do not
	// touch the range (config show, combine) still work with a partial file.
	return nil
}
