// Package combine folds the per-day output files into a single archive.
// Daily files are concatenated in year groups of bounded batch size so
// the external concatenation tool never holds more than one batch of
// days in memory at a time.
package combine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hydrostat/conusflow/config"
	"github.com/hydrostat/conusflow/errors"
	"github.com/hydrostat/conusflow/pool"
)

const (
	dailyPattern = "conus404_daily_*.nc"
	dailyPrefix  = "conus404_daily_"
)

// ToolRunner executes the external concatenation tool
type ToolRunner func(ctx context.Context, bin string, args []string) error

// Combiner concatenates daily files into the combined archive
type Combiner struct {
	cfg     *config.Config
	monitor *pool.Monitor // may be nil
	logger  *zap.SugaredLogger
	runner  ToolRunner
}

// New creates a combiner from configuration
func New(cfg *config.Config, monitor *pool.Monitor, logger *zap.SugaredLogger) *Combiner {
	return &Combiner{
		cfg:     cfg,
		monitor: monitor,
		logger:  logger,
		runner:  runTool,
	}
}

// SetRunner replaces the tool runner, for tests
func (c *Combiner) SetRunner(runner ToolRunner) {
	c.runner = runner
}

// Run combines every daily file found under the data directory into the
// configured output file. Years are processed one at a time, each in
// batches of at most Combine.BatchSize days, and each year is checked
// against the memory monitor before its batches start.
func (c *Combiner) Run(ctx context.Context) error {
	if c.cfg.Combine.ToolPath == "" {
		return errors.New("combine.tool_path is not configured")
	}

	dailyDir := filepath.Join(c.cfg.Paths.DataDir, "unprocessed", "daily")
	files, err := filepath.Glob(filepath.Join(dailyDir, dailyPattern))
	if err != nil {
		return errors.Wrap(err, "could not scan daily files")
	}
	if len(files) == 0 {
		return errors.Wrapf(errors.ErrNoData, "no daily files under %s", dailyDir)
	}
	sort.Strings(files)

	byYear := c.groupByYear(files)
	years := make([]int, 0, len(byYear))
	for year := range byYear {
		years = append(years, year)
	}
	sort.Ints(years)

	outputDir := filepath.Dir(c.cfg.Combine.OutputFile)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return errors.Wrap(err, "could not create output directory")
	}

	c.logger.Infow("Combine starting",
		"daily_files", len(files),
		"years", len(years),
		"batch_size", c.cfg.Combine.BatchSize)

	yearFiles := make([]string, 0, len(years))
	for _, year := range years {
		if c.monitor != nil && c.monitor.MemoryCritical() {
			return errors.Newf("memory usage critical, stopping before year %d", year)
		}
		yearOut := filepath.Join(outputDir, fmt.Sprintf("conus404_year_%d.nc", year))
		if err := c.combineYear(ctx, year, byYear[year], yearOut); err != nil {
			return errors.Wrapf(err, "year %d", year)
		}
		yearFiles = append(yearFiles, yearOut)
	}

	if len(yearFiles) == 1 {
		if err := os.Rename(yearFiles[0], c.cfg.Combine.OutputFile); err != nil {
			return errors.Wrap(err, "could not move combined file into place")
		}
	} else {
		if err := c.concat(ctx, yearFiles, c.cfg.Combine.OutputFile); err != nil {
			return errors.Wrap(err, "final concatenation failed")
		}
		c.removeAll(yearFiles)
	}

	c.logger.Infow("Combine finished", "output", c.cfg.Combine.OutputFile)
	return nil
}

// groupByYear buckets daily files by the year encoded in the file name.
// Files that do not follow the naming scheme are skipped with a warning.
func (c *Combiner) groupByYear(files []string) map[int][]string {
	byYear := make(map[int][]string)
	for _, file := range files {
		stamp := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(file), dailyPrefix), ".nc")
		if len(stamp) != 8 {
			c.logger.Warnw("Skipping file with unexpected name", "file", file)
			continue
		}
		year, err := strconv.Atoi(stamp[:4])
		if err != nil {
			c.logger.Warnw("Skipping file with unexpected name", "file", file, "error", err)
			continue
		}
		byYear[year] = append(byYear[year], file)
	}
	return byYear
}

// combineYear concatenates one year's daily files into yearOut, going
// through intermediate part files when the year exceeds one batch.
func (c *Combiner) combineYear(ctx context.Context, year int, files []string, yearOut string) error {
	batchSize := c.cfg.Combine.BatchSize
	if len(files) <= batchSize {
		return c.concat(ctx, files, yearOut)
	}

	var parts []string
	defer func() { c.removeAll(parts) }()

	for i := 0; i < len(files); i += batchSize {
		end := i + batchSize
		if end > len(files) {
			end = len(files)
		}
		part := filepath.Join(filepath.Dir(yearOut),
			fmt.Sprintf("conus404_year_%d_part_%02d.nc", year, len(parts)))
		c.logger.Infow("Combining batch",
			"year", year, "part", len(parts), "days", end-i)
		if err := c.concat(ctx, files[i:end], part); err != nil {
			return err
		}
		parts = append(parts, part)
	}

	return c.concat(ctx, parts, yearOut)
}

func (c *Combiner) concat(ctx context.Context, inputs []string, output string) error {
	args := append([]string{"--output", output}, inputs...)
	if err := c.runner(ctx, c.cfg.Combine.ToolPath, args); err != nil {
		return errors.Wrapf(err, "concatenation into %s failed", output)
	}
	return nil
}

func (c *Combiner) removeAll(files []string) {
	for _, file := range files {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			c.logger.Warnw("Could not remove intermediate file", "file", file, "error", err)
		}
	}
}

func runTool(ctx context.Context, bin string, args []string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "%s: %s", bin, strings.TrimSpace(string(out)))
	}
	return nil
}
