package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hydrostat/conusflow/config"
	"github.com/hydrostat/conusflow/errors"
)

// CommandProvider produces daily aggregates by invoking the configured
// external aggregation tool. The tool owns the Zarr time-slicing, the
// mean/sum math, derived variables, and NetCDF serialization; this side owns
// argument construction and the stats sidecar contract.
type CommandProvider struct {
	cfg    *config.Config
	asset  *AssetFiles // nil means the tool resolves the asset itself
	logger *zap.SugaredLogger
	runner func(ctx context.Context, bin string, args []string) error
}

// NewCommandProvider creates a provider around cfg.Dataset.ToolPath.
// asset may be nil: the tool then resolves and signs the asset itself,
// which is how retry workers run.
func NewCommandProvider(cfg *config.Config, asset *AssetFiles, logger *zap.SugaredLogger) *CommandProvider {
	return &CommandProvider{
		cfg:    cfg,
		asset:  asset,
		logger: logger,
		runner: runTool,
	}
}

// statsSidecar is the JSON document the aggregation tool writes next to the
// daily NetCDF file.
type statsSidecar struct {
	HourlyRecords       int                 `json:"hourly_records"`
	Variables           map[string]VarStats `json:"variables"`
	DewpointExceedsTemp bool                `json:"dewpoint_exceeds_temp"`
}

// FetchAndAggregate runs the aggregation tool for one date and reads back
// its stats sidecar.
func (p *CommandProvider) FetchAndAggregate(ctx context.Context, date time.Time) (*DayAggregate, error) {
	tool := p.cfg.Dataset.ToolPath
	if tool == "" {
		return nil, errors.New("dataset.tool_path is not configured")
	}

	dailyDir := filepath.Join(p.cfg.Paths.DataDir, "unprocessed", "daily")
	if err := os.MkdirAll(dailyDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create daily output dir %s", dailyDir)
	}

	outPath := filepath.Join(dailyDir, fmt.Sprintf("conus404_daily_%s.nc", date.Format("20060102")))
	args := p.buildArgs(date, outPath)

	p.logger.Infow("Running aggregation tool",
		"date", date.Format(config.DateLayout),
		"tool", tool,
		"output", outPath)

	if err := p.runner(ctx, tool, args); err != nil {
		return nil, errors.Wrapf(err, "aggregation tool failed for %s", date.Format(config.DateLayout))
	}

	sidecar, err := readSidecar(outPath + ".stats.json")
	if err != nil {
		return nil, err
	}
	if sidecar.HourlyRecords == 0 {
		return nil, errors.Wrapf(errors.ErrNoData, "date %s", date.Format(config.DateLayout))
	}

	p.logger.Infow("Aggregation complete",
		"date", date.Format(config.DateLayout),
		"hourly_records", sidecar.HourlyRecords,
		"variables", len(sidecar.Variables))

	return &DayAggregate{
		Date:                date,
		Path:                outPath,
		HourlyRecords:       sidecar.HourlyRecords,
		Stats:               sidecar.Variables,
		DewpointExceedsTemp: sidecar.DewpointExceedsTemp,
	}, nil
}

// buildArgs serializes the variable aggregation map and derived-variable
// recipes into tool flags, e.g.
//
//	--date 1988-04-01 --output .../conus404_daily_19880401.nc
//	--var ACRAINLSM:sum --var T2:mean ... --derived W=wind_speed(U10,V10)
func (p *CommandProvider) buildArgs(date time.Time, outPath string) []string {
	args := []string{
		"--date", date.Format(config.DateLayout),
		"--output", outPath,
	}

	for _, name := range p.cfg.VariableNames() {
		agg := "sum"
		if p.cfg.Variables[name] {
			agg = "mean"
		}
		args = append(args, "--var", name+":"+agg)
	}

	derivedNames := make([]string, 0, len(p.cfg.Derived))
	for name := range p.cfg.Derived {
		derivedNames = append(derivedNames, name)
	}
	sort.Strings(derivedNames)
	for _, name := range derivedNames {
		d := p.cfg.Derived[name]
		spec := name + "=" + d.Formula + "("
		for i, dep := range d.DependsOn {
			if i > 0 {
				spec += ","
			}
			spec += dep
		}
		spec += ")"
		args = append(args, "--derived", spec)
	}

	if p.asset != nil {
		args = append(args,
			"--asset-href", p.asset.Href,
			"--storage-options", p.asset.StorageOptionsPath,
			"--open-kwargs", p.asset.OpenKwargsPath,
		)
	}

	return args
}

func readSidecar(path string) (*statsSidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "aggregation tool produced no stats sidecar at %s", path)
	}
	var sidecar statsSidecar
	if err := json.Unmarshal(data, &sidecar); err != nil {
		return nil, errors.Wrapf(err, "unparsable stats sidecar %s", path)
	}
	return &sidecar, nil
}

func runTool(ctx context.Context, bin string, args []string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
