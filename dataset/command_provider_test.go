package dataset

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hydrostat/conusflow/config"
	"github.com/hydrostat/conusflow/errors"
)

func providerConfig(t *testing.T) *config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	cfg, err := config.LoadWithViper(v)
	require.NoError(t, err)
	cfg.Paths.DataDir = t.TempDir()
	cfg.Dataset.ToolPath = "/fake/aggregate-tool"
	return cfg
}

func writeSidecarFor(t *testing.T, outPath string, sidecar statsSidecar) {
	t.Helper()
	data, err := json.Marshal(sidecar)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(outPath+".stats.json", data, 0o644))
}

func TestFetchAndAggregateReadsSidecar(t *testing.T) {
	cfg := providerConfig(t)
	p := NewCommandProvider(cfg, nil, zaptest.NewLogger(t).Sugar())

	var gotArgs []string
	p.runner = func(_ context.Context, bin string, args []string) error {
		assert.Equal(t, "/fake/aggregate-tool", bin)
		gotArgs = args

		// Emulate the tool: find --output, write the sidecar there.
		var outPath string
		for i, a := range args {
			if a == "--output" {
				outPath = args[i+1]
			}
		}
		require.NotEmpty(t, outPath)
		writeSidecarFor(t, outPath, statsSidecar{
			HourlyRecords: 24,
			Variables: map[string]VarStats{
				"T2": {Min: 250.1, Max: 301.4},
			},
		})
		return nil
	}

	date := time.Date(1988, 4, 1, 0, 0, 0, 0, time.UTC)
	agg, err := p.FetchAndAggregate(context.Background(), date)
	require.NoError(t, err)

	assert.Equal(t, 24, agg.HourlyRecords)
	assert.Equal(t, VarStats{Min: 250.1, Max: 301.4}, agg.Stats["T2"])
	assert.Contains(t, agg.Path, "conus404_daily_19880401.nc")

	assert.Contains(t, gotArgs, "--date")
	assert.Contains(t, gotArgs, "1988-04-01")
	assert.Contains(t, gotArgs, "ACRAINLSM:sum")
	assert.Contains(t, gotArgs, "T2:mean")
	assert.Contains(t, gotArgs, "W=wind_speed(U10,V10)")
	assert.NotContains(t, gotArgs, "--asset-href", "no asset files were supplied")
}

func TestFetchAndAggregatePassesAssetFiles(t *testing.T) {
	cfg := providerConfig(t)
	asset := &AssetFiles{
		Href:               "abfs://hytest/conus404.zarr",
		StorageOptionsPath: "/tmp/storage_options.json",
		OpenKwargsPath:     "/tmp/open_kwargs.json",
	}
	p := NewCommandProvider(cfg, asset, zaptest.NewLogger(t).Sugar())

	p.runner = func(_ context.Context, _ string, args []string) error {
		assert.Contains(t, args, "--asset-href")
		assert.Contains(t, args, "abfs://hytest/conus404.zarr")
		var outPath string
		for i, a := range args {
			if a == "--output" {
				outPath = args[i+1]
			}
		}
		writeSidecarFor(t, outPath, statsSidecar{HourlyRecords: 24})
		return nil
	}

	_, err := p.FetchAndAggregate(context.Background(), time.Date(1988, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
}

func TestFetchAndAggregateEmptyDayIsNoData(t *testing.T) {
	cfg := providerConfig(t)
	p := NewCommandProvider(cfg, nil, zaptest.NewLogger(t).Sugar())

	p.runner = func(_ context.Context, _ string, args []string) error {
		var outPath string
		for i, a := range args {
			if a == "--output" {
				outPath = args[i+1]
			}
		}
		writeSidecarFor(t, outPath, statsSidecar{HourlyRecords: 0})
		return nil
	}

	_, err := p.FetchAndAggregate(context.Background(), time.Date(1988, 4, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoData))
}

func TestFetchAndAggregateToolFailure(t *testing.T) {
	cfg := providerConfig(t)
	p := NewCommandProvider(cfg, nil, zaptest.NewLogger(t).Sugar())

	p.runner = func(_ context.Context, _ string, _ []string) error {
		return errors.New("tool exploded")
	}

	_, err := p.FetchAndAggregate(context.Background(), time.Date(1988, 4, 1, 0, 0, 0, 0, time.UTC))
	assert.Error(t, err)
}

func TestFetchAndAggregateMissingSidecar(t *testing.T) {
	cfg := providerConfig(t)
	p := NewCommandProvider(cfg, nil, zaptest.NewLogger(t).Sugar())

	p.runner = func(_ context.Context, _ string, _ []string) error { return nil }

	_, err := p.FetchAndAggregate(context.Background(), time.Date(1988, 4, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stats sidecar")
}

func TestFetchAndAggregateUnconfiguredTool(t *testing.T) {
	cfg := providerConfig(t)
	cfg.Dataset.ToolPath = ""
	p := NewCommandProvider(cfg, nil, zaptest.NewLogger(t).Sugar())

	_, err := p.FetchAndAggregate(context.Background(), time.Date(1988, 4, 1, 0, 0, 0, 0, time.UTC))
	assert.Error(t, err)
}
