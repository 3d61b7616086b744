package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hydrostat/conusflow/config"
	"github.com/hydrostat/conusflow/dataset"
	"github.com/hydrostat/conusflow/errors"
)

type fakeProvider struct {
	agg *dataset.DayAggregate
	err error
}

func (p *fakeProvider) FetchAndAggregate(_ context.Context, _ time.Time) (*dataset.DayAggregate, error) {
	return p.agg, p.err
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	cfg, err := config.LoadWithViper(v)
	require.NoError(t, err)
	return cfg
}

func validAggregate(t *testing.T, dir string) *dataset.DayAggregate {
	t.Helper()
	path := filepath.Join(dir, "conus404_daily_19880401.nc")
	require.NoError(t, os.WriteFile(path, []byte("netcdf"), 0o644))
	return &dataset.DayAggregate{
		Date:          time.Date(1988, 4, 1, 0, 0, 0, 0, time.UTC),
		Path:          path,
		HourlyRecords: 24,
		Stats: map[string]dataset.VarStats{
			"T2":        {Min: 250, Max: 300},
			"ACRAINLSM": {Min: 0, Max: 12},
		},
	}
}

func TestRunSucceedsOnValidDay(t *testing.T) {
	agg := validAggregate(t, t.TempDir())
	w := New(testConfig(t), &fakeProvider{agg: agg}, zap.NewNop().Sugar())

	err := w.Run(context.Background(), agg.Date)
	require.NoError(t, err)
	assert.FileExists(t, agg.Path)
}

func TestRunWrapsProviderError(t *testing.T) {
	w := New(testConfig(t), &fakeProvider{err: errors.New("zarr store unreachable")}, zap.NewNop().Sugar())

	err := w.Run(context.Background(), time.Date(1988, 4, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download failed for 1988-04-01")
	assert.Contains(t, err.Error(), "zarr store unreachable")
}

func TestRunRemovesFileOnValidationFailure(t *testing.T) {
	agg := validAggregate(t, t.TempDir())
	agg.Stats["T2"] = dataset.VarStats{Min: 180, Max: 300} // below the physical floor
	w := New(testConfig(t), &fakeProvider{agg: agg}, zap.NewNop().Sugar())

	err := w.Run(context.Background(), agg.Date)
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
	assert.NoFileExists(t, agg.Path)
}

func TestRunValidationErrorNamesViolation(t *testing.T) {
	agg := validAggregate(t, t.TempDir())
	agg.DewpointExceedsTemp = true
	w := New(testConfig(t), &fakeProvider{agg: agg}, zap.NewNop().Sugar())

	err := w.Run(context.Background(), agg.Date)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TD2 > T2")
	assert.Contains(t, err.Error(), "1988-04-01")
}
