package driver

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/hydrostat/conusflow/config"
	"github.com/hydrostat/conusflow/dataset"
	"github.com/hydrostat/conusflow/errors"
)

// STACResolver resolves the dataset asset through the catalog API once
// per run and materializes its connection parameters into a temporary
// directory shared by every worker of the run.
type STACResolver struct {
	client *dataset.Client
	logger *zap.SugaredLogger
}

// NewSTACResolver creates a resolver against the configured catalog
func NewSTACResolver(cfg config.DatasetConfig, logger *zap.SugaredLogger) *STACResolver {
	return &STACResolver{
		client: dataset.NewClient(cfg, logger),
		logger: logger,
	}
}

// Setup resolves the asset and writes its connection parameter files.
// The caller owns cleanup of the returned files.
func (r *STACResolver) Setup(ctx context.Context) (*dataset.AssetFiles, error) {
	asset, err := r.client.ResolveAsset(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "asset resolution failed")
	}

	dir, err := os.MkdirTemp("", "conusflow-asset-*")
	if err != nil {
		return nil, errors.Wrap(err, "could not create connection parameter directory")
	}

	files, err := asset.WriteConnectionFiles(dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, errors.Wrap(err, "could not write connection parameter files")
	}

	r.logger.Infow("Asset resolved",
		"href", files.Href,
		"storage_options", files.StorageOptionsPath,
		"open_kwargs", files.OpenKwargsPath)
	return files, nil
}
