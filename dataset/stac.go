package dataset

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hydrostat/conusflow/config"
	"github.com/hydrostat/conusflow/errors"
	"github.com/hydrostat/conusflow/internal/httpclient"
)

// Asset is the resolved cloud store location plus the connection parameters
// the aggregation tool needs to open it.
type Asset struct {
	Href           string          `json:"href"`
	StorageOptions json.RawMessage `json:"storage_options"`
	OpenKwargs     json.RawMessage `json:"open_kwargs"`
}

// AssetFiles points at the serialized connection parameters persisted for
// worker subprocesses (the configuration-passing invocation variant).
type AssetFiles struct {
	Href               string
	StorageOptionsPath string
	OpenKwargsPath     string

	dir string
}

// Client resolves dataset assets from a STAC catalog. Each resolution gets a
// freshly signed token, so long runs never hold a stale one.
type Client struct {
	cfg        config.DatasetConfig
	httpClient *httpclient.Client
	limiter    *rate.Limiter
	logger     *zap.SugaredLogger
}

// NewClient creates a STAC catalog client
func NewClient(cfg config.DatasetConfig, logger *zap.SugaredLogger) *Client {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpclient.New(60 * time.Second),
		limiter:    rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
		logger:     logger,
	}
}

// collectionDoc is the subset of the STAC collection document we consume.
// Asset entries carry xarray hints as extra fields.
type collectionDoc struct {
	ID     string                     `json:"id"`
	Assets map[string]json.RawMessage `json:"assets"`
}

type assetDoc struct {
	Href           string          `json:"href"`
	StorageOptions json.RawMessage `json:"xarray:storage_options"`
	OpenKwargs     json.RawMessage `json:"xarray:open_kwargs"`
}

// ResolveAsset fetches the configured collection and returns its configured
// asset with a fresh signed token.
func (c *Client) ResolveAsset(ctx context.Context) (*Asset, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limiter interrupted")
	}

	url := c.cfg.StacAPIURL + "/collections/" + c.cfg.Collection
	c.logger.Infow("Resolving dataset asset from STAC catalog",
		"url", url, "asset", c.cfg.Asset)

	resp, err := c.httpClient.GetWithRetry(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrAssetUnavailable, "STAC request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read STAC response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(errors.ErrAssetUnavailable,
			"STAC returned %d for collection %s", resp.StatusCode, c.cfg.Collection)
	}

	var doc collectionDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse STAC collection document")
	}

	raw, ok := doc.Assets[c.cfg.Asset]
	if !ok {
		return nil, errors.Wrapf(errors.ErrAssetUnavailable,
			"collection %s has no asset %q", c.cfg.Collection, c.cfg.Asset)
	}

	var ad assetDoc
	if err := json.Unmarshal(raw, &ad); err != nil {
		return nil, errors.Wrapf(err, "failed to parse asset %q", c.cfg.Asset)
	}
	if ad.Href == "" {
		return nil, errors.Wrapf(errors.ErrAssetUnavailable, "asset %q has no href", c.cfg.Asset)
	}

	c.logger.Infow("Resolved dataset asset", "href", ad.Href)
	return &Asset{
		Href:           ad.Href,
		StorageOptions: ad.StorageOptions,
		OpenKwargs:     ad.OpenKwargs,
	}, nil
}

// WriteConnectionFiles persists the asset's connection parameters under dir
// so worker subprocesses can be handed file paths instead of inline secrets.
func (a *Asset) WriteConnectionFiles(dir string) (*AssetFiles, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create temp config dir %s", dir)
	}

	files := &AssetFiles{
		Href:               a.Href,
		StorageOptionsPath: filepath.Join(dir, "storage_options.json"),
		OpenKwargsPath:     filepath.Join(dir, "open_kwargs.json"),
		dir:                dir,
	}

	storage := a.StorageOptions
	if len(storage) == 0 {
		storage = json.RawMessage("{}")
	}
	kwargs := a.OpenKwargs
	if len(kwargs) == 0 {
		kwargs = json.RawMessage("{}")
	}

	if err := os.WriteFile(files.StorageOptionsPath, storage, 0o600); err != nil {
		return nil, errors.Wrap(err, "failed to write storage options file")
	}
	if err := os.WriteFile(files.OpenKwargsPath, kwargs, 0o600); err != nil {
		return nil, errors.Wrap(err, "failed to write open kwargs file")
	}

	return files, nil
}

// Cleanup removes the serialized connection parameter files
func (f *AssetFiles) Cleanup() error {
	if err := os.Remove(f.StorageOptionsPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove storage options file")
	}
	if err := os.Remove(f.OpenKwargsPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove open kwargs file")
	}
	if err := os.Remove(f.dir); err != nil && !os.IsNotExist(err) {
		// Directory may hold unrelated files; leaving it behind is harmless.
		return nil
	}
	return nil
}
