package model

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/knowbase/rerankd/internal/assetcache"
	"github.com/knowbase/rerankd/internal/errors"
	"github.com/knowbase/rerankd/internal/scorer"
)

// StatusFunc receives human-readable progress messages while assets load,
// naming the asset currently being fetched.
type StatusFunc func(message string)

// Config configures the Loader.
type Config struct {
	// Manifest is the ordered list of required asset file names.
	// Defaults to DefaultManifest().
	Manifest []string

	// LocalBase is tried first when resolving each asset. May be a
	// directory path or a URL. Empty means remote-only.
	LocalBase string

	// RemoteBase is the model repository fallback (default: DefaultRemoteBase).
	RemoteBase string

	// Retry controls backoff for remote fetches.
	Retry errors.RetryConfig

	// FetchTimeout bounds a single asset download (default: DownloadTimeout).
	FetchTimeout time.Duration
}

// Loader fetches the asset manifest through the cache and builds the model
// handle via the scorer factory. Construction failure is fatal for the load
// attempt; the host must re-issue the whole load to retry.
type Loader struct {
	cfg     Config
	cache   assetcache.Store
	factory scorer.Factory
	client  *http.Client
	group   singleflight.Group
}

// NewLoader creates a loader over the given cache and factory.
func NewLoader(cfg Config, cache assetcache.Store, factory scorer.Factory) *Loader {
	if len(cfg.Manifest) == 0 {
		cfg.Manifest = DefaultManifest()
	}
	if cfg.RemoteBase == "" {
		cfg.RemoteBase = DefaultRemoteBase
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialDelay == 0 {
		cfg.Retry = errors.DefaultRetryConfig()
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = DownloadTimeout
	}
	return &Loader{
		cfg:     cfg,
		cache:   cache,
		factory: factory,
		client:  &http.Client{},
	}
}

// Load fetches every manifest asset (cache first, then local base, then the
// remote repository) and constructs the model handle. Concurrent calls are
// deduplicated; each caller receives the same handle or error.
func (l *Loader) Load(ctx context.Context, status StatusFunc) (scorer.Handle, error) {
	v, err, _ := l.group.Do("load", func() (any, error) {
		return l.load(ctx, status)
	})
	if err != nil {
		return nil, err
	}
	return v.(scorer.Handle), nil
}

func (l *Loader) load(ctx context.Context, status StatusFunc) (scorer.Handle, error) {
	notify := func(msg string) {
		if status != nil {
			status(msg)
		}
	}

	assets := make(scorer.Assets, len(l.cfg.Manifest))
	for _, name := range l.cfg.Manifest {
		notify(fmt.Sprintf("fetching %s", name))

		data, err := l.fetchAsset(ctx, name)
		if err != nil {
			return nil, err
		}
		assets[name] = data
	}

	notify("building model handle")
	handle, err := l.factory.New(ctx, assets)
	if err != nil {
		return nil, err
	}

	slog.Info("model_loaded",
		slog.String("model", handle.ModelName()),
		slog.Int("assets", len(assets)))
	return handle, nil
}

// Prefetch downloads every manifest asset into the cache without building a
// handle. Used by the CLI to warm the cache ahead of time.
func (l *Loader) Prefetch(ctx context.Context, status StatusFunc) error {
	for _, name := range l.cfg.Manifest {
		if status != nil {
			status(fmt.Sprintf("fetching %s", name))
		}
		if _, err := l.fetchAsset(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// AssetStatus describes one manifest asset's cache state.
type AssetStatus struct {
	Name   string `json:"name"`
	Cached bool   `json:"cached"`
	Bytes  int    `json:"bytes,omitempty"`
}

// CacheStatus reports, per manifest asset, whether any resolved source URL
// has a cache entry. No fetching happens.
func (l *Loader) CacheStatus(ctx context.Context) ([]AssetStatus, error) {
	statuses := make([]AssetStatus, 0, len(l.cfg.Manifest))
	for _, name := range l.cfg.Manifest {
		st := AssetStatus{Name: name}
		for _, base := range []string{l.cfg.LocalBase, l.cfg.RemoteBase} {
			if base == "" {
				continue
			}
			data, err := l.cache.Get(ctx, resolveURL(base, name))
			if err == nil {
				st.Cached = true
				st.Bytes = len(data)
				break
			}
			if !assetcache.IsMiss(err) {
				return nil, errors.Wrap(errors.ErrCodeCacheRead, err)
			}
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

// fetchAsset resolves one manifest file: local base first, remote repository
// second. For each candidate the cache is consulted before the source; a
// fresh fetch populates the cache before the bytes are considered valid.
func (l *Loader) fetchAsset(ctx context.Context, name string) ([]byte, error) {
	var lastErr error

	for _, base := range []string{l.cfg.LocalBase, l.cfg.RemoteBase} {
		if base == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		url := resolveURL(base, name)

		data, err := l.cache.Get(ctx, url)
		if err == nil {
			slog.Debug("asset_cache_hit", slog.String("url", url))
			return data, nil
		}
		if !assetcache.IsMiss(err) {
			return nil, errors.Wrap(errors.ErrCodeCacheRead, err)
		}

		data, err = l.fetch(ctx, url)
		if err != nil {
			slog.Debug("asset_fetch_failed",
				slog.String("url", url),
				slog.String("error", err.Error()))
			lastErr = err
			continue
		}

		// Cache population must succeed before the bytes count as valid,
		// so a crash mid-fetch never leaves a servable partial entry.
		if err := l.cache.Put(ctx, url, data); err != nil {
			return nil, errors.Wrap(errors.ErrCodeCacheWrite, err)
		}

		slog.Info("asset_fetched",
			slog.String("asset", name),
			slog.String("url", url),
			slog.Int("bytes", len(data)))
		return data, nil
	}

	return nil, errors.AssetFetchError(name, lastErr)
}

// fetch retrieves one resolved URL. Network fetches go through bounded
// exponential-backoff retry; local file reads fail fast so resolution can
// fall through to the remote repository.
func (l *Loader) fetch(ctx context.Context, url string) ([]byte, error) {
	if !isHTTP(url) {
		return os.ReadFile(url)
	}

	return errors.RetryWithResult(ctx, l.cfg.Retry, func() ([]byte, error) {
		return l.httpFetch(ctx, url)
	})
}

func (l *Loader) httpFetch(ctx context.Context, url string) ([]byte, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, l.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "rerankd/1.0")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status: %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return data, nil
}
