package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/knowbase/rerankd/internal/assetcache"
	"github.com/knowbase/rerankd/internal/config"
	"github.com/knowbase/rerankd/internal/model"
	"github.com/knowbase/rerankd/internal/scorer"
)

// loadConfig builds the effective configuration for the current directory.
func loadConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to determine working directory: %w", err)
	}
	return config.Load(cwd)
}

// buildLoader wires the asset cache, the scorer factory, and the model
// loader from the effective configuration.
func buildLoader(cfg *config.Config) (*model.Loader, error) {
	cache, err := assetcache.NewFSStore(cfg.Cache.Dir, cfg.Cache.Namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to open asset cache: %w", err)
	}

	scorerTimeout, err := cfg.ScorerTimeout()
	if err != nil {
		return nil, err
	}
	factory := scorer.NewHTTPFactory(scorer.HTTPConfig{
		Endpoint: cfg.Scorer.Endpoint,
		Model:    cfg.Scorer.Model,
		Timeout:  scorerTimeout,
	})
	factory = cachedFactory(factory, cfg.Engine.ScoreCacheSize)

	retry, err := cfg.RetryConfig()
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := cfg.FetchTimeout()
	if err != nil {
		return nil, err
	}

	return model.NewLoader(model.Config{
		LocalBase:    cfg.Model.LocalBase,
		RemoteBase:   cfg.Model.RemoteBase,
		Retry:        retry,
		FetchTimeout: fetchTimeout,
	}, cache, factory), nil
}

// cachedFactory wraps a factory so constructed handles carry the pair-score
// LRU. Size zero disables caching.
func cachedFactory(inner scorer.Factory, size int) scorer.Factory {
	if size == 0 {
		return inner
	}
	return scorer.FactoryFunc(func(ctx context.Context, assets scorer.Assets) (scorer.Handle, error) {
		handle, err := inner.New(ctx, assets)
		if err != nil {
			return nil, err
		}
		return scorer.NewCachedHandle(handle, size), nil
	})
}
