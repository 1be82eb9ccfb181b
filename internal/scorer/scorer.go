// Package scorer defines the similarity capability boundary: an opaque model
// handle that scores one (query, document) pair at a time. The engine never
// computes similarity itself; it drives a Handle built by a Factory from raw
// model assets.
package scorer

import (
	"context"
)

// Assets maps manifest file names to their raw downloaded bytes.
type Assets map[string][]byte

// Handle is the opaque scoring capability. One Handle is constructed per
// engine lifetime and reused for every request.
type Handle interface {
	// Score returns a relevance score for the document text against the
	// query. Higher is more relevant. Latency is unspecified; calls are
	// synchronous.
	Score(ctx context.Context, query, text string) (float64, error)

	// ModelName returns the model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}

// Factory constructs a Handle from retrieved assets. Construction failure
// (malformed asset, unsupported configuration) is fatal for the engine's
// lifetime; implementations should validate assets before returning.
type Factory interface {
	New(ctx context.Context, assets Assets) (Handle, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ctx context.Context, assets Assets) (Handle, error)

// New implements Factory.
func (f FactoryFunc) New(ctx context.Context, assets Assets) (Handle, error) {
	return f(ctx, assets)
}
