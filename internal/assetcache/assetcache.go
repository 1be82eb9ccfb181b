// Package assetcache provides a persistent URL-keyed blob store for model
// assets. Entries are written once per URL and survive engine restarts, so a
// new engine instance reading the same cache observes prior downloads. The
// engine only ever appends; eviction is the host platform's concern.
package assetcache

import (
	"context"
	"errors"
)

// DefaultNamespace is the version-tagged cache generation. Bump it when the
// asset layout changes so incompatible generations do not collide.
const DefaultNamespace = "assets-v1"

// ErrMiss is returned by Get when no entry exists for the URL.
var ErrMiss = errors.New("asset cache miss")

// Store is the asset cache contract: exact URL strings map to byte blobs.
// Keys are not normalized.
type Store interface {
	// Get returns the cached bytes for url, or ErrMiss if absent.
	Get(ctx context.Context, url string) ([]byte, error)

	// Put stores data under url. Entries are immutable once written;
	// writing the same URL again overwrites with identical semantics.
	Put(ctx context.Context, url string, data []byte) error
}

// IsMiss reports whether err represents a cache miss.
func IsMiss(err error) bool {
	return errors.Is(err, ErrMiss)
}
