// Package model downloads the fixed manifest of binary assets a similarity
// model needs and constructs the opaque scoring handle from them. Assets are
// read through the persistent asset cache so engine restarts never re-download
// weight files.
package model

import (
	"strings"
	"time"
)

const (
	// DefaultModelName is the default cross-encoder model.
	DefaultModelName = "ms-marco-MiniLM-L-6-v2"

	// DefaultRemoteBase is the model repository location used when the
	// local base path has no copy of an asset.
	DefaultRemoteBase = "https://huggingface.co/cross-encoder/ms-marco-MiniLM-L-6-v2/resolve/main"

	// DownloadTimeout is the maximum time to wait for a single asset fetch.
	DownloadTimeout = 30 * time.Minute
)

// DefaultManifest is the fixed, ordered list of files required to construct
// the model handle. Order is stable so progress events are deterministic.
func DefaultManifest() []string {
	return []string{
		"config.json",
		"tokenizer.json",
		"tokenizer_config.json",
		"model_quantized.onnx",
	}
}

// resolveURL joins a base path with a manifest file name. The resolved string
// is the exact cache key used for the fetch.
func resolveURL(base, name string) string {
	return strings.TrimSuffix(base, "/") + "/" + name
}

// isHTTP reports whether the resolved URL is fetched over the network rather
// than read from the local filesystem.
func isHTTP(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}
