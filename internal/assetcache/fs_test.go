package assetcache

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStore_MissBeforePut(t *testing.T) {
	// Given: an empty store
	store, err := NewFSStore(t.TempDir(), "")
	require.NoError(t, err)

	// When: reading an unknown URL
	_, err = store.Get(context.Background(), "https://example.com/model.onnx")

	// Then: miss is reported via the sentinel
	assert.True(t, IsMiss(err))
}

func TestFSStore_PutThenGet(t *testing.T) {
	store, err := NewFSStore(t.TempDir(), "")
	require.NoError(t, err)
	ctx := context.Background()

	url := "https://example.com/tokenizer.json"
	payload := []byte(`{"vocab": {}}`)

	require.NoError(t, store.Put(ctx, url, payload))

	got, err := store.Get(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestFSStore_PersistsAcrossReopen(t *testing.T) {
	// Given: an entry written by one store instance
	root := t.TempDir()
	ctx := context.Background()

	first, err := NewFSStore(root, "assets-v1")
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, "https://example.com/config.json", []byte(`{"model_type":"bert"}`)))

	// When: a fresh instance opens the same root and namespace
	second, err := NewFSStore(root, "assets-v1")
	require.NoError(t, err)

	// Then: the prior entry is observed
	got, err := second.Get(ctx, "https://example.com/config.json")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"model_type":"bert"}`), got)
}

func TestFSStore_NamespacesDoNotCollide(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	v1, err := NewFSStore(root, "assets-v1")
	require.NoError(t, err)
	v2, err := NewFSStore(root, "assets-v2")
	require.NoError(t, err)

	require.NoError(t, v1.Put(ctx, "https://example.com/weights.bin", []byte("v1 bytes")))

	// The v2 generation must not see v1 entries.
	_, err = v2.Get(ctx, "https://example.com/weights.bin")
	assert.True(t, IsMiss(err))
}

func TestFSStore_ExactURLKeys(t *testing.T) {
	// Keys are exact strings: no normalization of case, trailing slash, etc.
	store, err := NewFSStore(t.TempDir(), "")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "https://example.com/A", []byte("upper")))

	_, err = store.Get(ctx, "https://example.com/a")
	assert.True(t, IsMiss(err))

	_, err = store.Get(ctx, "https://example.com/A/")
	assert.True(t, IsMiss(err))
}

func TestFSStore_NoPartialEntryOnDisk(t *testing.T) {
	// After a successful Put, no temp file remains in the namespace dir.
	store, err := NewFSStore(t.TempDir(), "")
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), "u", []byte("data")))

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestFSStore_CancelledContext(t *testing.T) {
	store, err := NewFSStore(t.TempDir(), "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.Get(ctx, "u")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, store.Put(ctx, "u", nil), context.Canceled)
}

func TestMemStore_Isolation(t *testing.T) {
	// Mutating the slice returned by Get must not corrupt the stored entry.
	store := NewMemStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "u", []byte("abc")))

	got, err := store.Get(ctx, "u")
	require.NoError(t, err)
	got[0] = 'z'

	again, err := store.Get(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
	assert.Equal(t, 1, store.Len())
}
