package assetcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// FSStore is a filesystem-backed Store. Each entry is one blob file named by
// the SHA-256 of its URL, under <root>/<namespace>/. Writes go through a
// temp file and atomic rename so a crash mid-write never leaves a partial
// entry that Get would serve.
type FSStore struct {
	dir  string
	lock *FileLock
}

// NewFSStore creates a filesystem store rooted at root, with entries under
// the given namespace (DefaultNamespace when empty).
func NewFSStore(root, namespace string) (*FSStore, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	dir := filepath.Join(root, namespace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FSStore{
		dir:  dir,
		lock: NewFileLock(dir),
	}, nil
}

// Dir returns the namespace directory entries are stored in.
func (s *FSStore) Dir() string {
	return s.dir
}

// Get returns the cached bytes for url, or ErrMiss if no entry exists.
func (s *FSStore) Get(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.entryPath(url))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return data, nil
}

// Put stores data under url. The write is serialized across processes with a
// file lock and lands via temp file + rename.
func (s *FSStore) Put(ctx context.Context, url string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.lock.Lock(); err != nil {
		return err
	}
	defer func() { _ = s.lock.Unlock() }()

	dest := s.entryPath(url)
	tmp := dest + ".tmp"
	defer os.Remove(tmp) // no-op after successful rename

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create temp entry: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync cache entry: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close cache entry: %w", err)
	}

	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("failed to finalize cache entry: %w", err)
	}
	return nil
}

// entryPath maps an exact URL string to its blob file.
// SHA-256 keeps filenames fixed-length and filesystem-safe.
func (s *FSStore) entryPath(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:]))
}

// Verify interface implementation at compile time
var _ Store = (*FSStore)(nil)
