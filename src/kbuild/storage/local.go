package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitswalk/kbuild/src/common/paths"
)

// LocalConfig holds the local filesystem storage configuration
type LocalConfig struct {
	// BasePath is the root directory artifacts are copied under
	BasePath string
}

// LocalBackend stores artifacts in a directory tree
type LocalBackend struct {
	basePath string
}

// NewLocal creates a local filesystem backend, creating the base directory if needed
func NewLocal(cfg LocalConfig) (*LocalBackend, error) {
	basePath, err := filepath.Abs(paths.Expand(cfg.BasePath))
	if err != nil {
		return nil, fmt.Errorf("invalid storage path %s: %w", cfg.BasePath, err)
	}

	if err := paths.EnsureDirPath(basePath); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", basePath, err)
	}

	return &LocalBackend{basePath: basePath}, nil
}

// fullPath maps a key below basePath; keys cannot climb out of it
func (b *LocalBackend) fullPath(key string) string {
	cleanKey := filepath.Clean("/" + filepath.FromSlash(key))
	cleanKey = strings.TrimPrefix(cleanKey, string(os.PathSeparator))
	return filepath.Join(b.basePath, cleanKey)
}

// Upload writes the object through a temporary file renamed into place
func (b *LocalBackend) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	fullPath := b.fullPath(key)

	dir := filepath.Dir(fullPath)
	if err := paths.EnsureDirPath(dir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(fullPath)+".*")
	if err != nil {
		return fmt.Errorf("failed to create file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, reader)
	closeErr := tmp.Close()
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", fullPath, err)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close %s: %w", fullPath, closeErr)
	}
	if size >= 0 && written != size {
		os.Remove(tmpPath)
		return fmt.Errorf("size mismatch: expected %d bytes, wrote %d bytes", size, written)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move %s into place: %w", fullPath, err)
	}

	return nil
}

// Ping checks if the storage directory is accessible
func (b *LocalBackend) Ping(ctx context.Context) error {
	if !paths.IsDir(b.basePath) {
		return fmt.Errorf("storage directory not accessible: %s", b.basePath)
	}
	return nil
}

// Type returns the storage backend type
func (b *LocalBackend) Type() string {
	return "local"
}

// Location returns the base path
func (b *LocalBackend) Location() string {
	return b.basePath
}
