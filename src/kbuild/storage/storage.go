// Package storage provides backends that receive published kernel artifacts.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/bitswalk/kbuild/src/kbuild/config"
)

// Backend defines the interface for storage backends
type Backend interface {
	// Upload stores size bytes from reader under key
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Ping checks if the storage is accessible
	Ping(ctx context.Context) error

	// Type returns the storage backend type
	Type() string

	// Location returns a human-readable location description
	Location() string
}

// New creates the backend selected by the publish configuration
func New(cfg config.PublishConfig) (Backend, error) {
	switch cfg.Storage {
	case config.PublishLocal:
		return NewLocal(LocalConfig{BasePath: cfg.LocalPath})
	case config.PublishS3:
		return NewS3(S3Config{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %q", cfg.Storage)
	}
}
