// Package storage abstracts where uploaded document files live.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/studyspace/core/internal/config"
)

// Backend stores and retrieves uploaded document files by key.
type Backend interface {
	// Save writes the content under key and returns the stored path
	// (a filesystem path for local, an s3:// URI for S3).
	Save(ctx context.Context, key string, r io.Reader) (string, error)
	// Open returns a reader for a previously stored key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the stored object. Missing objects are not an error.
	Delete(ctx context.Context, key string) error
}

// New builds the backend selected by configuration.
func New(cfg config.UploadsConfig) (Backend, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocal(cfg.Dir)
	case "s3":
		return NewS3(cfg.S3)
	default:
		return nil, fmt.Errorf("unknown uploads backend %q", cfg.Backend)
	}
}
