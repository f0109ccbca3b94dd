// Package storage provides temporary files for media processing and
// publishing of first-frame images to a public bucket.
package storage

import (
	"context"
	"io"
)

// Storage defines temporary file handling plus optional publishing.
type Storage interface {
	// SaveTemp saves data to a temporary file and returns the file path.
	// The name parameter is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// LoadTemp reads a temporary file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// Publish uploads data under key and returns its public URL.
	// Returns ErrPublishNotConfigured if no bucket is configured.
	Publish(ctx context.Context, key, contentType string, data io.Reader) (url string, err error)
}
