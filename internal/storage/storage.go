// Package storage provides the filesystem plumbing shared by the engine: scratch
// files, atomic output commits, count-based retention for file sinks, and
// optional publication of finished outputs to S3.
package storage

import (
	"context"
)

// Storage defines scratch-file handling and publication of finished outputs.
// It acts as a port in the hexagonal architecture pattern.
type Storage interface {
	// TempPath reserves a unique scratch file path. The name is used as a hint
	// and its extension is preserved.
	TempPath(ctx context.Context, name string) (path string, err error)

	// CleanupTemp removes the specified scratch files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// Publish uploads the file at path under key and returns its public URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	Publish(ctx context.Context, key, path string) (url string, err error)
}
