package job

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned when no record exists for a job ID.
var ErrJobNotFound = errors.New("job not found")

// Repository stores job records for status queries. The Runner is its only
// writer; MemoryRepository and SQLiteRepository implement it.
type Repository interface {
	// Save inserts or replaces the record with the job's ID.
	Save(ctx context.Context, job *Job) error

	// FindByID returns a copy of the record, or ErrJobNotFound.
	FindByID(ctx context.Context, id string) (*Job, error)

	// List returns copies of every record, oldest submission first.
	List(ctx context.Context) ([]*Job, error)

	// Delete removes a record, or returns ErrJobNotFound. The Runner calls it
	// when pruning finished jobs past their retention.
	Delete(ctx context.Context, id string) error
}
