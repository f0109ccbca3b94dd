package job

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned when a job cannot be found by key.
var ErrJobNotFound = errors.New("job: not found")

// Repository holds snapshots of the jobs a controller is tracking in this
// process. History is the durable record; the repository only covers the
// live session.
type Repository interface {
	// Save stores a snapshot of job, replacing any previous one with the same key.
	Save(ctx context.Context, job *Job) error

	// FindByKey retrieves a job by its (provider, id) identity.
	// Returns ErrJobNotFound if the job does not exist.
	FindByKey(ctx context.Context, key Key) (*Job, error)

	// List returns all jobs, oldest submission first.
	List(ctx context.Context) ([]*Job, error)
}
