package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/nutriparse/internal/models"
)

var (
	// ErrNoJob is returned by Lease when no ready job exists
	ErrNoJob = errors.New("no ready job")
	// ErrLeaseLost is returned when the caller no longer owns the lease
	ErrLeaseLost = errors.New("lease lost")
)

// Queue is the priority-ordered ready set with lease/ack semantics.
// Dispatch order is deterministic: (priority class, created_at, job_id).
type Queue interface {
	// Enqueue transitions the job pending → queued and adds it to the ready
	// set. The two writes are transactional: on failure the job remains
	// pending and no ready entry exists.
	Enqueue(ctx context.Context, job *models.Job) error

	// Lease atomically selects the highest-priority, oldest ready job and
	// transitions it queued → leased with owner and deadline = now+duration.
	Lease(ctx context.Context, workerID string, duration time.Duration) (*models.Job, error)

	// Renew extends the lease deadline iff workerID still owns it
	Renew(ctx context.Context, jobID, workerID string, duration time.Duration) error

	// Ack transitions a running job to its terminal state iff workerID owns
	// the lease, recording result or error and removing any ready entry.
	Ack(ctx context.Context, jobID, workerID string, terminal models.JobState, result *models.Result, jobErr *models.JobError) error

	// Nack returns a running job to queued after a cooperative failure and
	// delays re-lease by retryDelay. Attempts already counted the lease, so
	// the counter is untouched here; a job at max_attempts fails instead.
	Nack(ctx context.Context, jobID, workerID string, retryDelay time.Duration) error

	// SweepExpired requeues jobs whose lease deadline has passed, failing
	// those that exhausted max_attempts. Returns (requeued, failed).
	SweepExpired(ctx context.Context) (int, int, error)

	// Depth reports the number of ready (not leased) entries
	Depth(ctx context.Context) (int, error)
}
