package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/nutriparse/internal/models"
)

// Sentinel errors shared by storage implementations
var (
	// ErrNotFound is returned when a job, batch or blob does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a compare-and-swap transition loses the race
	ErrConflict = errors.New("state conflict")
	// ErrGone is returned when a record existed but has been deleted
	ErrGone = errors.New("deleted")
)

// JobListOptions filters and pages job listings
type JobListOptions struct {
	States      []models.JobState
	ParsingType models.ParsingType
	BatchID     string
	CreatedFrom time.Time
	CreatedTo   time.Time
	Offset      int
	Limit       int
}

// JobStats summarizes job outcomes over a window
type JobStats struct {
	ByState     map[models.JobState]int `json:"by_state"`
	Total       int                     `json:"total"`
	SuccessRate float64                 `json:"success_rate"`
	AvgDuration time.Duration           `json:"avg_duration"`
}

// JobStorage is the durable source of truth for job records.
// All operations are atomic and serializable per job id; writes bump
// updated_at, which doubles as the optimistic lock token.
type JobStorage interface {
	// Create persists a new job in state pending
	Create(ctx context.Context, job *models.Job) error

	// Transition performs a compare-and-swap on state: if the current state
	// is in from and mutate returns nil, the job moves to the target state.
	// Returns ErrConflict when the current state is not in from; a non-nil
	// error from mutate aborts the transition untouched.
	Transition(ctx context.Context, id string, from []models.JobState, to models.JobState, mutate func(*models.Job) error) (*models.Job, error)

	// UpdateProgress records stage and percent. Writable only while the job
	// is leased or running; percent is clamped to be non-decreasing.
	UpdateProgress(ctx context.Context, id string, stage string, percent int) error

	// ExtendLease pushes the lease deadline for the owning worker without
	// touching the job's state. Returns ErrConflict when workerID no longer
	// owns the lease or the job left the leased/running states.
	ExtendLease(ctx context.Context, id, workerID string, deadline time.Time) error

	Get(ctx context.Context, id string) (*models.Job, error)
	List(ctx context.Context, opts *JobListOptions) ([]*models.Job, int, error)

	// Delete removes the job record from any state. Blob deletion is the
	// caller's responsibility (the job service owns that ordering).
	Delete(ctx context.Context, id string) error

	// WasDeleted reports whether the job existed and has been removed,
	// letting the API answer 410 instead of 404
	WasDeleted(ctx context.Context, id string) bool

	// Stats aggregates jobs created within the window (zero = all time)
	Stats(ctx context.Context, window time.Duration) (*JobStats, error)

	// Cleanup bulk-deletes terminal jobs older than the cutoff and returns
	// the deleted jobs so blobs can be reaped alongside.
	Cleanup(ctx context.Context, olderThan time.Time, states []models.JobState) ([]*models.Job, error)

	// Batches
	CreateBatch(ctx context.Context, batch *models.Batch) error
	GetBatch(ctx context.Context, id string) (*models.Batch, error)
}

// BlobStorage persists uploaded file bytes under job-scoped paths
type BlobStorage interface {
	// Put atomically writes data and returns an opaque handle plus the
	// SHA-256 content hash computed during the write.
	Put(ctx context.Context, jobID, filename string, data []byte) (handle string, hash string, err error)
	Get(ctx context.Context, handle string) ([]byte, error)
	// Delete is idempotent; deleting a missing handle is not an error
	Delete(ctx context.Context, handle string) error
}

// StorageManager bundles the storage backends behind one lifecycle
type StorageManager interface {
	JobStorage() JobStorage
	BlobStorage() BlobStorage
	Close() error
}
