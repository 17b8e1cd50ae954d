package badger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nutriparse/internal/interfaces"
	"github.com/ternarybob/nutriparse/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JobStorage implements the JobStorage interface for Badger.
// Per-job serialization is enforced with striped locks so that
// compare-and-swap transitions never interleave for the same id.
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	locks  [64]sync.Mutex
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) lock(id string) *sync.Mutex {
	var h uint32
	for i := 0; i < len(id); i++ {
		h = h*31 + uint32(id[i])
	}
	return &s.locks[h%uint32(len(s.locks))]
}

// touch bumps updated_at, keeping it strictly increasing even when two
// writes land within clock resolution.
func touch(job *models.Job) {
	now := time.Now()
	if !now.After(job.UpdatedAt) {
		now = job.UpdatedAt.Add(time.Microsecond)
	}
	job.UpdatedAt = now
}

func (s *JobStorage) Create(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if job.State != models.JobStatePending {
		return fmt.Errorf("new jobs must be pending, got %s", job.State)
	}

	mu := s.lock(job.ID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.db.Store().Insert(job.ID, *job); err != nil {
		if err == badgerhold.ErrKeyExists {
			return fmt.Errorf("job %s already exists: %w", job.ID, interfaces.ErrConflict)
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Debug().
		Str("job_id", job.ID).
		Str("parsing_type", string(job.ParsingType)).
		Str("priority", string(job.Priority)).
		Msg("Job record created")
	return nil
}

func (s *JobStorage) get(id string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(id, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *JobStorage) Get(ctx context.Context, id string) (*models.Job, error) {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()
	return s.get(id)
}

func (s *JobStorage) Transition(ctx context.Context, id string, from []models.JobState, to models.JobState, mutate func(*models.Job) error) (*models.Job, error) {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	job, err := s.get(id)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, f := range from {
		if job.State == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("job %s is %s, wanted one of %v: %w", id, job.State, from, interfaces.ErrConflict)
	}

	job.State = to
	if mutate != nil {
		if err := mutate(job); err != nil {
			return nil, err
		}
	}

	// Terminal-state invariants: progress completes, lease clears, and the
	// finish timestamp lands exactly once.
	switch to {
	case models.JobStateCompleted, models.JobStateFailed:
		job.Progress = 100
		fallthrough
	case models.JobStateCancelled:
		job.LeaseOwner = ""
		job.LeaseDeadline = nil
		if job.FinishedAt == nil {
			now := time.Now()
			job.FinishedAt = &now
		}
	case models.JobStatePending, models.JobStateQueued:
		job.LeaseOwner = ""
		job.LeaseDeadline = nil
	}

	touch(job)

	if err := s.db.Store().Upsert(job.ID, *job); err != nil {
		return nil, fmt.Errorf("failed to persist transition: %w", err)
	}

	s.logger.Debug().
		Str("job_id", id).
		Str("state", string(to)).
		Int("attempts", job.Attempts).
		Msg("Job state transition")
	return job, nil
}

// ExtendLease updates only the deadline. A renewal racing a leased to
// running move must not flip the state back, so state is left untouched.
func (s *JobStorage) ExtendLease(ctx context.Context, id, workerID string, deadline time.Time) error {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	job, err := s.get(id)
	if err != nil {
		return err
	}
	if !job.State.IsActive() || job.LeaseOwner != workerID {
		return interfaces.ErrConflict
	}

	d := deadline
	job.LeaseDeadline = &d
	touch(job)

	if err := s.db.Store().Upsert(job.ID, *job); err != nil {
		return fmt.Errorf("failed to persist lease renewal: %w", err)
	}
	return nil
}

func (s *JobStorage) UpdateProgress(ctx context.Context, id string, stage string, percent int) error {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	job, err := s.get(id)
	if err != nil {
		return err
	}

	if job.State != models.JobStateLeased && job.State != models.JobStateRunning {
		return fmt.Errorf("progress not writable in state %s: %w", job.State, interfaces.ErrConflict)
	}

	if percent < 0 {
		percent = 0
	}
	if percent > 99 {
		// 100 is reserved for terminal transitions
		percent = 99
	}
	if percent > job.Progress {
		job.Progress = percent
	}
	if stage != "" {
		job.Stage = stage
	}
	touch(job)

	return s.db.Store().Upsert(job.ID, *job)
}

func (s *JobStorage) List(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, int, error) {
	var all []models.Job
	if err := s.db.Store().Find(&all, nil); err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}

	var filtered []*models.Job
	for i := range all {
		job := &all[i]
		if opts != nil && !matchJob(job, opts) {
			continue
		}
		filtered = append(filtered, job)
	}

	// Newest first
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	total := len(filtered)
	if opts != nil {
		if opts.Offset > 0 {
			if opts.Offset >= len(filtered) {
				return []*models.Job{}, total, nil
			}
			filtered = filtered[opts.Offset:]
		}
		if opts.Limit > 0 && opts.Limit < len(filtered) {
			filtered = filtered[:opts.Limit]
		}
	}

	return filtered, total, nil
}

func matchJob(job *models.Job, opts *interfaces.JobListOptions) bool {
	if len(opts.States) > 0 {
		found := false
		for _, st := range opts.States {
			if job.State == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if opts.ParsingType != "" && job.ParsingType != opts.ParsingType {
		return false
	}
	if opts.BatchID != "" && job.BatchID != opts.BatchID {
		return false
	}
	if !opts.CreatedFrom.IsZero() && job.CreatedAt.Before(opts.CreatedFrom) {
		return false
	}
	if !opts.CreatedTo.IsZero() && job.CreatedAt.After(opts.CreatedTo) {
		return false
	}
	return true
}

func (s *JobStorage) Delete(ctx context.Context, id string) error {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	if err := s.db.Store().Delete(id, &models.Job{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return interfaces.ErrNotFound
		}
		return fmt.Errorf("failed to delete job: %w", err)
	}

	// Tombstone so result reads can answer 410 instead of 404
	tomb := jobTombstone{JobID: id, DeletedAt: time.Now()}
	if err := s.db.Store().Upsert(id, &tomb); err != nil {
		s.logger.Warn().Err(err).Str("job_id", id).Msg("Failed to record job tombstone")
	}

	s.logger.Debug().Str("job_id", id).Msg("Job record deleted")
	return nil
}

// jobTombstone marks a deleted job so the API can distinguish 404 from 410
type jobTombstone struct {
	JobID     string `badgerhold:"key"`
	DeletedAt time.Time
}

// WasDeleted reports whether the job existed and has been removed
func (s *JobStorage) WasDeleted(ctx context.Context, id string) bool {
	var tomb jobTombstone
	return s.db.Store().Get(id, &tomb) == nil
}

func (s *JobStorage) Stats(ctx context.Context, window time.Duration) (*interfaces.JobStats, error) {
	var all []models.Job
	if err := s.db.Store().Find(&all, nil); err != nil {
		return nil, fmt.Errorf("failed to load jobs for stats: %w", err)
	}

	cutoff := time.Time{}
	if window > 0 {
		cutoff = time.Now().Add(-window)
	}

	stats := &interfaces.JobStats{
		ByState: make(map[models.JobState]int),
	}

	var durations time.Duration
	var finished int
	for i := range all {
		job := &all[i]
		if !cutoff.IsZero() && job.CreatedAt.Before(cutoff) {
			continue
		}
		stats.Total++
		stats.ByState[job.State]++
		if job.StartedAt != nil && job.FinishedAt != nil {
			durations += job.FinishedAt.Sub(*job.StartedAt)
			finished++
		}
	}

	completed := stats.ByState[models.JobStateCompleted]
	failed := stats.ByState[models.JobStateFailed]
	if completed+failed > 0 {
		stats.SuccessRate = float64(completed) / float64(completed+failed)
	}
	if finished > 0 {
		stats.AvgDuration = durations / time.Duration(finished)
	}

	return stats, nil
}

func (s *JobStorage) Cleanup(ctx context.Context, olderThan time.Time, states []models.JobState) ([]*models.Job, error) {
	var all []models.Job
	if err := s.db.Store().Find(&all, nil); err != nil {
		return nil, fmt.Errorf("failed to load jobs for cleanup: %w", err)
	}

	if len(states) == 0 {
		states = []models.JobState{models.JobStateCompleted, models.JobStateFailed, models.JobStateCancelled}
	}

	var deleted []*models.Job
	for i := range all {
		job := &all[i]
		if job.CreatedAt.After(olderThan) {
			continue
		}
		match := false
		for _, st := range states {
			if job.State == st {
				match = true
				break
			}
		}
		if !match {
			continue
		}
		if err := s.Delete(ctx, job.ID); err != nil && err != interfaces.ErrNotFound {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Cleanup failed to delete job")
			continue
		}
		deleted = append(deleted, job)
	}

	s.logger.Info().
		Int("deleted", len(deleted)).
		Str("older_than", olderThan.Format(time.RFC3339)).
		Msg("Cleanup removed terminal jobs")
	return deleted, nil
}

func (s *JobStorage) CreateBatch(ctx context.Context, batch *models.Batch) error {
	if batch.ID == "" {
		return fmt.Errorf("batch ID is required")
	}
	if err := s.db.Store().Insert(batch.ID, *batch); err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}
	return nil
}

func (s *JobStorage) GetBatch(ctx context.Context, id string) (*models.Batch, error) {
	var batch models.Batch
	if err := s.db.Store().Get(id, &batch); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return &batch, nil
}
