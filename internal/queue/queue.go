package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nutriparse/internal/interfaces"
	"github.com/ternarybob/nutriparse/internal/models"
	storebadger "github.com/ternarybob/nutriparse/internal/storage/badger"
)

const readyPrefix = "queue:ready:"

// readyEntry is the value stored at each ready-index key. VisibleAt gates
// delayed retries without disturbing the (class, created_at) key order.
type readyEntry struct {
	JobID     string    `json:"job_id"`
	VisibleAt time.Time `json:"visible_at"`
}

// BadgerQueue is a priority FIFO over the shared badger instance. Ready
// entries are keyed by (priority class, created_at, job_id) so iteration
// order is exactly dispatch order; lease state itself lives on the job
// record, guarded by the job store's compare-and-swap transitions.
type BadgerQueue struct {
	db          *storebadger.BadgerDB
	jobs        interfaces.JobStorage
	logger      arbor.ILogger
	maxAttempts int
}

// NewBadgerQueue creates a queue over the shared badger connection
func NewBadgerQueue(db *storebadger.BadgerDB, jobs interfaces.JobStorage, maxAttempts int, logger arbor.ILogger) *BadgerQueue {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &BadgerQueue{
		db:          db,
		jobs:        jobs,
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

// readyKey builds the ordered index key. created_at is zero-padded
// nanoseconds so lexicographic order equals chronological order.
func readyKey(priority models.Priority, createdAt time.Time, jobID string) []byte {
	return []byte(fmt.Sprintf("%s%d:%020d:%s", readyPrefix, priority.Class(), createdAt.UnixNano(), jobID))
}

func (q *BadgerQueue) putEntry(key []byte, entry readyEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal ready entry: %w", err)
	}
	return q.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		return txn.Set(key, data)
	})
}

func (q *BadgerQueue) deleteEntry(key []byte) error {
	return q.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		err := txn.Delete(key)
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// Enqueue transitions pending → queued and adds the ready entry. If the
// entry write fails the transition is rolled back so the job stays pending.
func (q *BadgerQueue) Enqueue(ctx context.Context, job *models.Job) error {
	queued, err := q.jobs.Transition(ctx, job.ID, []models.JobState{models.JobStatePending}, models.JobStateQueued, nil)
	if err != nil {
		return fmt.Errorf("enqueue transition failed: %w", err)
	}

	key := readyKey(queued.Priority, queued.CreatedAt, queued.ID)
	if err := q.putEntry(key, readyEntry{JobID: queued.ID, VisibleAt: time.Now()}); err != nil {
		if _, rbErr := q.jobs.Transition(ctx, job.ID, []models.JobState{models.JobStateQueued}, models.JobStatePending, nil); rbErr != nil {
			q.logger.Error().Err(rbErr).Str("job_id", job.ID).Msg("Failed to roll back enqueue transition")
		}
		return fmt.Errorf("failed to write ready entry: %w", err)
	}

	q.logger.Debug().
		Str("job_id", job.ID).
		Str("priority", string(queued.Priority)).
		Msg("Job enqueued")
	return nil
}

// candidate pairs an index key with its decoded entry
type candidate struct {
	key   []byte
	entry readyEntry
}

// scanReady returns ready entries in dispatch order. Entries whose
// visibility is in the future are skipped but not removed.
func (q *BadgerQueue) scanReady(limit int) ([]candidate, error) {
	var out []candidate
	now := time.Now()

	err := q.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(readyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var entry readyEntry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				continue // skip undecodable entries; sweeper reaps them
			}
			if entry.VisibleAt.After(now) {
				continue
			}
			out = append(out, candidate{key: item.KeyCopy(nil), entry: entry})
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan ready set: %w", err)
	}
	return out, nil
}

// Lease claims the next ready job for workerID. The queued → leased
// compare-and-swap is the arbiter when several workers race; losers just
// move on to the next candidate.
func (q *BadgerQueue) Lease(ctx context.Context, workerID string, duration time.Duration) (*models.Job, error) {
	candidates, err := q.scanReady(16)
	if err != nil {
		return nil, err
	}

	for _, c := range candidates {
		deadline := time.Now().Add(duration)
		job, err := q.jobs.Transition(ctx, c.entry.JobID,
			[]models.JobState{models.JobStateQueued}, models.JobStateLeased,
			func(j *models.Job) error {
				j.LeaseOwner = workerID
				j.LeaseDeadline = &deadline
				j.Attempts++
				return nil
			})
		if err != nil {
			// Lost the race, or the job was cancelled or deleted while
			// waiting. Remove entries that can never dispatch again.
			if current, getErr := q.jobs.Get(ctx, c.entry.JobID); getErr == interfaces.ErrNotFound || (getErr == nil && current.State.IsTerminal()) {
				if delErr := q.deleteEntry(c.key); delErr != nil {
					q.logger.Warn().Err(delErr).Str("job_id", c.entry.JobID).Msg("Failed to drop stale ready entry")
				}
			}
			continue
		}

		if err := q.deleteEntry(c.key); err != nil {
			q.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to remove leased ready entry")
		}

		q.logger.Debug().
			Str("job_id", job.ID).
			Str("worker_id", workerID).
			Int("attempts", job.Attempts).
			Msg("Job leased")
		return job, nil
	}

	return nil, interfaces.ErrNoJob
}

// Renew extends the lease deadline iff workerID still owns the job. The
// deadline write leaves state alone, so a renewal tick racing the leased to
// running move cannot flip the job back.
func (q *BadgerQueue) Renew(ctx context.Context, jobID, workerID string, duration time.Duration) error {
	if err := q.jobs.ExtendLease(ctx, jobID, workerID, time.Now().Add(duration)); err != nil {
		return interfaces.ErrLeaseLost
	}
	return nil
}

// Ack commits a terminal state for a job the worker owns
func (q *BadgerQueue) Ack(ctx context.Context, jobID, workerID string, terminal models.JobState, result *models.Result, jobErr *models.JobError) error {
	if !terminal.IsTerminal() {
		return fmt.Errorf("ack requires a terminal state, got %s", terminal)
	}

	_, err := q.jobs.Transition(ctx, jobID,
		[]models.JobState{models.JobStateLeased, models.JobStateRunning}, terminal,
		func(j *models.Job) error {
			if j.LeaseOwner != workerID {
				return interfaces.ErrLeaseLost
			}
			j.Result = result
			j.Error = jobErr
			return nil
		})
	if err != nil {
		if err == interfaces.ErrLeaseLost {
			return err
		}
		return fmt.Errorf("ack failed: %w", err)
	}

	q.logger.Debug().
		Str("job_id", jobID).
		Str("state", string(terminal)).
		Msg("Job acknowledged")
	return nil
}

// Nack returns a job to the ready set after a cooperative failure. The
// re-lease is delayed by retryDelay; attempts exceeding the cap fail the
// job with exhausted_retries instead.
func (q *BadgerQueue) Nack(ctx context.Context, jobID, workerID string, retryDelay time.Duration) error {
	job, err := q.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.LeaseOwner != workerID {
		return interfaces.ErrLeaseLost
	}

	if job.Attempts >= q.maxAttempts {
		_, err := q.jobs.Transition(ctx, jobID,
			[]models.JobState{models.JobStateLeased, models.JobStateRunning}, models.JobStateFailed,
			func(j *models.Job) error {
				if j.LeaseOwner != workerID {
					return interfaces.ErrLeaseLost
				}
				j.Error = models.NewJobError(models.ErrKindExhaustedRetries,
					"failed after %d attempts", j.Attempts)
				return nil
			})
		return err
	}

	requeued, err := q.jobs.Transition(ctx, jobID,
		[]models.JobState{models.JobStateLeased, models.JobStateRunning}, models.JobStateQueued,
		func(j *models.Job) error {
			if j.LeaseOwner != workerID {
				return interfaces.ErrLeaseLost
			}
			return nil
		})
	if err != nil {
		return err
	}

	key := readyKey(requeued.Priority, requeued.CreatedAt, requeued.ID)
	if err := q.putEntry(key, readyEntry{JobID: requeued.ID, VisibleAt: time.Now().Add(retryDelay)}); err != nil {
		return fmt.Errorf("failed to requeue job: %w", err)
	}

	q.logger.Debug().
		Str("job_id", jobID).
		Dur("retry_delay", retryDelay).
		Int("attempts", requeued.Attempts).
		Msg("Job nacked for retry")
	return nil
}

// SweepExpired requeues jobs whose lease deadline passed and fails those
// that have exhausted their attempts. Runs on the sweeper cadence.
func (q *BadgerQueue) SweepExpired(ctx context.Context) (int, int, error) {
	jobs, _, err := q.jobs.List(ctx, &interfaces.JobListOptions{
		States: []models.JobState{models.JobStateLeased, models.JobStateRunning},
	})
	if err != nil {
		return 0, 0, fmt.Errorf("sweep failed to list leased jobs: %w", err)
	}

	now := time.Now()
	requeued, failed := 0, 0

	for _, job := range jobs {
		if job.LeaseDeadline == nil || job.LeaseDeadline.After(now) {
			continue
		}

		if job.Attempts+1 > q.maxAttempts {
			_, err := q.jobs.Transition(ctx, job.ID,
				[]models.JobState{models.JobStateLeased, models.JobStateRunning}, models.JobStateFailed,
				func(j *models.Job) error {
					j.Attempts++
					j.Error = models.NewJobError(models.ErrKindExhaustedRetries,
						"lease expired after %d attempts", j.Attempts)
					return nil
				})
			if err != nil {
				q.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Sweeper failed to fail exhausted job")
				continue
			}
			failed++
			q.logger.Warn().
				Str("job_id", job.ID).
				Str("lost_owner", job.LeaseOwner).
				Msg("Job failed: retries exhausted after lease expiry")
			continue
		}

		fresh, err := q.jobs.Transition(ctx, job.ID,
			[]models.JobState{models.JobStateLeased, models.JobStateRunning}, models.JobStateQueued,
			func(j *models.Job) error {
				j.Attempts++
				return nil
			})
		if err != nil {
			continue // the worker came back or the job finished meanwhile
		}

		key := readyKey(fresh.Priority, fresh.CreatedAt, fresh.ID)
		if err := q.putEntry(key, readyEntry{JobID: fresh.ID, VisibleAt: now}); err != nil {
			q.logger.Error().Err(err).Str("job_id", fresh.ID).Msg("Sweeper failed to restore ready entry")
			continue
		}
		requeued++
		q.logger.Info().
			Str("job_id", fresh.ID).
			Str("lost_owner", job.LeaseOwner).
			Int("attempts", fresh.Attempts).
			Msg("Expired lease requeued")
	}

	return requeued, failed, nil
}

// Depth counts ready (visible or delayed) entries
func (q *BadgerQueue) Depth(ctx context.Context) (int, error) {
	count := 0
	err := q.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(readyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
