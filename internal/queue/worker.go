package queue

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nutriparse/internal/common"
	"github.com/ternarybob/nutriparse/internal/interfaces"
	"github.com/ternarybob/nutriparse/internal/models"
	"github.com/ternarybob/nutriparse/internal/services/metrics"
)

const (
	idleBackoffMin   = 100 * time.Millisecond
	idleBackoffMax   = 2 * time.Second
	retryDelayBase   = 30 * time.Second
	retryDelayMax    = 10 * time.Minute
	progressCoalesce = 500 * time.Millisecond
	cancelPollEvery  = time.Second
)

// PoolConfig sizes and tunes the worker pool
type PoolConfig struct {
	Concurrency   int
	LeaseDuration time.Duration
	MaxAttempts   int
}

// WorkerStatus is a point-in-time snapshot of one worker slot
type WorkerStatus struct {
	WorkerID  string     `json:"worker_id"`
	JobID     string     `json:"job_id,omitempty"`
	Stage     string     `json:"stage,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// Pool runs the lease → parse → ack loop across a fixed set of workers.
// Each worker renews its lease while the pipeline runs and watches the job
// record for external cancellation.
type Pool struct {
	cfg      PoolConfig
	queue    interfaces.Queue
	jobs     interfaces.JobStorage
	blobs    interfaces.BlobStorage
	pipeline interfaces.Pipeline
	notifier interfaces.CallbackNotifier
	logger   arbor.ILogger

	mu      sync.Mutex
	status  map[string]*WorkerStatus
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewPool wires the worker pool; Start launches the workers
func NewPool(cfg PoolConfig, queue interfaces.Queue, jobs interfaces.JobStorage, blobs interfaces.BlobStorage, pipeline interfaces.Pipeline, notifier interfaces.CallbackNotifier, logger arbor.ILogger) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Pool{
		cfg:      cfg,
		queue:    queue,
		jobs:     jobs,
		blobs:    blobs,
		pipeline: pipeline,
		notifier: notifier,
		logger:   logger,
		status:   make(map[string]*WorkerStatus),
	}
}

// Start launches the worker goroutines
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	for i := 0; i < p.cfg.Concurrency; i++ {
		workerID := common.NewWorkerID()
		p.status[workerID] = &WorkerStatus{WorkerID: workerID}
		p.wg.Add(1)
		go p.runWorker(ctx, workerID)
	}

	p.logger.Info().
		Int("concurrency", p.cfg.Concurrency).
		Dur("lease_duration", p.cfg.LeaseDuration).
		Msg("Worker pool started")
}

// Stop signals the workers and waits for in-flight jobs to settle
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	p.started = false
	p.mu.Unlock()
	p.logger.Info().Msg("Worker pool stopped")
}

// Status reports a snapshot of every worker slot
func (p *Pool) Status() []WorkerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]WorkerStatus, 0, len(p.status))
	for _, st := range p.status {
		out = append(out, *st)
	}
	return out
}

func (p *Pool) setStatus(workerID, jobID, stage string, startedAt *time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.status[workerID]; ok {
		st.JobID = jobID
		st.Stage = stage
		if startedAt != nil || jobID == "" {
			st.StartedAt = startedAt
		}
	}
}

func (p *Pool) runWorker(ctx context.Context, workerID string) {
	defer p.wg.Done()

	backoff := idleBackoffMin
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.queue.Lease(ctx, workerID, p.cfg.LeaseDuration)
		if err != nil {
			if err != interfaces.ErrNoJob {
				p.logger.Warn().Err(err).Str("worker_id", workerID).Msg("Lease attempt failed")
			}
			// Jittered exponential idle backoff
			sleep := backoff + time.Duration(rand.Int63n(int64(backoff)/2+1))
			select {
			case <-ctx.Done():
				return
			case <-time.After(sleep):
			}
			if backoff *= 2; backoff > idleBackoffMax {
				backoff = idleBackoffMax
			}
			continue
		}

		backoff = idleBackoffMin
		p.process(ctx, workerID, job)
	}
}

// process drives one leased job to a terminal state or a retry
func (p *Pool) process(ctx context.Context, workerID string, job *models.Job) {
	now := time.Now()
	running, err := p.jobs.Transition(ctx, job.ID,
		[]models.JobState{models.JobStateLeased}, models.JobStateRunning,
		func(j *models.Job) error {
			if j.LeaseOwner != workerID {
				return interfaces.ErrLeaseLost
			}
			if j.StartedAt == nil {
				j.StartedAt = &now
			}
			return nil
		})
	if err != nil {
		p.logger.Warn().Err(err).
			Str("worker_id", workerID).
			Str("job_id", job.ID).
			Msg("Could not start leased job")
		return
	}
	job = running

	p.setStatus(workerID, job.ID, "starting", &now)
	defer p.setStatus(workerID, "", "", nil)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var watchers sync.WaitGroup
	watchers.Add(2)
	go p.renewLease(runCtx, &watchers, cancelRun, workerID, job.ID)
	go p.watchCancellation(runCtx, &watchers, cancelRun, job.ID)
	defer watchers.Wait()

	data, err := p.blobs.Get(runCtx, job.BlobHandle)
	if err != nil {
		p.settle(ctx, workerID, job, nil,
			models.NewJobError(models.ErrKindBlobIO, "failed to read stored document: %s", err))
		return
	}

	result, runErr := p.pipeline.Run(runCtx, job, data, p.progressSink(runCtx, workerID, job.ID))
	cancelRun()

	if runErr != nil && runCtx.Err() != nil {
		// Distinguish external cancellation from lease loss: a cancelled job
		// is already terminal, nothing left to ack.
		if current, getErr := p.jobs.Get(ctx, job.ID); getErr == nil && current.State == models.JobStateCancelled {
			p.logger.Info().
				Str("worker_id", workerID).
				Str("job_id", job.ID).
				Msg("Job cancelled while running")
			return
		}
		p.logger.Warn().
			Str("worker_id", workerID).
			Str("job_id", job.ID).
			Msg("Lease lost while running, abandoning job")
		return
	}

	if runErr != nil {
		p.settle(ctx, workerID, job, nil, models.AsJobError(runErr))
		return
	}
	p.settle(ctx, workerID, job, result, nil)
}

// settle commits the job outcome: completed, failed, or nacked for retry
func (p *Pool) settle(ctx context.Context, workerID string, job *models.Job, result *models.Result, jobErr *models.JobError) {
	if jobErr == nil {
		if err := p.queue.Ack(ctx, job.ID, workerID, models.JobStateCompleted, result, nil); err != nil {
			p.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to ack completed job")
			return
		}
		p.logger.Info().
			Str("worker_id", workerID).
			Str("job_id", job.ID).
			Str("result_type", string(result.Type)).
			Msg("Job completed")
		metrics.ObserveJobOutcome(string(job.ParsingType), string(models.JobStateCompleted), job.Duration())
		p.notifyTerminal(ctx, job.ID)
		return
	}

	if jobErr.Kind.IsTransient() && job.Attempts < p.cfg.MaxAttempts {
		delay := retryDelay(job.Attempts)
		if err := p.queue.Nack(ctx, job.ID, workerID, delay); err != nil {
			p.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to nack job for retry")
			return
		}
		p.logger.Info().
			Str("worker_id", workerID).
			Str("job_id", job.ID).
			Str("kind", string(jobErr.Kind)).
			Dur("retry_delay", delay).
			Int("attempts", job.Attempts).
			Msg("Transient failure, job requeued")
		return
	}

	if err := p.queue.Ack(ctx, job.ID, workerID, models.JobStateFailed, nil, jobErr); err != nil {
		p.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to ack failed job")
		return
	}
	p.logger.Warn().
		Str("worker_id", workerID).
		Str("job_id", job.ID).
		Str("kind", string(jobErr.Kind)).
		Str("stage", jobErr.Stage).
		Msg("Job failed")
	metrics.ObserveJobOutcome(string(job.ParsingType), string(models.JobStateFailed), job.Duration())
	p.notifyTerminal(ctx, job.ID)
}

func (p *Pool) notifyTerminal(ctx context.Context, jobID string) {
	if p.notifier == nil {
		return
	}
	job, err := p.jobs.Get(ctx, jobID)
	if err != nil || job.CallbackURL == "" {
		return
	}
	p.notifier.Notify(ctx, job)
}

// retryDelay is exponential in the attempt count, capped at ten minutes
func retryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := retryDelayBase << uint(attempts-1)
	if delay > retryDelayMax || delay <= 0 {
		delay = retryDelayMax
	}
	return delay
}

// renewLease extends the lease at a third of its duration. Losing the lease
// cancels the run so the pipeline stops promptly.
func (p *Pool) renewLease(ctx context.Context, wg *sync.WaitGroup, cancelRun context.CancelFunc, workerID, jobID string) {
	defer wg.Done()

	ticker := time.NewTicker(p.cfg.LeaseDuration / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.queue.Renew(ctx, jobID, workerID, p.cfg.LeaseDuration); err != nil {
				p.logger.Warn().
					Err(err).
					Str("worker_id", workerID).
					Str("job_id", jobID).
					Msg("Lease renewal failed, cancelling run")
				cancelRun()
				return
			}
		}
	}
}

// watchCancellation polls the job record and stops the run when the job
// reaches a terminal state behind the worker's back.
func (p *Pool) watchCancellation(ctx context.Context, wg *sync.WaitGroup, cancelRun context.CancelFunc, jobID string) {
	defer wg.Done()

	ticker := time.NewTicker(cancelPollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := p.jobs.Get(ctx, jobID)
			if err != nil || job.State.IsTerminal() {
				cancelRun()
				return
			}
		}
	}
}

// progressSink coalesces pipeline progress writes to one per interval,
// always flushing stage changes immediately.
func (p *Pool) progressSink(ctx context.Context, workerID, jobID string) interfaces.ProgressSink {
	var mu sync.Mutex
	var lastWrite time.Time
	var lastStage string

	return func(stage string, percent int) {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		if stage == lastStage && now.Sub(lastWrite) < progressCoalesce {
			return
		}
		lastStage = stage
		lastWrite = now

		p.setStatus(workerID, jobID, stage, nil)
		if err := p.jobs.UpdateProgress(ctx, jobID, stage, percent); err != nil {
			p.logger.Debug().Err(err).Str("job_id", jobID).Msg("Progress write skipped")
		}
	}
}
