package queue

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nutriparse/internal/interfaces"
)

// Sweeper periodically reclaims jobs whose lease deadline passed, either
// requeueing them or failing those with no attempts left.
type Sweeper struct {
	queue    interfaces.Queue
	interval time.Duration
	logger   arbor.ILogger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewSweeper creates a sweeper with the given cadence
func NewSweeper(queue interfaces.Queue, interval time.Duration, logger arbor.ILogger) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{
		queue:    queue,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the sweep loop. Safe to call once.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)
	s.logger.Info().Dur("interval", s.interval).Msg("Lease sweeper started")
}

// Stop halts the loop and waits for the in-flight sweep to finish
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.cancel()
	<-s.done
	s.started = false
	s.logger.Info().Msg("Lease sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			requeued, failed, err := s.queue.SweepExpired(ctx)
			if err != nil {
				s.logger.Error().Err(err).Msg("Lease sweep failed")
				continue
			}
			if requeued > 0 || failed > 0 {
				s.logger.Info().
					Int("requeued", requeued).
					Int("failed", failed).
					Msg("Lease sweep reclaimed expired jobs")
			}
		}
	}
}
