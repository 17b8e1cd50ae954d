package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nutriparse/internal/interfaces"
	"github.com/ternarybob/nutriparse/internal/models"
	"github.com/ternarybob/nutriparse/internal/services/metrics"
)

// payload is the JSON body posted to callback URLs. Receivers deduplicate
// on job_id; delivery is at-least-once.
type payload struct {
	JobID        string            `json:"job_id"`
	State        models.JobState   `json:"state"`
	Filename     string            `json:"filename"`
	ParsingType  models.ParsingType `json:"parsing_type"`
	Result       *models.Result    `json:"result,omitempty"`
	Error        *models.JobError  `json:"error,omitempty"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
	DeliveredAt  time.Time         `json:"delivered_at"`
}

// Notifier posts terminal-state notifications with retries. Deliveries run
// on their own goroutines so workers never block on a slow receiver.
type Notifier struct {
	client      *http.Client
	maxAttempts int
	backoffBase time.Duration
	logger      arbor.ILogger
	wg          sync.WaitGroup
}

var _ interfaces.CallbackNotifier = (*Notifier)(nil)

// NewNotifier creates a callback notifier
func NewNotifier(maxAttempts int, backoffBase, timeout time.Duration, logger arbor.ILogger) *Notifier {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if backoffBase <= 0 {
		backoffBase = 2 * time.Second
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Notifier{
		client:      &http.Client{Timeout: timeout},
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		logger:      logger,
	}
}

// Notify schedules delivery for a terminal job. Returns immediately.
func (n *Notifier) Notify(ctx context.Context, job *models.Job) {
	if job.CallbackURL == "" || !job.State.IsTerminal() {
		return
	}

	body := payload{
		JobID:       job.ID,
		State:       job.State,
		Filename:    job.Filename,
		ParsingType: job.ParsingType,
		Result:      job.Result,
		Error:       job.Error,
		FinishedAt:  job.FinishedAt,
		DeliveredAt: time.Now(),
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliver(job.ID, job.CallbackURL, body)
	}()
}

// Wait blocks until in-flight deliveries finish; used on shutdown
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) deliver(jobID, url string, body payload) {
	data, err := json.Marshal(body)
	if err != nil {
		n.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to marshal callback payload")
		return
	}

	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		err := n.post(url, data)
		if err == nil {
			n.logger.Info().
				Str("job_id", jobID).
				Str("url", url).
				Int("attempt", attempt).
				Msg("Callback delivered")
			metrics.ObserveCallback("delivered")
			return
		}

		n.logger.Warn().
			Err(err).
			Str("job_id", jobID).
			Str("url", url).
			Int("attempt", attempt).
			Msg("Callback delivery failed")

		if attempt < n.maxAttempts {
			time.Sleep(n.backoffBase << uint(attempt-1))
		}
	}

	n.logger.Error().
		Str("job_id", jobID).
		Str("url", url).
		Int("attempts", n.maxAttempts).
		Msg("Callback abandoned after max attempts")
	metrics.ObserveCallback("abandoned")
}

func (n *Notifier) post(url string, data []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}
	return nil
}
