package models

import (
	"time"
)

// Batch groups jobs submitted together via the batch endpoint.
// Aggregates are derived from the constituent jobs, never stored.
type Batch struct {
	ID          string    `json:"id"`
	Description string    `json:"description,omitempty"`
	JobIDs      []string  `json:"job_ids"`
	CreatedAt   time.Time `json:"created_at"`
}

// BatchStatus is the derived per-state aggregate for a batch
type BatchStatus struct {
	BatchID   string           `json:"batch_id"`
	Total     int              `json:"total"`
	ByState   map[JobState]int `json:"by_state"`
	CreatedAt time.Time        `json:"created_at"`
}

// Aggregate computes batch totals from its jobs
func (b *Batch) Aggregate(jobs []*Job) *BatchStatus {
	status := &BatchStatus{
		BatchID:   b.ID,
		Total:     len(jobs),
		ByState:   make(map[JobState]int),
		CreatedAt: b.CreatedAt,
	}
	for _, j := range jobs {
		status.ByState[j.State]++
	}
	return status
}
