package models

import (
	"time"
)

// JobState represents the lifecycle state of a parse job
type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateQueued    JobState = "queued"
	JobStateLeased    JobState = "leased"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateCancelled JobState = "cancelled"
)

// IsTerminal returns true for states no transition leaves
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateFailed || s == JobStateCancelled
}

// IsActive returns true while a worker may still write progress
func (s JobState) IsActive() bool {
	return s == JobStateQueued || s == JobStateLeased || s == JobStateRunning
}

// Priority controls dispatch preference. High preempts normal preempts low
// at lease time only; a running job is never interrupted.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Class returns the dispatch order class; lower leases first.
func (p Priority) Class() uint8 {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// ParsePriority normalizes a priority string, defaulting to normal
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return Priority(s)
	default:
		return PriorityNormal
	}
}

// ParsingType selects the extractor applied to a document
type ParsingType string

const (
	ParsingTypeAuto           ParsingType = "auto"
	ParsingTypeNutritionLabel ParsingType = "nutrition_label"
	ParsingTypeRecipe         ParsingType = "recipe"
	ParsingTypeDietGuide      ParsingType = "diet_guide"
)

// Valid reports whether t is one of the four accepted parsing types
func (t ParsingType) Valid() bool {
	switch t {
	case ParsingTypeAuto, ParsingTypeNutritionLabel, ParsingTypeRecipe, ParsingTypeDietGuide:
		return true
	default:
		return false
	}
}

// Job is the central record of one unit of parsing work.
//
// Invariants maintained by the job store:
//   - progress is 0..100 and non-decreasing while the job is active
//   - progress = 100 iff state is completed or failed
//   - lease_owner and lease_deadline are set iff state is leased or running
//   - result and error are mutually exclusive and only set in terminal states
//   - updated_at increases on every write (optimistic lock token)
type Job struct {
	ID          string      `json:"id"`
	BatchID     string      `json:"batch_id,omitempty"`
	Filename    string      `json:"filename"`
	SizeBytes   int64       `json:"size_bytes"`
	ContentHash string      `json:"content_hash"`
	BlobHandle  string      `json:"blob_handle"`
	ParsingType ParsingType `json:"parsing_type"`
	Priority    Priority    `json:"priority"`

	State    JobState `json:"state"`
	Progress int      `json:"progress"`
	Stage    string   `json:"stage,omitempty"`
	Attempts int      `json:"attempts"`

	LeaseOwner    string     `json:"lease_owner,omitempty"`
	LeaseDeadline *time.Time `json:"lease_deadline,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	CallbackURL string `json:"callback_url,omitempty"`

	Result *Result   `json:"result,omitempty"`
	Error  *JobError `json:"error,omitempty"`
}

// NewJob creates a job record in the initial pending state
func NewJob(id, filename string, size int64, hash, blobHandle string, parsingType ParsingType, priority Priority) *Job {
	now := time.Now()
	return &Job{
		ID:          id,
		Filename:    filename,
		SizeBytes:   size,
		ContentHash: hash,
		BlobHandle:  blobHandle,
		ParsingType: parsingType,
		Priority:    priority,
		State:       JobStatePending,
		Progress:    0,
		Attempts:    0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Duration returns elapsed processing time, zero until the job started
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if j.FinishedAt != nil {
		end = *j.FinishedAt
	}
	return end.Sub(*j.StartedAt)
}

// Clone returns a deep copy of the job record
func (j *Job) Clone() *Job {
	clone := *j
	if j.LeaseDeadline != nil {
		t := *j.LeaseDeadline
		clone.LeaseDeadline = &t
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		clone.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		clone.FinishedAt = &t
	}
	if j.Result != nil {
		r := *j.Result
		clone.Result = &r
	}
	if j.Error != nil {
		e := *j.Error
		clone.Error = &e
	}
	return &clone
}
