package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique job ID with the "job_" prefix
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewBatchID generates a unique batch ID with the "batch_" prefix
func NewBatchID() string {
	return "batch_" + uuid.New().String()
}

// NewRequestID generates a unique request ID for tracing
func NewRequestID() string {
	return "req_" + uuid.New().String()
}

// NewWorkerID generates a unique worker identity for lease ownership
func NewWorkerID() string {
	return "worker_" + uuid.New().String()
}
