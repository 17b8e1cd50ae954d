package interfaces

import (
	"context"

	"github.com/ternarybob/nutriparse/internal/models"
)

// FileInfo is the metadata produced by a successful upload validation
type FileInfo struct {
	Filename      string `json:"filename"`
	Size          int64  `json:"size"`
	MIME          string `json:"mime"`
	Hash          string `json:"hash"`
	PageCountHint int    `json:"page_count_hint,omitempty"`
	Warning       string `json:"warning,omitempty"`
}

// UploadValidator enforces size, extension, MIME, signature and
// malicious-content checks on uploads before any state is created.
type UploadValidator interface {
	Validate(data []byte, filename string, sync bool) (*FileInfo, *models.JobError)
	SanitizeFilename(filename, hash string) string
}

// CallbackNotifier delivers terminal-state notifications to callback URLs
// with at-least-once semantics.
type CallbackNotifier interface {
	Notify(ctx context.Context, job *models.Job)
}

// CleanupService removes terminal jobs and their blobs past retention
type CleanupService interface {
	Run(ctx context.Context, retentionDays int) (int, error)
	Start() error
	Stop()
}
