package models

import (
	"fmt"
)

// ErrorKind classifies job and validation failures. The API maps kinds to
// semantic HTTP statuses; workers use them to choose retry vs terminal fail.
type ErrorKind string

const (
	// Validation failures, surfaced at request time, never enqueued
	ErrKindTooLarge           ErrorKind = "too_large"
	ErrKindEmpty              ErrorKind = "empty"
	ErrKindWrongExtension     ErrorKind = "wrong_extension"
	ErrKindNotPDF             ErrorKind = "not_pdf"
	ErrKindCorruptSignature   ErrorKind = "corrupt_signature"
	ErrKindSuspectedMalicious ErrorKind = "suspected_malicious"
	ErrKindInvalidFilename    ErrorKind = "invalid_filename"

	// Transient failures, retried via nack up to max_attempts
	ErrKindBlobIO           ErrorKind = "blob_io"
	ErrKindStoreUnavailable ErrorKind = "store_unavailable"
	ErrKindOCRTransient     ErrorKind = "ocr_transient"

	// Permanent failures, terminal on first occurrence
	ErrKindUnparseable           ErrorKind = "unparseable"
	ErrKindUnsupportedPDFVariant ErrorKind = "unsupported_pdf_variant"
	ErrKindExtractorBug          ErrorKind = "extractor_bug"

	ErrKindDeadlineExceeded ErrorKind = "deadline_exceeded"
	ErrKindExhaustedRetries ErrorKind = "exhausted_retries"
	ErrKindCancelled        ErrorKind = "cancelled"
	ErrKindServerError      ErrorKind = "server_error"
)

// IsTransient reports whether a failure of this kind should be retried
func (k ErrorKind) IsTransient() bool {
	switch k {
	case ErrKindBlobIO, ErrKindStoreUnavailable, ErrKindOCRTransient:
		return true
	default:
		return false
	}
}

// JobError is the structured error recorded on a failed job
type JobError struct {
	Kind    ErrorKind         `json:"kind"`
	Message string            `json:"message"`
	Stage   string            `json:"stage,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *JobError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s (stage %s): %s", e.Kind, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewJobError creates a job error with the given kind and message
func NewJobError(kind ErrorKind, format string, args ...interface{}) *JobError {
	return &JobError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithStage annotates the error with the pipeline stage that raised it
func (e *JobError) WithStage(stage string) *JobError {
	e.Stage = stage
	return e
}

// AsJobError unwraps err into a *JobError, wrapping unknown errors as
// extractor bugs so workers always have a kind to act on.
func AsJobError(err error) *JobError {
	if err == nil {
		return nil
	}
	if je, ok := err.(*JobError); ok {
		return je
	}
	return NewJobError(ErrKindExtractorBug, "%s", err.Error())
}
