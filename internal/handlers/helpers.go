package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ternarybob/nutriparse/internal/models"
)

type contextKey string

// RequestIDKey carries the per-request id through the context
const RequestIDKey contextKey = "request_id"

// Envelope is the uniform response wrapper for every JSON endpoint
type Envelope struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// RequestID extracts the request id placed in the context by middleware
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// WriteJSON writes a raw JSON response with the specified status code
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteEnvelope writes the standard response envelope
func WriteEnvelope(w http.ResponseWriter, r *http.Request, statusCode int, message string, data interface{}) error {
	return WriteJSON(w, statusCode, Envelope{
		Code:      statusCode,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
		RequestID: RequestID(r.Context()),
	})
}

// WriteError writes an error envelope
func WriteError(w http.ResponseWriter, r *http.Request, statusCode int, message string) error {
	return WriteEnvelope(w, r, statusCode, message, nil)
}

// WriteJobError maps a job error kind onto its HTTP status and writes the
// envelope carrying the structured error.
func WriteJobError(w http.ResponseWriter, r *http.Request, jobErr *models.JobError) error {
	return WriteEnvelope(w, r, StatusForKind(jobErr.Kind), jobErr.Message, map[string]interface{}{
		"error": jobErr,
	})
}

// StatusForKind maps error kinds to semantic HTTP status codes
func StatusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.ErrKindTooLarge:
		return http.StatusRequestEntityTooLarge
	case models.ErrKindEmpty, models.ErrKindWrongExtension, models.ErrKindNotPDF,
		models.ErrKindCorruptSignature, models.ErrKindSuspectedMalicious,
		models.ErrKindInvalidFilename:
		return http.StatusBadRequest
	case models.ErrKindUnparseable, models.ErrKindUnsupportedPDFVariant:
		return http.StatusUnprocessableEntity
	case models.ErrKindDeadlineExceeded:
		return http.StatusGatewayTimeout
	case models.ErrKindCancelled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RequireMethod validates the HTTP method, writing 405 on mismatch
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		WriteError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

// GetPaginationParams extracts page (0-indexed) and page size from the
// query string. Page size defaults to 20, capped at 100.
func GetPaginationParams(r *http.Request) (page, pageSize int) {
	page = 0
	pageSize = 20

	if v := r.URL.Query().Get("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p >= 0 {
			page = p
		}
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		if s, err := strconv.Atoi(v); err == nil && s > 0 {
			pageSize = s
		}
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
