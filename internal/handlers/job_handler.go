package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nutriparse/internal/interfaces"
	"github.com/ternarybob/nutriparse/internal/models"
)

// JobHandler serves job status, result, history, batch, and deletion
type JobHandler struct {
	jobs   interfaces.JobStorage
	blobs  interfaces.BlobStorage
	logger arbor.ILogger
}

// NewJobHandler creates the job handler
func NewJobHandler(jobs interfaces.JobStorage, blobs interfaces.BlobStorage, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		jobs:   jobs,
		blobs:  blobs,
		logger: logger,
	}
}

// StatusHandler returns the lifecycle snapshot for one job
func (h *JobHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/parse/status/")
	job, ok := h.fetch(w, r, id)
	if !ok {
		return
	}

	WriteEnvelope(w, r, http.StatusOK, "ok", map[string]interface{}{
		"job_id":   job.ID,
		"state":    job.State,
		"progress": job.Progress,
		"stage":    job.Stage,
		"attempts": job.Attempts,
	})
}

// ResultHandler returns the parse result once the job completed. A job
// still in flight answers 202 with its progress; failed and cancelled jobs
// return their recorded error.
func (h *JobHandler) ResultHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/parse/result/")
	job, ok := h.fetch(w, r, id)
	if !ok {
		return
	}

	switch job.State {
	case models.JobStateCompleted:
		WriteEnvelope(w, r, http.StatusOK, "completed", job.Result)
	case models.JobStateFailed:
		WriteEnvelope(w, r, http.StatusOK, string(job.State), map[string]interface{}{
			"state": job.State,
			"error": job.Error,
		})
	case models.JobStateCancelled:
		// Cancelled jobs record no error; synthesize one for the response
		WriteEnvelope(w, r, http.StatusOK, string(job.State), map[string]interface{}{
			"state": job.State,
			"error": models.NewJobError(models.ErrKindCancelled, "cancelled by client"),
		})
	default:
		WriteEnvelope(w, r, http.StatusAccepted, "in progress", map[string]interface{}{
			"state":    job.State,
			"progress": job.Progress,
			"stage":    job.Stage,
		})
	}
}

// HistoryHandler lists jobs with filters and paging, newest first
func (h *JobHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	page, pageSize := GetPaginationParams(r)
	opts := &interfaces.JobListOptions{
		Offset: page * pageSize,
		Limit:  pageSize,
	}

	q := r.URL.Query()
	if state := q.Get("state"); state != "" {
		for _, s := range strings.Split(state, ",") {
			opts.States = append(opts.States, models.JobState(strings.TrimSpace(s)))
		}
	}
	if pt := q.Get("parsing_type"); pt != "" {
		opts.ParsingType = models.ParsingType(pt)
	}
	if batch := q.Get("batch_id"); batch != "" {
		opts.BatchID = batch
	}
	if from := q.Get("created_from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			opts.CreatedFrom = t
		}
	}
	if to := q.Get("created_to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			opts.CreatedTo = t
		}
	}

	jobs, total, err := h.jobs.List(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, r, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	WriteEnvelope(w, r, http.StatusOK, "ok", map[string]interface{}{
		"jobs":      jobs,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// BatchStatusHandler aggregates the state of every job in a batch
func (h *JobHandler) BatchStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/parse/batch/")
	batch, err := h.jobs.GetBatch(r.Context(), id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, r, http.StatusNotFound, "batch not found")
			return
		}
		WriteError(w, r, http.StatusInternalServerError, "failed to load batch")
		return
	}

	jobs := make([]*models.Job, 0, len(batch.JobIDs))
	for _, jobID := range batch.JobIDs {
		if job, err := h.jobs.Get(r.Context(), jobID); err == nil {
			jobs = append(jobs, job)
		}
	}

	WriteEnvelope(w, r, http.StatusOK, "ok", batch.Aggregate(jobs))
}

// DeleteHandler removes a job from any state along with its blob
func (h *JobHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/parse/")
	job, ok := h.fetch(w, r, id)
	if !ok {
		return
	}

	if err := h.jobs.Delete(r.Context(), id); err != nil {
		h.logger.Error().Err(err).Str("job_id", id).Msg("Failed to delete job")
		WriteError(w, r, http.StatusInternalServerError, "failed to delete job")
		return
	}
	if job.BlobHandle != "" {
		if err := h.blobs.Delete(r.Context(), job.BlobHandle); err != nil {
			h.logger.Warn().Err(err).Str("job_id", id).Msg("Failed to delete blob")
		}
	}

	h.logger.Info().Str("job_id", id).Msg("Job deleted")
	w.WriteHeader(http.StatusNoContent)
}

// fetch loads a job, answering 404 for unknown ids and 410 for deleted ones
func (h *JobHandler) fetch(w http.ResponseWriter, r *http.Request, id string) (*models.Job, bool) {
	if id == "" || strings.Contains(id, "/") {
		WriteError(w, r, http.StatusBadRequest, "job id required")
		return nil, false
	}

	job, err := h.jobs.Get(r.Context(), id)
	if err == nil {
		return job, true
	}
	if errors.Is(err, interfaces.ErrNotFound) {
		if h.jobs.WasDeleted(r.Context(), id) {
			WriteError(w, r, http.StatusGone, "job deleted")
			return nil, false
		}
		WriteError(w, r, http.StatusNotFound, "job not found")
		return nil, false
	}

	h.logger.Error().Err(err).Str("job_id", id).Msg("Failed to load job")
	WriteError(w, r, http.StatusInternalServerError, "failed to load job")
	return nil, false
}
