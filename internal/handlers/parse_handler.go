package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nutriparse/internal/common"
	"github.com/ternarybob/nutriparse/internal/interfaces"
	"github.com/ternarybob/nutriparse/internal/models"
)

// Multipart parse threshold before spilling file parts to disk
const multipartMemory = 32 << 20

// ParseHandler serves the upload endpoints: sync, async, batch, cancel
type ParseHandler struct {
	validator    interfaces.UploadValidator
	jobs         interfaces.JobStorage
	blobs        interfaces.BlobStorage
	queue        interfaces.Queue
	pipeline     interfaces.Pipeline
	syncDeadline time.Duration
	logger       arbor.ILogger
}

// NewParseHandler creates the parse handler
func NewParseHandler(validator interfaces.UploadValidator, jobs interfaces.JobStorage, blobs interfaces.BlobStorage, queue interfaces.Queue, pipeline interfaces.Pipeline, syncDeadline time.Duration, logger arbor.ILogger) *ParseHandler {
	return &ParseHandler{
		validator:    validator,
		jobs:         jobs,
		blobs:        blobs,
		queue:        queue,
		pipeline:     pipeline,
		syncDeadline: syncDeadline,
		logger:       logger,
	}
}

// SyncHandler parses a document inline on the request, bounded by the sync
// deadline. Nothing is persisted and no job is enqueued.
func (h *ParseHandler) SyncHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	data, filename, parsingType, err := h.readUpload(r)
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	info, jobErr := h.validator.Validate(data, filename, true)
	if jobErr != nil {
		WriteJobError(w, r, jobErr)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.syncDeadline)
	defer cancel()

	// Ephemeral record drives the pipeline; it never reaches storage
	job := models.NewJob(common.NewJobID(), info.Filename, info.Size, info.Hash, "", parsingType, models.PriorityNormal)

	result, runErr := h.pipeline.Run(ctx, job, data, func(string, int) {})
	if runErr != nil {
		if errors.Is(runErr, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			WriteJobError(w, r, models.NewJobError(models.ErrKindDeadlineExceeded,
				"parse did not finish within %s", h.syncDeadline))
			return
		}
		WriteJobError(w, r, models.AsJobError(runErr))
		return
	}

	h.logger.Info().
		Str("filename", info.Filename).
		Str("result_type", string(result.Type)).
		Msg("Synchronous parse completed")
	WriteEnvelope(w, r, http.StatusOK, "parsed", result)
}

// AsyncHandler accepts a document, persists it, and enqueues a job
func (h *ParseHandler) AsyncHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	data, filename, parsingType, err := h.readUpload(r)
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	priority := models.ParsePriority(r.FormValue("priority"))
	callbackURL := strings.TrimSpace(r.FormValue("callback_url"))
	if callbackURL != "" {
		if u, err := url.Parse(callbackURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			WriteError(w, r, http.StatusBadRequest, "callback_url must be an absolute http(s) URL")
			return
		}
	}

	job, jobErr := h.submit(r.Context(), data, filename, parsingType, priority, callbackURL, "")
	if jobErr != nil {
		WriteJobError(w, r, jobErr)
		return
	}

	WriteEnvelope(w, r, http.StatusAccepted, "job accepted", map[string]string{
		"job_id": job.ID,
	})
}

// BatchHandler accepts several documents under one batch id. Validation is
// all-or-nothing: one bad file rejects the whole batch before any state is
// created.
func (h *ParseHandler) BatchHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid multipart request")
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		files = r.MultipartForm.File["file"]
	}
	if len(files) == 0 {
		WriteError(w, r, http.StatusBadRequest, "no files supplied")
		return
	}

	parsingType := parseType(r.FormValue("parsing_type"))
	if !parsingType.Valid() {
		WriteError(w, r, http.StatusBadRequest, "invalid parsing_type")
		return
	}
	priority := models.ParsePriority(r.FormValue("priority"))

	type upload struct {
		data     []byte
		filename string
	}
	uploads := make([]upload, 0, len(files))
	for _, fh := range files {
		data, err := readFileHeader(fh)
		if err != nil {
			WriteError(w, r, http.StatusBadRequest, "failed to read file "+fh.Filename)
			return
		}
		if _, jobErr := h.validator.Validate(data, fh.Filename, false); jobErr != nil {
			WriteJobError(w, r, jobErr)
			return
		}
		uploads = append(uploads, upload{data: data, filename: fh.Filename})
	}

	batchID := common.NewBatchID()
	jobIDs := make([]string, 0, len(uploads))
	for _, u := range uploads {
		job, jobErr := h.submit(r.Context(), u.data, u.filename, parsingType, priority, "", batchID)
		if jobErr != nil {
			WriteJobError(w, r, jobErr)
			return
		}
		jobIDs = append(jobIDs, job.ID)
	}

	batch := &models.Batch{
		ID:        batchID,
		JobIDs:    jobIDs,
		CreatedAt: time.Now(),
	}
	if err := h.jobs.CreateBatch(r.Context(), batch); err != nil {
		h.logger.Error().Err(err).Str("batch_id", batchID).Msg("Failed to persist batch record")
	}

	WriteEnvelope(w, r, http.StatusAccepted, "batch accepted", map[string]interface{}{
		"batch_id": batchID,
		"job_ids":  jobIDs,
	})
}

// CancelHandler cancels a job that has not yet reached a terminal state.
// Running jobs observe the cancellation at the next stage boundary.
func (h *ParseHandler) CancelHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/parse/cancel/")
	if id == "" {
		WriteError(w, r, http.StatusBadRequest, "job id required")
		return
	}

	// Error stays nil: it is reserved for failed jobs, and the cancelled
	// response is synthesized from the state alone.
	job, err := h.jobs.Transition(r.Context(), id,
		[]models.JobState{models.JobStatePending, models.JobStateQueued, models.JobStateLeased, models.JobStateRunning},
		models.JobStateCancelled, nil)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, r, http.StatusNotFound, "job not found")
			return
		}
		if errors.Is(err, interfaces.ErrConflict) {
			WriteError(w, r, http.StatusConflict, "job already finished")
			return
		}
		WriteError(w, r, http.StatusInternalServerError, "failed to cancel job")
		return
	}

	h.logger.Info().Str("job_id", id).Msg("Job cancelled by client")
	WriteEnvelope(w, r, http.StatusOK, "cancelled", map[string]string{
		"job_id": job.ID,
		"state":  string(job.State),
	})
}

// submit stores the blob, creates the job record, and enqueues it
func (h *ParseHandler) submit(ctx context.Context, data []byte, filename string, parsingType models.ParsingType, priority models.Priority, callbackURL, batchID string) (*models.Job, *models.JobError) {
	info, jobErr := h.validator.Validate(data, filename, false)
	if jobErr != nil {
		return nil, jobErr
	}

	jobID := common.NewJobID()
	handle, hash, err := h.blobs.Put(ctx, jobID, info.Filename, data)
	if err != nil {
		return nil, models.NewJobError(models.ErrKindBlobIO, "failed to store document: %s", err)
	}

	job := models.NewJob(jobID, info.Filename, info.Size, hash, handle, parsingType, priority)
	job.CallbackURL = callbackURL
	job.BatchID = batchID

	if err := h.jobs.Create(ctx, job); err != nil {
		h.blobs.Delete(ctx, handle)
		return nil, models.NewJobError(models.ErrKindStoreUnavailable, "failed to create job: %s", err)
	}

	if err := h.queue.Enqueue(ctx, job); err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Enqueue failed, job left pending")
		return nil, models.NewJobError(models.ErrKindStoreUnavailable, "failed to enqueue job: %s", err)
	}

	h.logger.Info().
		Str("job_id", jobID).
		Str("filename", info.Filename).
		Str("parsing_type", string(parsingType)).
		Str("priority", string(priority)).
		Msg("Job submitted")
	return job, nil
}

// readUpload extracts the single uploaded file and its parsing type
func (h *ParseHandler) readUpload(r *http.Request) ([]byte, string, models.ParsingType, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, "", "", errors.New("invalid multipart request")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", "", errors.New("missing file field")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", "", errors.New("failed to read uploaded file")
	}

	parsingType := parseType(r.FormValue("parsing_type"))
	if !parsingType.Valid() {
		return nil, "", "", errors.New("invalid parsing_type")
	}

	return data, header.Filename, parsingType, nil
}

func readFileHeader(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// parseType defaults an empty parsing type to auto
func parseType(s string) models.ParsingType {
	if s == "" {
		return models.ParsingTypeAuto
	}
	return models.ParsingType(s)
}
