package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nutriparse/internal/interfaces"
	"github.com/ternarybob/nutriparse/internal/models"
	"github.com/ternarybob/nutriparse/internal/queue"
	"github.com/ternarybob/nutriparse/internal/services/metrics"
)

// AdminHandler serves operational endpoints: stats, queue introspection,
// worker status, and manual cleanup.
type AdminHandler struct {
	jobs    interfaces.JobStorage
	queue   interfaces.Queue
	pool    *queue.Pool
	cleanup interfaces.CleanupService
	logger  arbor.ILogger
}

// NewAdminHandler creates the admin handler
func NewAdminHandler(jobs interfaces.JobStorage, q interfaces.Queue, pool *queue.Pool, cleanup interfaces.CleanupService, logger arbor.ILogger) *AdminHandler {
	return &AdminHandler{
		jobs:    jobs,
		queue:   q,
		pool:    pool,
		cleanup: cleanup,
		logger:  logger,
	}
}

// RealTimeStatsHandler reports the live processing picture
func (h *AdminHandler) RealTimeStatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	stats, err := h.jobs.Stats(r.Context(), 24*time.Hour)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to compute job stats")
		WriteError(w, r, http.StatusInternalServerError, "failed to compute stats")
		return
	}

	depth, err := h.queue.Depth(r.Context())
	if err != nil {
		depth = -1
	} else {
		metrics.SetQueueDepth(depth)
	}

	WriteEnvelope(w, r, http.StatusOK, "ok", map[string]interface{}{
		"processing":      stats.ByState[models.JobStateLeased] + stats.ByState[models.JobStateRunning],
		"queued":          stats.ByState[models.JobStateQueued],
		"completed_today": stats.ByState[models.JobStateCompleted],
		"success_rate":    stats.SuccessRate,
		"queue_depth":     depth,
		"avg_duration_ms": stats.AvgDuration.Milliseconds(),
	})
}

// QueueStatsHandler reports the ready-set depth and per-state job counts
func (h *AdminHandler) QueueStatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	depth, err := h.queue.Depth(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read queue depth")
		WriteError(w, r, http.StatusInternalServerError, "failed to read queue depth")
		return
	}
	metrics.SetQueueDepth(depth)

	stats, err := h.jobs.Stats(r.Context(), 0)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "failed to compute stats")
		return
	}

	WriteEnvelope(w, r, http.StatusOK, "ok", map[string]interface{}{
		"depth":    depth,
		"by_state": stats.ByState,
		"total":    stats.Total,
	})
}

// WorkersStatusHandler snapshots every worker slot
func (h *AdminHandler) WorkersStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteEnvelope(w, r, http.StatusOK, "ok", map[string]interface{}{
		"workers": h.pool.Status(),
	})
}

// CleanupHandler runs a retention sweep on demand. The days parameter
// overrides the configured retention.
func (h *AdminHandler) CleanupHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	days := 0
	var body struct {
		Days int `json:"days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
		days = body.Days
	}

	deleted, err := h.cleanup.Run(r.Context(), days)
	if err != nil {
		h.logger.Error().Err(err).Msg("Manual cleanup failed")
		WriteError(w, r, http.StatusInternalServerError, "cleanup failed")
		return
	}

	WriteEnvelope(w, r, http.StatusOK, "cleanup finished", map[string]int{
		"deleted": deleted,
	})
}
