package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nutriparse/internal/common"
	"github.com/ternarybob/nutriparse/internal/interfaces"
)

// HealthHandler serves liveness and dependency health checks
type HealthHandler struct {
	jobs    interfaces.JobStorage
	queue   interfaces.Queue
	started time.Time
	logger  arbor.ILogger
}

// NewHealthHandler creates the health handler
func NewHealthHandler(jobs interfaces.JobStorage, queue interfaces.Queue, logger arbor.ILogger) *HealthHandler {
	return &HealthHandler{
		jobs:    jobs,
		queue:   queue,
		started: time.Now(),
		logger:  logger,
	}
}

// HealthCheckHandler is the basic liveness probe
func (h *HealthHandler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": common.GetVersion(),
	})
}

// DetailedHealthHandler probes the storage and queue, answering 503 when a
// dependency is down.
func (h *HealthHandler) DetailedHealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	// A not-found answer still proves the store responds
	if _, err := h.jobs.Get(ctx, "health-probe"); err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		checks["storage"] = "unhealthy: " + err.Error()
		healthy = false
	} else {
		checks["storage"] = "healthy"
	}

	depth, err := h.queue.Depth(ctx)
	if err != nil {
		checks["queue"] = "unhealthy: " + err.Error()
		healthy = false
	} else {
		checks["queue"] = "healthy"
	}

	status := http.StatusOK
	overall := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "unhealthy"
	}

	WriteJSON(w, status, map[string]interface{}{
		"status":         overall,
		"version":        common.GetFullVersion(),
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"queue_depth":    depth,
		"checks":         checks,
	})
}
