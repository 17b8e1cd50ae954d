package server

import (
	"net/http"

	"github.com/ternarybob/nutriparse/internal/services/metrics"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Parse endpoints
	mux.HandleFunc("/parse/sync", s.app.ParseHandler.SyncHandler)
	mux.HandleFunc("/parse/async", s.app.ParseHandler.AsyncHandler)
	mux.HandleFunc("/parse/batch", s.app.ParseHandler.BatchHandler)
	mux.HandleFunc("/parse/batch/", s.app.JobHandler.BatchStatusHandler) // GET /{batch_id}
	mux.HandleFunc("/parse/cancel/", s.app.ParseHandler.CancelHandler)   // POST /{id}
	mux.HandleFunc("/parse/status/", s.app.JobHandler.StatusHandler)     // GET /{id}
	mux.HandleFunc("/parse/result/", s.app.JobHandler.ResultHandler)     // GET /{id}
	mux.HandleFunc("/parse/history", s.app.JobHandler.HistoryHandler)
	mux.HandleFunc("/parse/", s.app.JobHandler.DeleteHandler) // DELETE /{id}

	// Admin endpoints
	mux.Handle("/admin/metrics", metrics.Handler())
	mux.HandleFunc("/admin/stats/real-time", s.app.AdminHandler.RealTimeStatsHandler)
	mux.HandleFunc("/admin/queue/stats", s.app.AdminHandler.QueueStatsHandler)
	mux.HandleFunc("/admin/workers/status", s.app.AdminHandler.WorkersStatusHandler)
	mux.HandleFunc("/admin/cleanup", s.app.AdminHandler.CleanupHandler)

	// Health endpoints
	mux.HandleFunc("/health", s.app.HealthHandler.HealthCheckHandler)
	mux.HandleFunc("/health/detailed", s.app.HealthHandler.DetailedHealthHandler)

	return mux
}
