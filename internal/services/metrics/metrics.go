package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mu  sync.RWMutex
	reg *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	jobsProcessed *prometheus.CounterVec
	parseDuration *prometheus.HistogramVec
	queueDepth    prometheus.Gauge
	callbacks     *prometheus.CounterVec
)

func init() {
	resetLocked()
}

// Reset clears and reinitializes all collectors. Used by tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	resetLocked()
}

// Handler exposes the registry in Prometheus text format
func Handler() http.Handler {
	mu.RLock()
	registry := reg
	mu.RUnlock()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records one completed API request
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	mu.RLock()
	defer mu.RUnlock()
	status := strconv.Itoa(code)
	if httpRequests != nil {
		httpRequests.WithLabelValues(method, route, status).Inc()
	}
	if httpDuration != nil {
		httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
	}
}

// ObserveJobOutcome records a job reaching a terminal state
func ObserveJobOutcome(parsingType, state string, duration time.Duration) {
	mu.RLock()
	defer mu.RUnlock()
	if jobsProcessed != nil {
		jobsProcessed.WithLabelValues(parsingType, state).Inc()
	}
	if parseDuration != nil && duration > 0 {
		parseDuration.WithLabelValues(parsingType).Observe(duration.Seconds())
	}
}

// SetQueueDepth records the current ready-set size
func SetQueueDepth(depth int) {
	mu.RLock()
	defer mu.RUnlock()
	if queueDepth != nil {
		queueDepth.Set(float64(depth))
	}
}

// ObserveCallback records a callback delivery outcome
func ObserveCallback(outcome string) {
	mu.RLock()
	defer mu.RUnlock()
	if callbacks != nil {
		callbacks.WithLabelValues(outcome).Inc()
	}
}

func resetLocked() {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nutriparse",
		Subsystem: "api",
		Name:      "http_requests_total",
		Help:      "Total API requests grouped by method, route, and status code.",
	}, []string{"method", "route", "code"})

	reqDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nutriparse",
		Subsystem: "api",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of API requests by method and route.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"method", "route"})

	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nutriparse",
		Subsystem: "jobs",
		Name:      "processed_total",
		Help:      "Jobs reaching a terminal state, by parsing type and outcome.",
	}, []string{"parsing_type", "state"})

	parseDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nutriparse",
		Subsystem: "jobs",
		Name:      "parse_duration_seconds",
		Help:      "Wall-clock parse duration by parsing type.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"parsing_type"})

	depth := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "nutriparse",
		Subsystem: "queue",
		Name:      "ready_depth",
		Help:      "Number of entries in the ready set.",
	})

	cb := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nutriparse",
		Subsystem: "callbacks",
		Name:      "deliveries_total",
		Help:      "Callback delivery outcomes.",
	}, []string{"outcome"})

	registry.MustRegister(requests, reqDur, jobs, parseDur, depth, cb)

	reg = registry
	httpRequests = requests
	httpDuration = reqDur
	jobsProcessed = jobs
	parseDuration = parseDur
	queueDepth = depth
	callbacks = cb
}
