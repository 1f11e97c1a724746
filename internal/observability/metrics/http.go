package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	transitionTotal     *prometheus.CounterVec
	transitionConflicts *prometheus.CounterVec
	resetTotal          *prometheus.CounterVec
	exportRows          *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "radportal",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "radportal",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "radportal",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	transitionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "radportal",
			Subsystem: "workflow",
			Name:      "transitions_total",
			Help:      "Total status transition attempts by target status and outcome.",
		},
		[]string{"service", "target", "outcome"},
	)
	transitionConflicts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "radportal",
			Subsystem: "workflow",
			Name:      "transition_conflicts_total",
			Help:      "Total transitions rejected because the study moved concurrently.",
		},
		[]string{"service"},
	)
	resetTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "radportal",
			Subsystem: "workflow",
			Name:      "upload_time_resets_total",
			Help:      "Total upload baseline resets by outcome.",
		},
		[]string{"service", "outcome"},
	)
	exportRows := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "radportal",
			Subsystem: "worklist",
			Name:      "export_rows",
			Help:      "Distribution of rows per worklist export.",
			Buckets:   []float64{0, 10, 50, 100, 250, 500, 1000},
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		transitionTotal,
		transitionConflicts,
		resetTotal,
		exportRows,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		transitionTotal:     transitionTotal,
		transitionConflicts: transitionConflicts,
		resetTotal:          resetTotal,
		exportRows:          exportRows,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses study IDs so the path label stays bounded.
func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/v1/studies/") {
		return path
	}
	rest := strings.TrimPrefix(path, "/v1/studies/")
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		return "/v1/studies/{study_id}/" + rest[idx+1:]
	}
	return "/v1/studies/{study_id}"
}

func (m *HTTPServerMetrics) RecordTransition(service string, target, outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.transitionTotal.WithLabelValues(service, target, outcome).Inc()
}

func (m *HTTPServerMetrics) RecordTransitionConflict(service string) {
	m.transitionConflicts.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordReset(service, outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.resetTotal.WithLabelValues(service, outcome).Inc()
}

func (m *HTTPServerMetrics) RecordExport(service string, rows int) {
	if rows < 0 {
		return
	}
	m.exportRows.WithLabelValues(service).Observe(float64(rows))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
