package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	recalcTotal    *prometheus.CounterVec
	recalcDuration *prometheus.HistogramVec
	recalcInFlight prometheus.Gauge
	queueLag       *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	recalcTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "radportal",
			Subsystem: "worker",
			Name:      "tat_recalc_total",
			Help:      "Total TAT snapshot recalculations by status.",
		},
		[]string{"service", "status"},
	)
	recalcDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "radportal",
			Subsystem: "worker",
			Name:      "tat_recalc_duration_seconds",
			Help:      "TAT recalculation duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	recalcInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "radportal",
			Subsystem: "worker",
			Name:      "tat_recalc_in_flight",
			Help:      "Number of in-flight TAT recalculations.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "radportal",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between study change and recalculation start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(recalcTotal, recalcDuration, recalcInFlight, queueLag)

	return &WorkerMetrics{
		registry:       registry,
		recalcTotal:    recalcTotal,
		recalcDuration: recalcDuration,
		recalcInFlight: recalcInFlight,
		queueLag:       queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartRecalc() {
	m.recalcInFlight.Inc()
}

func (m *WorkerMetrics) FinishRecalc(service string, duration time.Duration, err error) {
	m.recalcInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.recalcTotal.WithLabelValues(service, status).Inc()
	m.recalcDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}
