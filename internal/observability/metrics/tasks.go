package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type TaskMetrics struct {
	service string

	taskTotal    *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	taskInFlight prometheus.Gauge
	queueLag     prometheus.Histogram
}

func NewTaskMetrics(service string, registry *prometheus.Registry) *TaskMetrics {
	taskTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "protesto",
			Subsystem: "tasks",
			Name:      "process_total",
			Help:      "Total finished background tasks by status.",
		},
		[]string{"service", "status"},
	)
	taskDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "protesto",
			Subsystem: "tasks",
			Name:      "process_duration_seconds",
			Help:      "Background task duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	taskInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "protesto",
			Subsystem: "tasks",
			Name:      "process_in_flight",
			Help:      "Number of in-flight background tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "protesto",
			Subsystem: "tasks",
			Name:      "queue_lag_seconds",
			Help:      "Delay between task enqueue and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(taskTotal, taskDuration, taskInFlight, queueLag)

	return &TaskMetrics{
		service:      service,
		taskTotal:    taskTotal,
		taskDuration: taskDuration,
		taskInFlight: taskInFlight,
		queueLag:     queueLag,
	}
}

func (m *TaskMetrics) TaskStarted(lag time.Duration) {
	m.taskInFlight.Inc()
	if lag >= 0 {
		m.queueLag.Observe(lag.Seconds())
	}
}

func (m *TaskMetrics) TaskFinished(duration time.Duration, err error) {
	m.taskInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.taskTotal.WithLabelValues(m.service, status).Inc()
	m.taskDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}
