package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	modelRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentrl_model_request_duration_seconds",
			Help:    "Model API request duration in seconds by model",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~100s
		},
		[]string{"model", "status"},
	)

	tasksGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrl_tasks_generated_total",
			Help: "Total number of task generation jobs completed",
		},
		[]string{"status"}, // "success" or "error"
	)

	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentrl_active_generation_workers",
			Help: "Number of generation workers currently in flight",
		},
	)

	validationRounds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrl_validation_rounds_total",
			Help: "Total number of validation rounds by terminal status",
		},
		[]string{"status"}, // "passed" or "failed"
	)

	validationRoundDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agentrl_validation_round_duration_seconds",
			Help:    "Oracle validation round duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~2000s
		},
	)
)

// RecordModelRequest records a model API request duration
func RecordModelRequest(model string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	modelRequestDuration.WithLabelValues(model, status).Observe(duration.Seconds())
}

// RecordTaskGenerated increments the per-job completion counter
func RecordTaskGenerated(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	tasksGenerated.WithLabelValues(status).Inc()
}

// WorkerStarted marks one generation worker as in flight
func WorkerStarted() { activeWorkers.Inc() }

// WorkerFinished marks one generation worker as done
func WorkerFinished() { activeWorkers.Dec() }

// RecordValidationRound records a terminal validation round
func RecordValidationRound(passed bool, duration time.Duration) {
	status := "failed"
	if passed {
		status = "passed"
	}
	validationRounds.WithLabelValues(status).Inc()
	validationRoundDuration.Observe(duration.Seconds())
}
