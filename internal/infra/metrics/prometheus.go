package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bwys_runs_processed_total",
		Help: "Total number of pipeline runs processed, by status",
	}, []string{"status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bwys_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	FramesSampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bwys_frames_sampled_total",
		Help: "Total number of frames sampled across all runs",
	})

	CandidatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bwys_candidates_total",
		Help: "Total number of candidates, by final status",
	}, []string{"status"})

	CheckoutSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bwys_checkout_sessions_total",
		Help: "Total checkout sessions, by outcome",
	}, []string{"outcome"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bwys_active_workers",
		Help: "Number of currently active workers processing runs",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bwys_retry_total",
		Help: "Total number of retries",
	}, []string{"attempt"})
)
