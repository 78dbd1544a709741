package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dep_worker_jobs_received_total",
		Help: "Total number of deliveries received from the work queue",
	}, []string{"mode"})

	JobsAckedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dep_worker_jobs_acked_total",
		Help: "Total number of deliveries acknowledged",
	})

	RunOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dep_worker_run_outcomes_total",
		Help: "Simulation runs by classified outcome",
	}, []string{"outcome"})

	RunTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dep_worker_run_timeouts_total",
		Help: "Simulation runs killed at the wall-clock limit",
	})

	ArtifactsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dep_worker_failure_artifacts_written_total",
		Help: "Failure artifacts written to the error tree",
	})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dep_worker_run_duration_seconds",
		Help:    "Wall-clock time of simulation runs in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 45, 60, 90},
	})

	ActiveConsumers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dep_worker_active_consumers",
		Help: "Current number of consumers holding a queue session",
	})

	PoolRestartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dep_worker_pool_restarts_total",
		Help: "Number of times the consumer pool exited and was restarted",
	})

	ConsumerExitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dep_worker_consumer_exits_total",
		Help: "Consumer run loop exits by reason",
	}, []string{"reason"})
)
