package compute

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics of the compute job pipeline. Counters follow the new
// counter model: monotone totals plus gauges for the live map sizes.
var (
	startedJobsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "embergrid_compute_jobs_started_total",
		Help: "Number of started jobs.",
	})
	activeJobsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "embergrid_compute_jobs_active",
		Help: "Number of active jobs currently executing.",
	})
	waitingJobsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "embergrid_compute_jobs_waiting",
		Help: "Number of currently queued jobs waiting to be executed.",
	})
	canceledJobsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "embergrid_compute_jobs_canceled_total",
		Help: "Number of cancelled jobs, whether still queued or running.",
	})
	rejectedJobsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "embergrid_compute_jobs_rejected_total",
		Help: "Number of jobs rejected during collision resolution or by an executor pool.",
	})
	finishedJobsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "embergrid_compute_jobs_finished_total",
		Help: "Number of finished jobs.",
	})
	executionTimeCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "embergrid_compute_jobs_execution_seconds_total",
		Help: "Total execution time of jobs.",
	})
	waitingTimeCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "embergrid_compute_jobs_waiting_seconds_total",
		Help: "Total time jobs spent in the waiting queue.",
	})
)
