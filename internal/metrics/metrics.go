// Package metrics holds the Prometheus collectors of the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vito_jobs_processed_total",
		Help: "Job attempts by lane, job name and outcome (done, retry, failed, interrupted).",
	}, []string{"lane", "job", "outcome"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vito_job_duration_seconds",
		Help:    "Wall time of a single job attempt.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
	}, []string{"lane", "job"})

	LaneInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vito_lane_in_flight",
		Help: "Jobs currently executing per lane.",
	}, []string{"lane"})

	BackupFilesPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vito_backup_files_pruned_total",
		Help: "Backup files removed by retention.",
	})

	OrphansFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vito_orphaned_records_failed_total",
		Help: "Non-terminal records without a pending job that the sweeper failed.",
	}, []string{"kind"})
)
