package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(jobsProcessedTotal, jobsSkippedTotal, jobsReapedTotal, jobsRequeuedTotal, jobDurationSeconds, pushMessagesTotal)
}

var (
	jobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Jobs that reached a terminal status in the worker, by kind and status.",
		},
		[]string{"kind", "status"}, // kind='generation'|'training', status='completed'|'ready'|'failed'
	)

	jobsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_skipped_total",
			Help: "Deliveries dropped because the job was missing or already handled.",
		},
		[]string{"kind", "reason"},
	)

	jobsReapedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_reaped_total",
			Help: "Jobs failed by the stale-job watchdog.",
		},
		[]string{"kind"},
	)

	jobsRequeuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_requeued_total",
			Help: "Queued jobs whose message the watchdog published again.",
		},
		[]string{"kind"},
	)

	jobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Wall time from claim to terminal status.",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300, 900, 1800},
		},
		[]string{"kind", "status"},
	)

	pushMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_messages_received_total",
			Help: "Queue deliveries received by the worker, by transport and result.",
		},
		[]string{"transport", "result"}, // transport='push'|'stream'
	)
)

func IncJob(kind, status string) {
	jobsProcessedTotal.WithLabelValues(norm(kind), norm(status)).Inc()
}

func IncJobSkipped(kind, reason string) {
	jobsSkippedTotal.WithLabelValues(norm(kind), norm(reason)).Inc()
}

func AddJobsReaped(kind string, n int) {
	jobsReapedTotal.WithLabelValues(norm(kind)).Add(float64(n))
}

func AddJobsRequeued(kind string, n int) {
	jobsRequeuedTotal.WithLabelValues(norm(kind)).Add(float64(n))
}

func ObserveJobDuration(kind, status string, seconds float64) {
	jobDurationSeconds.WithLabelValues(norm(kind), norm(status)).Observe(seconds)
}

func IncQueueMessage(transport, result string) {
	pushMessagesTotal.WithLabelValues(norm(transport), norm(result)).Inc()
}
