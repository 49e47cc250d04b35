package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(outboxPending, outboxRelayedTotal) }

var (
	outboxPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "outbox_pending",
			Help: "Outbox messages not yet published to the queue.",
		},
	)

	outboxRelayedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_published_total",
			Help: "Outbox publishes by path and result.",
		},
		[]string{"path", "result"}, // path='inline'|'relay'
	)
)

func SetOutboxPending(n int) {
	outboxPending.Set(float64(n))
}

func IncOutboxPublish(path, result string) {
	outboxRelayedTotal.WithLabelValues(norm(path), norm(result)).Inc()
}
