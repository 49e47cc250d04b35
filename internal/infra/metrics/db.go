package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolConns, dbTxTotal) }

var (
	dbPoolConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_connections",
			Help: "pgx pool connections by state.",
		},
		[]string{"state"}, // total | idle | acquired
	)

	dbTxTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_transactions_total",
			Help: "Transactions run through the tx manager, by outcome.",
		},
		[]string{"outcome"}, // commit | rollback | retry | begin_error
	)
)

func SetDBPoolStats(total, idle, acquired int32) {
	dbPoolConns.WithLabelValues("total").Set(float64(total))
	dbPoolConns.WithLabelValues("idle").Set(float64(idle))
	dbPoolConns.WithLabelValues("acquired").Set(float64(acquired))
}

func IncTx(outcome string) { dbTxTotal.WithLabelValues(norm(outcome)).Inc() }
