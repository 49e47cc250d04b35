package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cacheLookups, rateLimitDecisions) }

var (
	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Lookups against the brand record cache and the JWKS key cache.",
		},
		[]string{"cache", "result"}, // result: hit | miss | bypass | refresh_error
	)

	rateLimitDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_decisions_total",
			Help: "Per-user dispatch rate limit outcomes.",
		},
		[]string{"route", "decision"}, // allowed | limited | fail_open
	)
)

func IncCacheRequest(cache, result string) {
	cacheLookups.WithLabelValues(norm(cache), norm(result)).Inc()
}

func IncRateLimit(route, decision string) {
	rateLimitDecisions.WithLabelValues(norm(route), norm(decision)).Inc()
}
