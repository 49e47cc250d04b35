package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dispatchTotal, httpRequestsTotal) }

var (
	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_requests_total",
			Help: "Gateway dispatch attempts by job kind and outcome.",
		},
		[]string{"kind", "outcome"}, // outcome='accepted'|'invalid'|'forbidden'|'insufficient_credits'|...
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by service, route and status class.",
		},
		[]string{"service", "method", "class"},
	)
)

func IncDispatch(kind, outcome string) {
	dispatchTotal.WithLabelValues(norm(kind), norm(outcome)).Inc()
}

func IncHTTPRequest(service, method string, status int) {
	class := "5xx"
	switch {
	case status < 300:
		class = "2xx"
	case status < 400:
		class = "3xx"
	case status < 500:
		class = "4xx"
	}
	httpRequestsTotal.WithLabelValues(norm(service), method, class).Inc()
}
