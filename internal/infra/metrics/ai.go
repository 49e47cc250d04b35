package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		backendCallsLatencyMs,
		backendInFlight,
		promptTokens,
	)
}

var (
	backendCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_calls_latency_ms",
			Help:    "Model backend call latency distribution in milliseconds.",
			Buckets: []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000, 60000, 120000, 300000},
		},
		[]string{"backend", "model", "success"},
	)

	backendInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backend_calls_in_flight",
			Help: "Model backend calls currently holding a concurrency slot.",
		},
		[]string{"backend"},
	)

	promptTokens = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prompt_tokens",
			Help:    "Token count of accepted generation prompts.",
			Buckets: []float64{8, 16, 32, 64, 128, 256, 512},
		},
	)
)

func ObserveBackendCall(backend, model string, latencyMs int64, success bool) {
	backendCallsLatencyMs.WithLabelValues(norm(backend), norm(model), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func BackendInFlight(backend string, delta float64) {
	backendInFlight.WithLabelValues(norm(backend)).Add(delta)
}

func ObservePromptTokens(n int) {
	promptTokens.Observe(float64(n))
}
