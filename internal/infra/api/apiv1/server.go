// Package apiv1 holds the gateway's public HTTP routes.
package apiv1

import (
	"net/http"
	"time"

	"mediaforge/internal/domain/ports/adapter"
	"mediaforge/internal/infra/api"
	"mediaforge/internal/infra/metrics"
	"mediaforge/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type Options struct {
	RequestTimeout time.Duration
	RateLimit      int
	RateWindow     time.Duration
	AllowedOrigins []string
	// PingInterval keeps idle job streams alive through proxies.
	PingInterval time.Duration
}

type Server struct {
	dispatch usecase.DispatchUseCase
	feed     adapter.ChangeFeed
	verifier adapter.IdentityVerifier
	limiter  adapter.RateLimiter
	opts     Options
	log      *zerolog.Logger
}

func NewServer(
	dispatch usecase.DispatchUseCase,
	feed adapter.ChangeFeed,
	verifier adapter.IdentityVerifier,
	limiter adapter.RateLimiter,
	opts Options,
	logger *zerolog.Logger,
) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 20 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	l := logger.With().Str("component", "Gateway").Logger()
	return &Server{
		dispatch: dispatch,
		feed:     feed,
		verifier: verifier,
		limiter:  limiter,
		opts:     opts,
		log:      &l,
	}
}

// RegisterAPIV1 mounts the gateway routes on r.
func RegisterAPIV1(r chi.Router, s *Server) {
	r.Get("/health", api.Health("api-gateway"))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(api.Authenticate(s.verifier, false, s.log), api.Timeout(s.opts.RequestTimeout))

		r.With(api.RateLimit(s.limiter, "generate", s.opts.RateLimit, s.opts.RateWindow, s.log)).
			Post("/generate", s.handleGenerate)
		r.With(api.RateLimit(s.limiter, "train-brand", s.opts.RateLimit, s.opts.RateWindow, s.log)).
			Post("/train-brand", s.handleTrainBrand)
		r.Get("/illustrations/{id}", s.handleGetIllustration)
		r.Get("/brands/{id}", s.handleGetBrand)
	})

	// Streams outlive the request timeout and accept ?access_token= for browsers.
	r.Group(func(r chi.Router) {
		r.Use(api.Authenticate(s.verifier, true, s.log))
		r.Get("/illustrations/{id}/stream", s.handleIllustrationStream)
		r.Get("/brands/{id}/stream", s.handleBrandStream)
	})
}

// Handler returns the complete gateway handler with the shared middleware.
func Handler(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(
		api.TraceID(),
		api.Recover(s.log),
		api.RequestLog(s.log),
		api.Metrics("gateway"),
		api.CORS(s.opts.AllowedOrigins),
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		api.WriteJSON(w, http.StatusNotFound, api.ErrorBody{Error: "Not found"})
	})
	RegisterAPIV1(r, s)
	return r
}
