package api

import (
	"fmt"
	"net/http"
	"time"

	"mediaforge/internal/domain"
	"mediaforge/internal/domain/ports/adapter"
	"mediaforge/internal/infra/auth"
	"mediaforge/internal/infra/logging"
	"mediaforge/internal/infra/metrics"
	"mediaforge/internal/infra/redis"

	"github.com/rs/zerolog"
)

// Authenticate verifies the bearer token and stores the identity in the
// request context. allowQuery accepts ?access_token= for WebSocket clients.
func Authenticate(v adapter.IdentityVerifier, allowQuery bool, logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, err := auth.BearerToken(r, allowQuery)
			if err != nil {
				WriteJSON(w, http.StatusUnauthorized, ErrorBody{Error: "Unauthorized: Missing authentication token"})
				return
			}
			id, err := v.Verify(r.Context(), tok)
			if err != nil {
				l := logging.With(r.Context(), logger)
				l.Debug().Err(err).Msg("token rejected")
				WriteError(w, err)
				return
			}
			ctx := auth.WithIdentity(r.Context(), id)
			ctx = logging.WithUserID(ctx, id.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimit applies a per-user fixed window to route. It must run after
// Authenticate. A limiter outage lets the request through.
func RateLimit(l adapter.RateLimiter, route string, limit int, window time.Duration, logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		if l == nil || limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFrom(r.Context())
			if !ok {
				WriteError(w, domain.ErrUnauthorized)
				return
			}
			allowed, retryAfter, err := l.Allow(r.Context(), redis.DispatchKey(id.UserID, route), limit, window)
			if err != nil {
				lg := logging.With(r.Context(), logger)
				lg.Warn().Err(err).Str("route", route).Msg("rate limiter unavailable")
				metrics.IncRateLimit(route, "fail_open")
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				metrics.IncRateLimit(route, "limited")
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retrySeconds(retryAfter, window)))
				WriteError(w, domain.ErrRateLimited)
				return
			}
			metrics.IncRateLimit(route, "allowed")
			next.ServeHTTP(w, r)
		})
	}
}

func retrySeconds(left, window time.Duration) int {
	if left <= 0 {
		left = window
	}
	secs := int((left + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
