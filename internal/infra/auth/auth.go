package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"mediaforge/internal/config"
	"mediaforge/internal/domain"
	"mediaforge/internal/domain/ports/adapter"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the identity token payload. The subject is the user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) identity() (*adapter.Identity, error) {
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", domain.ErrUnauthorized)
	}
	return &adapter.Identity{UserID: c.Subject, Email: c.Email}, nil
}

func parserOptions(method, issuer, audience string) []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return opts
}

// NewVerifier builds the verifier selected by cfg.Mode.
func NewVerifier(cfg config.AuthConfig) (adapter.IdentityVerifier, error) {
	switch strings.ToLower(cfg.Mode) {
	case "", "hmac":
		return NewHMACVerifier(cfg.HMACSecret, cfg.Issuer, cfg.Audience), nil
	case "jwks":
		return NewJWKSVerifier(cfg.JWKSURL, cfg.Issuer, cfg.Audience, cfg.CacheTTL, nil), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}
}

// BearerToken extracts the token from the Authorization header. When
// allowQuery is set it falls back to the access_token query parameter,
// which browsers need for WebSocket upgrades.
func BearerToken(r *http.Request, allowQuery bool) (string, error) {
	if hdr := r.Header.Get("Authorization"); hdr != "" {
		if len(hdr) > 7 && strings.EqualFold(hdr[:7], "bearer ") {
			if tok := strings.TrimSpace(hdr[7:]); tok != "" {
				return tok, nil
			}
		}
		return "", fmt.Errorf("%w: malformed authorization header", domain.ErrUnauthorized)
	}
	if allowQuery {
		if tok := r.URL.Query().Get("access_token"); tok != "" {
			return tok, nil
		}
	}
	return "", fmt.Errorf("%w: missing token", domain.ErrUnauthorized)
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id *adapter.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func IdentityFrom(ctx context.Context) (*adapter.Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(*adapter.Identity)
	return id, ok && id != nil
}
