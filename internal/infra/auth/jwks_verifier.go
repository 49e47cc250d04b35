package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"mediaforge/internal/domain"
	"mediaforge/internal/domain/ports/adapter"
	"mediaforge/internal/infra/metrics"

	"github.com/golang-jwt/jwt/v5"
)

var _ adapter.IdentityVerifier = (*JWKSVerifier)(nil)

// minRefresh bounds how often an unknown kid may force a refetch.
const minRefresh = 30 * time.Second

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKSVerifier accepts RS256 tokens whose signing key is published at a
// JWKS endpoint. Keys are cached for ttl.
type JWKSVerifier struct {
	url      string
	issuer   string
	audience string
	ttl      time.Duration
	client   *http.Client
	now      func() time.Time

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func NewJWKSVerifier(url, issuer, audience string, ttl time.Duration, client *http.Client) *JWKSVerifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &JWKSVerifier{
		url:      url,
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		client:   client,
		now:      time.Now,
	}
}

func (v *JWKSVerifier) Verify(ctx context.Context, token string) (*adapter.Identity, error) {
	claims := &Claims{}
	opts := append(parserOptions(jwt.SigningMethodRS256.Alg(), v.issuer, v.audience), jwt.WithTimeFunc(v.now))
	tkn, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.key(ctx, kid)
	}, opts...)
	if err != nil || !tkn.Valid {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, errOrInvalid(err))
	}
	return claims.identity()
}

func (v *JWKSVerifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	fresh := v.keys != nil && now.Sub(v.fetchedAt) < v.ttl
	if fresh {
		if k, ok := v.lookup(kid); ok {
			metrics.IncCacheRequest("jwks", "hit")
			return k, nil
		}
		if now.Sub(v.fetchedAt) < minRefresh {
			return nil, fmt.Errorf("unknown signing key %q", kid)
		}
	}
	metrics.IncCacheRequest("jwks", "miss")

	keys, err := v.fetch(ctx)
	if err != nil {
		metrics.IncCacheRequest("jwks", "refresh_error")
		if v.keys != nil {
			if k, ok := v.lookup(kid); ok {
				return k, nil
			}
		}
		return nil, err
	}
	v.keys = keys
	v.fetchedAt = now
	if k, ok := v.lookup(kid); ok {
		return k, nil
	}
	return nil, fmt.Errorf("unknown signing key %q", kid)
}

// lookup resolves kid; an empty kid is accepted only when the set has one key.
func (v *JWKSVerifier) lookup(kid string) (*rsa.PublicKey, bool) {
	if kid == "" && len(v.keys) == 1 {
		for _, k := range v.keys {
			return k, true
		}
	}
	k, ok := v.keys[kid]
	return k, ok
}

func (v *JWKSVerifier) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}

	var set struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := k.rsa()
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, errors.New("jwks contains no usable RSA keys")
	}
	return keys, nil
}

func (k jwk) rsa() (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, err
	}
	e := new(big.Int).SetBytes(eb)
	if !e.IsInt64() || e.Int64() <= 1 {
		return nil, errors.New("bad exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(e.Int64())}, nil
}
