package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mediaforge/internal/domain"
	"mediaforge/internal/domain/ports/adapter"

	"github.com/golang-jwt/jwt/v5"
)

var _ adapter.IdentityVerifier = (*HMACVerifier)(nil)

// HMACVerifier accepts HS256 tokens signed with a shared secret. It is meant
// for development and for tokens minted by forgectl.
type HMACVerifier struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

func NewHMACVerifier(secret, issuer, audience string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret), issuer: issuer, audience: audience, now: time.Now}
}

func (v *HMACVerifier) Verify(_ context.Context, token string) (*adapter.Identity, error) {
	if len(v.secret) == 0 {
		return nil, fmt.Errorf("%w: verifier has no secret", domain.ErrUnauthorized)
	}
	claims := &Claims{}
	opts := append(parserOptions(jwt.SigningMethodHS256.Alg(), v.issuer, v.audience), jwt.WithTimeFunc(v.now))
	tkn, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !tkn.Valid {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, errOrInvalid(err))
	}
	return claims.identity()
}

// Mint signs an identity token for userID valid for ttl.
func (v *HMACVerifier) Mint(userID, email string, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", errors.New("cannot mint without a secret")
	}
	now := v.now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func errOrInvalid(err error) error {
	if err != nil {
		return err
	}
	return errors.New("invalid token")
}
