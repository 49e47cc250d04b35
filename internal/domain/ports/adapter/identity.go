package adapter

import "context"

// Identity is the verified subject of a bearer token.
type Identity struct {
	UserID string
	Email  string
}

type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}
