package adapter

import "context"

// BlobStore is the port for generated asset storage.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string, meta map[string]string) error
	MakePublic(ctx context.Context, key string) error
	Get(ctx context.Context, key string) ([]byte, error)
	PublicURL(key string) string
}
