package adapter

import (
	"context"
	"encoding/json"
	"time"
)

// Publisher enqueues job messages onto a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) (messageID string, err error)
}

// JobChange is emitted after every successful create or transition of a job
// record. Subscribers drop events whose Version is not newer than the last one
// they saw.
type JobChange struct {
	Kind    string          `json:"kind"`
	ID      string          `json:"id"`
	Status  string          `json:"status"`
	Version int64           `json:"version"`
	Record  json.RawMessage `json:"record"`
}

// ChangeFeed fans job record changes out to subscribers.
type ChangeFeed interface {
	Notify(ctx context.Context, change JobChange) error
	// Subscribe delivers changes for one record until ctx is done.
	Subscribe(ctx context.Context, kind, id string) (<-chan JobChange, error)
}

type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// RateLimiter counts hits per key in a fixed window. When a hit is refused,
// retryAfter is what is left of the window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, retryAfter time.Duration, err error)
}
