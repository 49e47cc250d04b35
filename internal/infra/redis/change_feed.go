package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"mediaforge/internal/domain/ports/adapter"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

var _ adapter.ChangeFeed = (*PubSubFeed)(nil)

// PubSubFeed publishes job changes on one channel per record.
type PubSubFeed struct {
	cli    *redis.Client
	buffer int
	log    *zerolog.Logger
}

func NewPubSubFeed(c *Client, logger *zerolog.Logger) *PubSubFeed {
	l := logger.With().Str("component", "ChangeFeed").Logger()
	return &PubSubFeed{cli: c.cli, buffer: 16, log: &l}
}

func ChannelFor(kind, id string) string {
	return fmt.Sprintf("jobs:%s:%s", kind, id)
}

func (f *PubSubFeed) Notify(ctx context.Context, change adapter.JobChange) error {
	b, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return f.cli.Publish(ctx, ChannelFor(change.Kind, change.ID), b).Err()
}

// Subscribe only forwards changes newer than the last one forwarded, so a
// late or duplicated publish never moves a subscriber backwards.
func (f *PubSubFeed) Subscribe(ctx context.Context, kind, id string) (<-chan adapter.JobChange, error) {
	ps := f.cli.Subscribe(ctx, ChannelFor(kind, id))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s/%s: %w", kind, id, err)
	}

	out := make(chan adapter.JobChange, f.buffer)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		var last int64
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var ch adapter.JobChange
				if err := json.Unmarshal([]byte(m.Payload), &ch); err != nil {
					f.log.Warn().Err(err).Str("channel", m.Channel).Msg("undecodable change dropped")
					continue
				}
				if ch.Version <= last {
					continue
				}
				last = ch.Version
				select {
				case out <- ch:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
