package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mediaforge/internal/domain/ports/adapter"
	"mediaforge/internal/infra/metrics"

	"github.com/go-redis/redis/v8"
)

var _ adapter.Publisher = (*StreamQueue)(nil)

const payloadField = "data"

// StreamMessage is one entry read from a job stream.
type StreamMessage struct {
	Topic   string
	ID      string
	Payload []byte
}

// StreamQueue carries job messages on Redis streams, one stream per topic,
// consumed through a consumer group.
type StreamQueue struct {
	cli    *redis.Client
	maxLen int64
}

func NewStreamQueue(c *Client, maxLen int64) *StreamQueue {
	return &StreamQueue{cli: c.cli, maxLen: maxLen}
}

func (q *StreamQueue) Publish(ctx context.Context, topic string, payload []byte) (string, error) {
	id, err := q.cli.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]interface{}{payloadField: payload},
	}).Result()
	if err != nil {
		metrics.IncQueueMessage("stream", "publish_error")
		return "", fmt.Errorf("xadd %s: %w", topic, err)
	}
	metrics.IncQueueMessage("stream", "published")
	return id, nil
}

// EnsureGroup creates the consumer group on every topic, creating empty
// streams as needed. An existing group is not an error.
func (q *StreamQueue) EnsureGroup(ctx context.Context, group string, topics ...string) error {
	for _, t := range topics {
		err := q.cli.XGroupCreateMkStream(ctx, t, group, "0").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("create group %s on %s: %w", group, t, err)
		}
	}
	return nil
}

// ReadGroup blocks up to block for new entries. A timeout yields no messages
// and no error.
func (q *StreamQueue) ReadGroup(ctx context.Context, group, consumer string, topics []string, count int64, block time.Duration) ([]StreamMessage, error) {
	streams := make([]string, 0, 2*len(topics))
	streams = append(streams, topics...)
	for range topics {
		streams = append(streams, ">")
	}
	res, err := q.cli.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  streams,
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var out []StreamMessage
	for _, s := range res {
		for _, m := range s.Messages {
			out = append(out, StreamMessage{Topic: s.Stream, ID: m.ID, Payload: payloadOf(m.Values)})
		}
	}
	return out, nil
}

func (q *StreamQueue) Ack(ctx context.Context, group string, m StreamMessage) error {
	return q.cli.XAck(ctx, m.Topic, group, m.ID).Err()
}

func payloadOf(values map[string]interface{}) []byte {
	switch v := values[payloadField].(type) {
	case string:
		return []byte(v)
	case []byte:
		return v
	default:
		return nil
	}
}
