package worker

import (
	"context"
	"errors"
	"time"

	"mediaforge/internal/domain/model"
	"mediaforge/internal/infra/metrics"
	"mediaforge/internal/infra/redis"

	"github.com/rs/zerolog"
)

// StreamSource is the consumer-group side of the queue.
type StreamSource interface {
	EnsureGroup(ctx context.Context, group string, topics ...string) error
	ReadGroup(ctx context.Context, group, consumer string, topics []string, count int64, block time.Duration) ([]redis.StreamMessage, error)
	Ack(ctx context.Context, group string, m redis.StreamMessage) error
}

type Submitter interface {
	Submit(task Task) error
}

type TaskBuilder interface {
	Task(msg model.JobMessage) Task
}

type ConsumerConfig struct {
	Group    string
	Consumer string
	Count    int64
	Block    time.Duration
	Topics   []string
}

// Consumer reads job messages from the stream group and feeds the pool.
// Messages are acked on receipt: duplicate or lost deliveries are handled by
// the status CAS and the stale-job reaper, not by redelivery.
type Consumer struct {
	src     StreamSource
	pool    Submitter
	jobs    TaskBuilder
	cfg     ConsumerConfig
	backoff time.Duration
	log     *zerolog.Logger
}

func NewConsumer(src StreamSource, pool Submitter, jobs TaskBuilder, cfg ConsumerConfig, logger *zerolog.Logger) *Consumer {
	if cfg.Count <= 0 {
		cfg.Count = 10
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if len(cfg.Topics) == 0 {
		cfg.Topics = []string{model.TopicGeneration, model.TopicTraining}
	}
	l := logger.With().Str("component", "StreamConsumer").Str("consumer", cfg.Consumer).Logger()
	return &Consumer{src: src, pool: pool, jobs: jobs, cfg: cfg, backoff: time.Second, log: &l}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		err := c.src.EnsureGroup(ctx, c.cfg.Group, c.cfg.Topics...)
		if err == nil {
			break
		}
		c.log.Error().Err(err).Msg("ensure consumer group")
		if !c.sleep(ctx) {
			return ctx.Err()
		}
	}
	c.log.Info().Str("group", c.cfg.Group).Strs("topics", c.cfg.Topics).Msg("stream consumer started")

	for {
		if ctx.Err() != nil {
			c.log.Info().Msg("stream consumer stopped")
			return nil
		}
		msgs, err := c.src.ReadGroup(ctx, c.cfg.Group, c.cfg.Consumer, c.cfg.Topics, c.cfg.Count, c.cfg.Block)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			metrics.IncQueueMessage("stream", "read_error")
			c.log.Error().Err(err).Msg("read stream")
			c.sleep(ctx)
			continue
		}
		for _, m := range msgs {
			c.handle(ctx, m)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, m redis.StreamMessage) {
	if err := c.src.Ack(ctx, c.cfg.Group, m); err != nil {
		c.log.Warn().Err(err).Str("stream_id", m.ID).Msg("ack failed")
	}
	msg, err := DecodeJobMessage(m.Payload)
	if err != nil {
		metrics.IncQueueMessage("stream", "malformed")
		c.log.Warn().Err(err).Str("stream_id", m.ID).Str("topic", m.Topic).Msg("dropping malformed message")
		return
	}
	metrics.IncQueueMessage("stream", "received")

	task := c.jobs.Task(msg)
	for {
		err := c.pool.Submit(task)
		if err == nil {
			return
		}
		if !errors.Is(err, ErrPoolFull) {
			c.log.Error().Err(err).Str("job_id", msg.JobID()).Msg("could not schedule job")
			return
		}
		// Backpressure: wait for a free slot instead of reading further.
		select {
		case <-ctx.Done():
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (c *Consumer) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.backoff):
		return true
	}
}
