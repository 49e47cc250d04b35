package usecase

import (
	"context"
	"fmt"
	"time"

	"mediaforge/internal/domain"
	"mediaforge/internal/domain/model"
	"mediaforge/internal/domain/ports/adapter"
	"mediaforge/internal/domain/ports/repository"
	"mediaforge/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var _ OutboxUseCase = (*outboxUC)(nil)

// OutboxUseCase publishes messages that were committed together with their job
// record. Publishing twice is harmless: the worker's status CAS drops the
// second delivery.
type OutboxUseCase interface {
	// Publish sends one committed message and marks it dispatched. path is a
	// metrics label ("inline" or "relay").
	Publish(ctx context.Context, m *model.OutboxMessage, path string) error
	// RelayPending republishes undispatched messages older than grace.
	RelayPending(ctx context.Context, grace time.Duration, limit int) (int, error)
}

type outboxUC struct {
	outbox    repository.OutboxRepository
	publisher adapter.Publisher
	now       func() time.Time
	log       *zerolog.Logger
}

func NewOutboxUseCase(outbox repository.OutboxRepository, publisher adapter.Publisher, logger *zerolog.Logger) *outboxUC {
	l := logger.With().Str("component", "Outbox").Logger()
	return &outboxUC{outbox: outbox, publisher: publisher, now: time.Now, log: &l}
}

func (u *outboxUC) WithClock(now func() time.Time) *outboxUC {
	u.now = now
	return u
}

func (u *outboxUC) Publish(ctx context.Context, m *model.OutboxMessage, path string) error {
	msgID, err := u.publisher.Publish(ctx, m.Topic, m.Payload)
	if err != nil {
		metrics.IncOutboxPublish(path, "error")
		if markErr := u.outbox.MarkFailed(ctx, nil, m.ID, domain.PublicMessage(err)); markErr != nil {
			u.log.Error().Err(markErr).Str("outbox_id", m.ID).Msg("record publish failure")
		}
		return fmt.Errorf("publish %s: %w", m.Topic, err)
	}
	metrics.IncOutboxPublish(path, "ok")
	if err := u.outbox.MarkDispatched(ctx, nil, m.ID, u.now()); err != nil {
		// the relay will publish it again; the worker drops the duplicate
		u.log.Warn().Err(err).Str("outbox_id", m.ID).Msg("mark dispatched failed")
	}
	u.log.Debug().
		Str("outbox_id", m.ID).
		Str("job_id", m.JobID).
		Str("topic", m.Topic).
		Str("message_id", msgID).
		Str("path", path).
		Msg("job message published")
	return nil
}

func (u *outboxUC) RelayPending(ctx context.Context, grace time.Duration, limit int) (int, error) {
	pending, err := u.outbox.ListPending(ctx, nil, u.now().Add(-grace), limit)
	if err != nil {
		return 0, fmt.Errorf("list pending outbox: %w", err)
	}
	sent := 0
	for _, m := range pending {
		if ctx.Err() != nil {
			break
		}
		if err := u.Publish(ctx, m, "relay"); err != nil {
			u.log.Warn().Err(err).Str("outbox_id", m.ID).Int("attempts", m.Attempts+1).Msg("relay publish failed")
			continue
		}
		sent++
	}
	if n, err := u.outbox.CountPending(ctx, nil); err == nil {
		metrics.SetOutboxPending(n)
	}
	return sent, nil
}
