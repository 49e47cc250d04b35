// Package sched holds the periodic jobs run by the worker and gateway.
package sched

import (
	"context"
	"time"

	"mediaforge/internal/infra/metrics"
	"mediaforge/internal/usecase"

	"github.com/rs/zerolog"
)

// ReaperJob fails jobs stuck in processing or training.
type ReaperJob struct {
	reaper usecase.ReaperUseCase
	log    *zerolog.Logger
}

func NewReaperJob(reaper usecase.ReaperUseCase, logger *zerolog.Logger) *ReaperJob {
	l := logger.With().Str("component", "ReaperJob").Logger()
	return &ReaperJob{reaper: reaper, log: &l}
}

func (j *ReaperJob) Name() string { return "stale-reaper" }

func (j *ReaperJob) RunOnce(ctx context.Context) error {
	res, err := j.reaper.ReapStale(ctx)
	if res.Illustrations > 0 || res.Brands > 0 || res.Requeued > 0 {
		j.log.Info().Int("illustrations", res.Illustrations).Int("brands", res.Brands).Int("requeued", res.Requeued).Msg("watchdog pass")
	}
	return err
}

// CreditResetJob refills team pools whose billing cycle has rolled over.
type CreditResetJob struct {
	ledger usecase.LedgerUseCase
	batch  int
	now    func() time.Time
	log    *zerolog.Logger
}

func NewCreditResetJob(ledger usecase.LedgerUseCase, batch int, logger *zerolog.Logger) *CreditResetJob {
	if batch <= 0 {
		batch = 100
	}
	l := logger.With().Str("component", "CreditResetJob").Logger()
	return &CreditResetJob{ledger: ledger, batch: batch, now: time.Now, log: &l}
}

func (j *CreditResetJob) Name() string { return "team-credit-reset" }

func (j *CreditResetJob) RunOnce(ctx context.Context) error {
	n, err := j.ledger.ResetDueTeams(ctx, j.now(), j.batch)
	if n > 0 {
		metrics.AddTeamCreditResets(n)
		j.log.Info().Int("count", n).Msg("team credit pools reset")
	}
	return err
}

// OutboxRelayJob republishes job messages whose inline publish did not land.
type OutboxRelayJob struct {
	outbox usecase.OutboxUseCase
	grace  time.Duration
	batch  int
	log    *zerolog.Logger
}

func NewOutboxRelayJob(outbox usecase.OutboxUseCase, grace time.Duration, batch int, logger *zerolog.Logger) *OutboxRelayJob {
	if grace <= 0 {
		grace = 30 * time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	l := logger.With().Str("component", "OutboxRelayJob").Logger()
	return &OutboxRelayJob{outbox: outbox, grace: grace, batch: batch, log: &l}
}

func (j *OutboxRelayJob) Name() string { return "outbox-relay" }

func (j *OutboxRelayJob) RunOnce(ctx context.Context) error {
	n, err := j.outbox.RelayPending(ctx, j.grace, j.batch)
	if n > 0 {
		j.log.Info().Int("count", n).Msg("outbox messages relayed")
	}
	return err
}
