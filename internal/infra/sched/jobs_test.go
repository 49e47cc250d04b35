//go:build !integration

package sched

import (
	"context"
	"errors"
	"testing"
	"time"

	"mediaforge/internal/usecase"

	"github.com/rs/zerolog"
)

type fakeReaper struct {
	res usecase.ReapResult
	err error
}

func (f fakeReaper) ReapStale(context.Context) (usecase.ReapResult, error) { return f.res, f.err }

type fakeLedger struct {
	usecase.LedgerUseCase
	gotLimit int
	n        int
}

func (f *fakeLedger) ResetDueTeams(_ context.Context, _ time.Time, limit int) (int, error) {
	f.gotLimit = limit
	return f.n, nil
}

type fakeOutbox struct {
	usecase.OutboxUseCase
	grace time.Duration
	limit int
}

func (f *fakeOutbox) RelayPending(_ context.Context, grace time.Duration, limit int) (int, error) {
	f.grace, f.limit = grace, limit
	return 1, nil
}

func TestReaperJob(t *testing.T) {
	log := zerolog.Nop()
	boom := errors.New("db down")
	j := NewReaperJob(fakeReaper{res: usecase.ReapResult{Illustrations: 2}, err: boom}, &log)
	if err := j.RunOnce(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected error to surface, got %v", err)
	}
}

func TestCreditResetJob_Defaults(t *testing.T) {
	log := zerolog.Nop()
	l := &fakeLedger{n: 3}
	if err := NewCreditResetJob(l, 0, &log).RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if l.gotLimit != 100 {
		t.Fatalf("expected default batch 100, got %d", l.gotLimit)
	}
}

func TestOutboxRelayJob_Defaults(t *testing.T) {
	log := zerolog.Nop()
	o := &fakeOutbox{}
	if err := NewOutboxRelayJob(o, 0, 0, &log).RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if o.grace != 30*time.Second || o.limit != 100 {
		t.Fatalf("unexpected relay args grace=%s limit=%d", o.grace, o.limit)
	}
}
