//go:build !integration

package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mediaforge/internal/domain/model"
	"mediaforge/internal/usecase"
)

func newTestReaper(db *memDB, pub *fakePublisher, feed *nopFeed) usecase.ReaperUseCase {
	logger := zerolog.Nop()
	clock := func() time.Time { return t0 }
	outbox := usecase.NewOutboxUseCase(memOutbox{db}, pub, &logger).WithClock(clock)
	return usecase.NewReaperUseCase(memIllustrations{db}, memBrands{db}, memOutbox{db}, outbox, feed, usecase.ReaperConfig{
		GenerationStaleAfter: 15 * time.Minute,
		TrainingStaleAfter:   2 * time.Hour,
		RequeueAfter:         5 * time.Minute,
	}, &logger).WithClock(clock)
}

func TestReaper_FailsOnlyStaleJobs(t *testing.T) {
	db := newMemDB()
	feed := &nopFeed{}
	uc := newTestReaper(db, &fakePublisher{}, feed)

	at := func(d time.Duration) *time.Time { v := t0.Add(-d); return &v }
	db.illustrations["stuck"] = &model.Illustration{ID: "stuck", Status: model.IllustrationProcessing, ProcessingStartedAt: at(20 * time.Minute)}
	db.illustrations["busy"] = &model.Illustration{ID: "busy", Status: model.IllustrationProcessing, ProcessingStartedAt: at(time.Minute)}
	db.illustrations["waiting"] = &model.Illustration{ID: "waiting", Status: model.IllustrationQueued, CreatedAt: *at(time.Minute)}
	db.brands["slow"] = &model.Brand{ID: "slow", Status: model.BrandTraining, TrainingStartedAt: at(3 * time.Hour)}
	db.brands["ok"] = &model.Brand{ID: "ok", Status: model.BrandTraining, TrainingStartedAt: at(time.Hour)}

	res, err := uc.ReapStale(context.Background())
	if err != nil {
		t.Fatalf("ReapStale: %v", err)
	}
	if res.Illustrations != 1 || res.Brands != 1 || res.Requeued != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if il := db.illustrations["stuck"]; il.Status != model.IllustrationFailed || il.Error != "generation timed out" || il.FailedAt == nil {
		t.Errorf("stuck job not failed: %+v", il)
	}
	if db.illustrations["busy"].Status != model.IllustrationProcessing || db.illustrations["waiting"].Status != model.IllustrationQueued {
		t.Error("fresh jobs must be left alone")
	}
	if b := db.brands["slow"]; b.Status != model.BrandFailed || b.Error != "training timed out" {
		t.Errorf("slow brand not failed: %+v", b)
	}
	if db.brands["ok"].Status != model.BrandTraining {
		t.Error("recent training must be left alone")
	}
	if len(feed.changes) != 2 {
		t.Errorf("expected 2 change events, got %d", len(feed.changes))
	}

	// a second pass finds nothing
	res, _ = uc.ReapStale(context.Background())
	if res.Illustrations+res.Brands != 0 {
		t.Errorf("second pass reaped %+v", res)
	}
}

func TestReaper_RepublishesUnclaimedJobs(t *testing.T) {
	db := newMemDB()
	pub := &fakePublisher{}
	feed := &nopFeed{}
	uc := newTestReaper(db, pub, feed)

	at := func(d time.Duration) time.Time { return t0.Add(-d) }
	db.illustrations["lost"] = &model.Illustration{ID: "lost", UserID: "u1", Status: model.IllustrationQueued,
		Style: model.PresetStyle("notion"), Width: 1024, Height: 1024, CreatedAt: at(10 * time.Minute)}
	db.illustrations["recent"] = &model.Illustration{ID: "recent", UserID: "u1", Status: model.IllustrationQueued, CreatedAt: at(time.Minute)}
	db.brands["lost-brand"] = &model.Brand{ID: "lost-brand", UserID: "u2", Status: model.BrandQueued, ImageCount: 12, CreatedAt: at(time.Hour)}

	res, err := uc.ReapStale(context.Background())
	if err != nil {
		t.Fatalf("ReapStale: %v", err)
	}
	if res.Requeued != 2 || res.Illustrations+res.Brands != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if pub.count(model.TopicGeneration) != 1 || pub.count(model.TopicTraining) != 1 {
		t.Fatalf("published %v", pub.sent)
	}

	var msg model.JobMessage
	if err := json.Unmarshal(pub.sent[model.TopicGeneration][0], &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Kind != model.JobKindGeneration || msg.IllustrationID != "lost" || msg.StyleID != "notion" {
		t.Errorf("unexpected message %+v", msg)
	}
	if err := json.Unmarshal(pub.sent[model.TopicTraining][0], &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.JobID() != "lost-brand" || msg.ImageCount != 12 {
		t.Errorf("unexpected message %+v", msg)
	}

	if db.illustrations["lost"].Status != model.IllustrationQueued || db.brands["lost-brand"].Status != model.BrandQueued {
		t.Error("requeue must not change the job status")
	}
	if len(feed.changes) != 0 {
		t.Errorf("requeue announced %d changes", len(feed.changes))
	}
	for id, m := range db.outbox {
		if m.DispatchedAt == nil {
			t.Errorf("outbox row %s not marked dispatched", id)
		}
	}
}

func TestReaper_RequeueFallsBackToRelay(t *testing.T) {
	db := newMemDB()
	pub := &fakePublisher{err: errors.New("queue down")}
	uc := newTestReaper(db, pub, &nopFeed{})

	db.illustrations["lost"] = &model.Illustration{ID: "lost", UserID: "u1", Status: model.IllustrationQueued, CreatedAt: t0.Add(-time.Hour)}

	res, err := uc.ReapStale(context.Background())
	if err != nil {
		t.Fatalf("ReapStale: %v", err)
	}
	if res.Requeued != 1 {
		t.Errorf("requeued = %d, want 1", res.Requeued)
	}
	if len(db.outbox) != 1 {
		t.Fatalf("expected one outbox row, got %d", len(db.outbox))
	}
	for _, m := range db.outbox {
		if m.DispatchedAt != nil || m.JobID != "lost" {
			t.Errorf("row should stay pending for the relay: %+v", m)
		}
	}
}
