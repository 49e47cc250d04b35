//go:build !integration

package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mediaforge/internal/config"
	"mediaforge/internal/domain"
	"mediaforge/internal/domain/model"
	"mediaforge/internal/domain/ports/adapter"
	"mediaforge/internal/usecase"
)

type dispatchFixture struct {
	ledgerFixture
	pub    *fakePublisher
	feed   *nopFeed
	ledger usecase.LedgerUseCase
	outbox usecase.OutboxUseCase
	uc     usecase.DispatchUseCase
}

func newDispatchFixture() *dispatchFixture {
	lf := newLedgerFixture()
	logger := zerolog.Nop()
	pub := &fakePublisher{}
	feed := &nopFeed{}
	outbox := usecase.NewOutboxUseCase(memOutbox{lf.db}, pub, &logger).WithClock(lf.clock.Now)
	uc := usecase.NewDispatchUseCase(
		memIllustrations{lf.db}, memBrands{lf.db}, memOutbox{lf.db},
		lf.uc, outbox, feed, wordMeter{},
		usecase.NewStyleCatalog(config.DefaultStyles()),
		lf.db,
		usecase.DispatchConfig{PromptMaxTokens: 50},
		&logger,
	).WithClock(lf.clock.Now)
	return &dispatchFixture{ledgerFixture: *lf, pub: pub, feed: feed, ledger: lf.uc, outbox: outbox, uc: uc}
}

func ident(userID string) *adapter.Identity {
	return &adapter.Identity{UserID: userID, Email: userID + "@example.com"}
}

func (f *dispatchFixture) assertNoEffects(t *testing.T) {
	t.Helper()
	if n := len(f.db.illustrations) + len(f.db.brands); n != 0 {
		t.Errorf("expected no job records, got %d", n)
	}
	if len(f.db.outbox) != 0 {
		t.Errorf("expected no outbox rows, got %d", len(f.db.outbox))
	}
	if f.pub.count(model.TopicGeneration)+f.pub.count(model.TopicTraining) != 0 {
		t.Error("expected nothing published")
	}
}

func TestGenerate_Accepted(t *testing.T) {
	f := newDispatchFixture()
	f.addUser("u1", model.PlanFree, 9)

	res, err := f.uc.Generate(context.Background(), ident("u1"), usecase.GenerateRequest{
		UserID:  "u1",
		Prompt:  "  a friendly robot  ",
		StyleID: "google",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Status != model.IllustrationQueued || res.CreditsUsed != 1 || res.Remaining != 0 {
		t.Errorf("unexpected result %+v", res)
	}

	il := f.db.illustrations[res.IllustrationID]
	if il == nil {
		t.Fatal("record not created")
	}
	if il.Prompt != "a friendly robot" || il.Width != 1024 || il.Height != 1024 || il.StyleName != "Google" {
		t.Errorf("unexpected record %+v", il)
	}
	if il.Style != model.PresetStyle("google") || il.TeamID != nil {
		t.Errorf("unexpected style/team on record %+v", il)
	}

	// dispatch does not charge
	if f.db.users["u1"].CreditsUsed != 9 {
		t.Error("dispatch must not debit")
	}

	if f.pub.count(model.TopicGeneration) != 1 {
		t.Fatalf("expected one published message, got %d", f.pub.count(model.TopicGeneration))
	}
	var msg model.JobMessage
	if err := json.Unmarshal(f.pub.sent[model.TopicGeneration][0], &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg.IllustrationID != il.ID || msg.Kind != model.JobKindGeneration || msg.StyleID != "google" {
		t.Errorf("unexpected message %+v", msg)
	}
	for _, ob := range f.db.outbox {
		if ob.DispatchedAt == nil {
			t.Error("outbox row should be marked dispatched")
		}
	}
	if len(f.feed.changes) != 1 || f.feed.changes[0].Status != "queued" {
		t.Errorf("expected one queued change event, got %+v", f.feed.changes)
	}
}

func TestGenerate_Rejections(t *testing.T) {
	long := strings.Repeat("word ", 60)
	cases := []struct {
		name    string
		setup   func(f *dispatchFixture)
		id      *adapter.Identity
		req     usecase.GenerateRequest
		wantErr error
	}{
		{"no identity", nil, nil, usecase.GenerateRequest{UserID: "u1", Prompt: "x", StyleID: "google"}, domain.ErrUnauthorized},
		{"other user", nil, ident("u2"), usecase.GenerateRequest{UserID: "u1", Prompt: "x", StyleID: "google"}, domain.ErrForbidden},
		{"missing user id", nil, ident("u1"), usecase.GenerateRequest{Prompt: "x", StyleID: "google"}, domain.ErrValidation},
		{"empty prompt", nil, ident("u1"), usecase.GenerateRequest{UserID: "u1", Prompt: "   ", StyleID: "google"}, domain.ErrValidation},
		{"prompt too long", nil, ident("u1"), usecase.GenerateRequest{UserID: "u1", Prompt: long, StyleID: "google"}, domain.ErrValidation},
		{"no style", nil, ident("u1"), usecase.GenerateRequest{UserID: "u1", Prompt: "x"}, domain.ErrValidation},
		{"bad width", nil, ident("u1"), usecase.GenerateRequest{UserID: "u1", Prompt: "x", StyleID: "google", Width: 512}, domain.ErrValidation},
		{"bad height", nil, ident("u1"), usecase.GenerateRequest{UserID: "u1", Prompt: "x", StyleID: "google", Height: 4096}, domain.ErrValidation},
		{"unknown user", nil, ident("ghost"), usecase.GenerateRequest{UserID: "ghost", Prompt: "x", StyleID: "google"}, domain.ErrAccountNotFound},
		{
			"out of credits",
			func(f *dispatchFixture) { f.addUser("u1", model.PlanFree, 10) },
			ident("u1"), usecase.GenerateRequest{UserID: "u1", Prompt: "x", StyleID: "google"}, domain.ErrInsufficientCredits,
		},
		{
			"2048 costs two",
			func(f *dispatchFixture) { f.addUser("u1", model.PlanFree, 9) },
			ident("u1"), usecase.GenerateRequest{UserID: "u1", Prompt: "x", StyleID: "google", Width: 2048}, domain.ErrInsufficientCredits,
		},
		{
			"team daily limit",
			func(f *dispatchFixture) { f.addTeam("team_a", 5, 500, 500, t0.Add(time.Hour), "u1") },
			ident("u1"), usecase.GenerateRequest{UserID: "u1", Prompt: "x", StyleID: "google"}, domain.ErrDailyLimitExceeded,
		},
		{
			"brand not found",
			func(f *dispatchFixture) { f.addUser("u1", model.PlanFree, 0) },
			ident("u1"), usecase.GenerateRequest{UserID: "u1", Prompt: "x", BrandID: "brand_nope"}, domain.ErrNotFound,
		},
		{
			"brand of another user",
			func(f *dispatchFixture) {
				f.addUser("u1", model.PlanFree, 0)
				f.db.brands["brand_other"] = &model.Brand{ID: "brand_other", UserID: "u9", Status: model.BrandReady}
			},
			ident("u1"), usecase.GenerateRequest{UserID: "u1", Prompt: "x", StyleKind: "brand", StyleID: "brand_other"}, domain.ErrNotFound,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newDispatchFixture()
			if tc.setup != nil {
				tc.setup(f)
			}
			before := make(map[string]model.User, len(f.db.users))
			for id, u := range f.db.users {
				before[id] = *u
			}
			brandCount := len(f.db.brands)

			_, err := f.uc.Generate(context.Background(), tc.id, tc.req)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if len(f.db.illustrations) != 0 || len(f.db.outbox) != 0 || len(f.db.brands) != brandCount {
				t.Error("rejected request left records behind")
			}
			if f.pub.count(model.TopicGeneration) != 0 {
				t.Error("rejected request published a message")
			}
			for id, u := range f.db.users {
				if u.CreditsUsed != before[id].CreditsUsed {
					t.Errorf("user %s usage changed on rejection", id)
				}
			}
		})
	}
}

func TestGenerate_TeamAndBrand(t *testing.T) {
	f := newDispatchFixture()
	f.addTeam("team_a", 50, 0, 500, t0.Add(time.Hour), "owner", "m1")
	teamID := "team_a"
	f.db.brands["brand_shared"] = &model.Brand{ID: "brand_shared", UserID: "owner", TeamID: &teamID, Name: "Acme", Status: model.BrandTraining}

	res, err := f.uc.Generate(context.Background(), ident("m1"), usecase.GenerateRequest{
		UserID:  "m1",
		Prompt:  "team mascot",
		BrandID: "brand_shared",
		Width:   2048,
		Height:  1536,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	il := f.db.illustrations[res.IllustrationID]
	if il.TeamID == nil || *il.TeamID != "team_a" {
		t.Errorf("expected team job, got %+v", il.TeamID)
	}
	if il.Style != model.BrandStyle("brand_shared") || il.StyleName != "Acme" {
		t.Errorf("unexpected style %+v / %q", il.Style, il.StyleName)
	}
	if res.CreditsUsed != 2 || res.Remaining != 48 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestGenerate_PublishFailureKeepsRecordForRelay(t *testing.T) {
	f := newDispatchFixture()
	f.addUser("u1", model.PlanFree, 0)
	f.pub.err = errors.New("queue unavailable")

	res, err := f.uc.Generate(context.Background(), ident("u1"), usecase.GenerateRequest{UserID: "u1", Prompt: "x", StyleID: "notion"})
	if err != nil {
		t.Fatalf("Generate should succeed once committed: %v", err)
	}
	if f.db.illustrations[res.IllustrationID] == nil {
		t.Fatal("record missing")
	}
	var pending *model.OutboxMessage
	for _, ob := range f.db.outbox {
		pending = ob
	}
	if pending == nil || pending.DispatchedAt != nil || pending.Attempts != 1 || pending.LastError == "" {
		t.Fatalf("expected a pending outbox row with one failed attempt, got %+v", pending)
	}

	// queue is back; the relay picks the row up after the grace period
	f.pub.err = nil
	f.clock.Advance(time.Minute)
	sent, err := f.outbox.RelayPending(context.Background(), 30*time.Second, 10)
	if err != nil {
		t.Fatalf("RelayPending: %v", err)
	}
	if sent != 1 || f.pub.count(model.TopicGeneration) != 1 {
		t.Errorf("expected one relayed message, sent=%d published=%d", sent, f.pub.count(model.TopicGeneration))
	}
	if pending := f.db.outbox[pending.ID]; pending.DispatchedAt == nil {
		t.Error("relayed row should be dispatched")
	}
}

func TestGenerate_StoreFailureLeavesNothing(t *testing.T) {
	f := newDispatchFixture()
	f.addUser("u1", model.PlanFree, 0)
	f.db.enqueueErr = errors.New("disk full")

	if _, err := f.uc.Generate(context.Background(), ident("u1"), usecase.GenerateRequest{UserID: "u1", Prompt: "x", StyleID: "google"}); err == nil {
		t.Fatal("expected an error")
	}
	f.assertNoEffects(t)
}

func trainRequest(userID string) usecase.TrainRequest {
	imgs := make([]string, model.MinTrainingImages)
	for i := range imgs {
		imgs[i] = "https://uploads.test/img" + string(rune('a'+i)) + ".png"
	}
	return usecase.TrainRequest{
		UserID:         userID,
		BrandName:      "Acme",
		BrandColors:    []model.BrandColor{{Hex: "#112233"}, {Hex: "#fff", Name: "white"}},
		BrandStyle:     "minimal",
		TrainingImages: imgs,
	}
}

func TestTrainBrand(t *testing.T) {
	t.Run("business user is queued", func(t *testing.T) {
		f := newDispatchFixture()
		f.addUser("biz", model.PlanBusiness, 0)

		res, err := f.uc.TrainBrand(context.Background(), ident("biz"), trainRequest("biz"))
		if err != nil {
			t.Fatalf("TrainBrand: %v", err)
		}
		if !strings.HasPrefix(res.BrandID, "brand_") || res.Status != model.BrandQueued || res.EstimatedTime != 900 {
			t.Errorf("unexpected result %+v", res)
		}
		b := f.db.brands[res.BrandID]
		if b.Status != model.BrandQueued || b.ImageCount != 10 || b.TrainingDataPath != "training-data/"+b.ID+"/" {
			t.Errorf("unexpected brand %+v", b)
		}
		if b.TrainingJobID != res.TrainingJobID || !strings.HasPrefix(b.TrainingJobID, "lora-"+b.ID+"-") {
			t.Errorf("unexpected training job id %q", b.TrainingJobID)
		}
		if f.pub.count(model.TopicTraining) != 1 {
			t.Error("expected a training message")
		}
		if f.db.users["biz"].CreditsUsed != 0 {
			t.Error("training is not charged")
		}
	})

	t.Run("business team member trains for the team", func(t *testing.T) {
		f := newDispatchFixture()
		f.addTeam("team_a", 10, 0, 500, t0.Add(time.Hour), "owner", "m1")
		f.db.users["m1"].Plan = model.PlanBusiness
		res, err := f.uc.TrainBrand(context.Background(), ident("m1"), trainRequest("m1"))
		if err != nil {
			t.Fatalf("TrainBrand: %v", err)
		}
		if b := f.db.brands[res.BrandID]; b.TeamID == nil || *b.TeamID != "team_a" {
			t.Error("expected brand to belong to the team")
		}
	})

	t.Run("free member of a business team is refused", func(t *testing.T) {
		f := newDispatchFixture()
		f.addTeam("team_a", 10, 0, 500, t0.Add(time.Hour), "owner", "m1")
		f.db.teams["team_a"].Plan = model.PlanBusiness
		if _, err := f.uc.TrainBrand(context.Background(), ident("m1"), trainRequest("m1")); !errors.Is(err, domain.ErrTierRequired) {
			t.Fatalf("err = %v, want ErrTierRequired", err)
		}
		f.assertNoEffects(t)
	})

	rejections := []struct {
		name    string
		mutate  func(r *usecase.TrainRequest)
		plan    string
		wantErr error
	}{
		{"free plan", nil, model.PlanFree, domain.ErrTierRequired},
		{"missing name", func(r *usecase.TrainRequest) { r.BrandName = " " }, model.PlanBusiness, domain.ErrValidation},
		{"too few images", func(r *usecase.TrainRequest) { r.TrainingImages = r.TrainingImages[:9] }, model.PlanBusiness, domain.ErrValidation},
		{"bad image url", func(r *usecase.TrainRequest) { r.TrainingImages[3] = "not a url" }, model.PlanBusiness, domain.ErrValidation},
		{"bad color", func(r *usecase.TrainRequest) { r.BrandColors[0].Hex = "red" }, model.PlanBusiness, domain.ErrValidation},
	}
	for _, tc := range rejections {
		t.Run(tc.name, func(t *testing.T) {
			f := newDispatchFixture()
			f.addUser("u1", tc.plan, 0)
			req := trainRequest("u1")
			if tc.mutate != nil {
				tc.mutate(&req)
			}
			if _, err := f.uc.TrainBrand(context.Background(), ident("u1"), req); !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			f.assertNoEffects(t)
		})
	}
}

func TestGetIllustrationAndBrand_OwnerOnly(t *testing.T) {
	f := newDispatchFixture()
	f.db.illustrations["il_1"] = &model.Illustration{ID: "il_1", UserID: "u1", Status: model.IllustrationQueued}
	f.db.brands["brand_1"] = &model.Brand{ID: "brand_1", UserID: "u1", Status: model.BrandReady}
	ctx := context.Background()

	if _, err := f.uc.GetIllustration(ctx, ident("u1"), "il_1"); err != nil {
		t.Errorf("owner read: %v", err)
	}
	if _, err := f.uc.GetIllustration(ctx, ident("u2"), "il_1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for other user, got %v", err)
	}
	if _, err := f.uc.GetIllustration(ctx, nil, "il_1"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := f.uc.GetBrand(ctx, ident("u1"), "brand_1"); err != nil {
		t.Errorf("owner brand read: %v", err)
	}
	if _, err := f.uc.GetBrand(ctx, ident("u2"), "brand_1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
