//go:build !integration

package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"mediaforge/internal/domain"
)

// --- User Model Tests ---

func TestNewUser(t *testing.T) {
	t.Run("should create a new user on the free plan by default", func(t *testing.T) {
		user, err := NewUser("", "ada@example.com", "Ada", "")
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if user.ID == "" {
			t.Error("expected user ID to be non-empty")
		}
		if user.Plan != PlanFree {
			t.Errorf("expected plan %q, got %q", PlanFree, user.Plan)
		}
		if user.InTeam() {
			t.Error("new user should not be in a team")
		}
	})

	t.Run("should reject empty email", func(t *testing.T) {
		_, err := NewUser("", "  ", "Ada", PlanFree)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("should normalize plan names", func(t *testing.T) {
		user, _ := NewUser("u1", "ada@example.com", "Ada", " Business ")
		if user.Plan != PlanBusiness {
			t.Errorf("expected %q, got %q", PlanBusiness, user.Plan)
		}
	})
}

// --- Plan Table Tests ---

func TestPlanTable(t *testing.T) {
	table := DefaultPlanTable()
	cases := map[string]int{
		"free":     10,
		"business": 200,
		"BUSINESS": 200,
		"pro":      10,
		"":         10,
	}
	for plan, want := range cases {
		if got := table.Allowance(plan); got != want {
			t.Errorf("Allowance(%q) = %d, want %d", plan, got, want)
		}
	}

	custom := NewPlanTable(map[string]int{"Business": 500})
	if got := custom.Allowance("free"); got != 10 {
		t.Errorf("free fallback should be added, got %d", got)
	}
	if got := custom.Allowance("business"); got != 500 {
		t.Errorf("expected overridden allowance 500, got %d", got)
	}
}

// --- Status Machine Tests ---

func TestIllustrationStatus_CanTransition(t *testing.T) {
	allowed := [][2]IllustrationStatus{
		{IllustrationQueued, IllustrationProcessing},
		{IllustrationQueued, IllustrationFailed},
		{IllustrationProcessing, IllustrationCompleted},
		{IllustrationProcessing, IllustrationFailed},
	}
	for _, tr := range allowed {
		if !tr[0].CanTransition(tr[1]) {
			t.Errorf("%s -> %s should be allowed", tr[0], tr[1])
		}
	}

	denied := [][2]IllustrationStatus{
		{IllustrationCompleted, IllustrationProcessing},
		{IllustrationFailed, IllustrationQueued},
		{IllustrationProcessing, IllustrationQueued},
		{IllustrationQueued, IllustrationCompleted},
	}
	for _, tr := range denied {
		if tr[0].CanTransition(tr[1]) {
			t.Errorf("%s -> %s should be rejected", tr[0], tr[1])
		}
	}
}

func TestBrandStatus_CanTransition(t *testing.T) {
	if !BrandPreparing.CanTransition(BrandQueued) || !BrandQueued.CanTransition(BrandTraining) || !BrandTraining.CanTransition(BrandReady) {
		t.Error("forward brand transitions should be allowed")
	}
	for _, from := range []BrandStatus{BrandPreparing, BrandQueued, BrandTraining} {
		if !from.CanTransition(BrandFailed) {
			t.Errorf("%s -> failed should be allowed", from)
		}
	}
	if BrandReady.CanTransition(BrandFailed) || BrandFailed.CanTransition(BrandQueued) {
		t.Error("terminal brand states must not move")
	}
}

func TestIllustration_JSONFlattensStyle(t *testing.T) {
	il := &Illustration{ID: "il-1", UserID: "u1", Style: BrandStyle("brand_x"), Status: IllustrationQueued, Version: 1}

	raw, err := json.Marshal(il)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var keys map[string]any
	if err := json.Unmarshal(raw, &keys); err != nil {
		t.Fatalf("unmarshal keys: %v", err)
	}
	if keys["styleId"] != "brand_x" || keys["styleKind"] != string(StyleKindBrand) {
		t.Errorf("style fields not at top level: %s", raw)
	}
	if _, ok := keys["style"]; ok {
		t.Errorf("nested style object still present: %s", raw)
	}
	if keys["id"] != "il-1" || keys["status"] != "queued" {
		t.Errorf("record fields lost: %s", raw)
	}

	var back Illustration
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Style != il.Style || back.ID != il.ID {
		t.Errorf("decoded %+v", back)
	}
}

func TestIllustrationPatch_SetsTimestampsOnce(t *testing.T) {
	first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	later := first.Add(time.Hour)
	il := &Illustration{}

	IllustrationPatch{ProcessingStartedAt: &first}.Apply(il)
	IllustrationPatch{ProcessingStartedAt: &later}.Apply(il)

	if !il.ProcessingStartedAt.Equal(first) {
		t.Errorf("ProcessingStartedAt was overwritten: %v", il.ProcessingStartedAt)
	}
}

// --- Team Tests ---

func TestTeam_DailyWindow(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	owner := &User{ID: "owner", Email: "o@example.com"}
	team := NewTeam("t1", "Acme", owner, now)

	if team.Credits != DefaultTeamCredits || team.DailyGenerationLimit != DefaultDailyGenerationLimit {
		t.Fatalf("unexpected team defaults: %+v", team)
	}
	if m, ok := team.Member("owner"); !ok || m.Role != TeamRoleOwner {
		t.Fatal("owner should be a member with owner role")
	}

	team.DailyGenerationsUsed = team.DailyGenerationLimit
	if !team.DailyLimitReached(now) {
		t.Error("limit should be reached inside the window")
	}
	if team.DailyLimitReached(now.Add(25 * time.Hour)) {
		t.Error("an expired window must not block")
	}
}

func TestBrand_AccessibleBy(t *testing.T) {
	team := "team-1"
	other := "team-2"
	b := &Brand{UserID: "u1", TeamID: &team}

	if !b.AccessibleBy("u1", nil) {
		t.Error("owner should have access")
	}
	if !b.AccessibleBy("u2", &team) {
		t.Error("team member should have access")
	}
	if b.AccessibleBy("u3", &other) {
		t.Error("other team should not have access")
	}
}

func TestPublicMessage(t *testing.T) {
	if got := domain.PublicMessage(errors.New("line one\nline two")); got != "line one line two" {
		t.Errorf("unexpected message %q", got)
	}
	if got := domain.PublicMessage(errors.New("   ")); got == "" {
		t.Error("message must never be empty")
	}
}
