package model

import "time"

const (
	DefaultTeamCredits          = 200
	DefaultDailyGenerationLimit = 500
	TeamCreditCycle             = 30 * 24 * time.Hour
	DailyWindow                 = 24 * time.Hour
)

type TeamMember struct {
	UserID         string
	Email          string
	Name           string
	Role           TeamRole
	JoinedAt       time.Time
	UsageThisMonth int
}

// Team holds a shared credit pool plus a rolling daily generation window.
type Team struct {
	ID                   string
	Name                 string
	OwnerID              string
	Plan                 string
	Credits              int
	CreditsResetDate     time.Time
	BillingCycleStart    time.Time
	DailyGenerationLimit int
	DailyGenerationsUsed int
	DailyLimitResetDate  time.Time
	Members              []TeamMember
	CreatedAt            time.Time
	LastUsedAt           *time.Time
}

func NewTeam(id, name string, owner *User, now time.Time) *Team {
	return &Team{
		ID:                   id,
		Name:                 name,
		OwnerID:              owner.ID,
		Plan:                 PlanBusiness,
		Credits:              DefaultTeamCredits,
		CreditsResetDate:     now.Add(TeamCreditCycle),
		BillingCycleStart:    now,
		DailyGenerationLimit: DefaultDailyGenerationLimit,
		DailyLimitResetDate:  now.Add(DailyWindow),
		Members: []TeamMember{{
			UserID:   owner.ID,
			Email:    owner.Email,
			Name:     owner.DisplayName,
			Role:     TeamRoleOwner,
			JoinedAt: now,
		}},
		CreatedAt: now,
	}
}

func (t *Team) Member(userID string) (*TeamMember, bool) {
	for i := range t.Members {
		if t.Members[i].UserID == userID {
			return &t.Members[i], true
		}
	}
	return nil, false
}

// DailyWindowOpen reports whether now still falls in the current daily window.
func (t *Team) DailyWindowOpen(now time.Time) bool {
	return !now.After(t.DailyLimitResetDate)
}

// DailyLimitReached is evaluated lazily: an expired window never blocks.
func (t *Team) DailyLimitReached(now time.Time) bool {
	return t.DailyWindowOpen(now) && t.DailyGenerationsUsed >= t.DailyGenerationLimit
}
