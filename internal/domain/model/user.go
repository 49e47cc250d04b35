package model

import (
	"strings"
	"time"

	"mediaforge/internal/domain"

	"github.com/google/uuid"
)

type TeamRole string

const (
	TeamRoleOwner  TeamRole = "owner"
	TeamRoleMember TeamRole = "member"
)

// User is an authenticated account holder. Personal usage is tracked in
// CreditsUsed against the allowance of Plan.
type User struct {
	ID               string
	Email            string
	DisplayName      string
	Plan             string
	CreditsUsed      int
	TeamID           *string
	TeamRole         TeamRole
	CreatedAt        time.Time
	LastGenerationAt *time.Time
}

func NewUser(id, email, displayName, plan string) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, domain.ErrInvalidArgument
	}
	if plan == "" {
		plan = PlanFree
	}
	return &User{
		ID:          id,
		Email:       email,
		DisplayName: displayName,
		Plan:        NormalizePlan(plan),
		CreatedAt:   time.Now(),
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }

func (u *User) InTeam() bool { return u.TeamID != nil && *u.TeamID != "" }
