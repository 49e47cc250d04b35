package model

import "time"

type AccountKind string

const (
	AccountPersonal AccountKind = "personal"
	AccountTeam     AccountKind = "team"
)

// AccountRef identifies the pool a job is charged to.
type AccountRef struct {
	Kind   AccountKind
	UserID string
	TeamID string
}

func PersonalAccount(userID string) AccountRef {
	return AccountRef{Kind: AccountPersonal, UserID: userID}
}

func TeamAccount(teamID, userID string) AccountRef {
	return AccountRef{Kind: AccountTeam, TeamID: teamID, UserID: userID}
}

// CreditAccount is a point-in-time view of a personal or team pool.
type CreditAccount struct {
	Ref       AccountRef
	Plan      string
	Allowance int
	Used      int
	Balance   int

	DailyLimit      int
	DailyUsed       int
	DailyResetDate  time.Time
	DailyWindowOpen bool
}

type JobKind string

const (
	JobKindGeneration JobKind = "generation"
	JobKindTraining   JobKind = "training"
)

// LedgerEntry records one successful debit. JobID is unique across entries.
type LedgerEntry struct {
	ID           string
	JobID        string
	JobKind      JobKind
	AccountKind  AccountKind
	UserID       string
	TeamID       *string
	Amount       int
	BalanceAfter int
	CreatedAt    time.Time
}
