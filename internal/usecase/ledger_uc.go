// File: internal/usecase/ledger_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mediaforge/internal/domain"
	"mediaforge/internal/domain/model"
	"mediaforge/internal/domain/ports/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ LedgerUseCase = (*ledgerUC)(nil)

// Reservation is the outcome of a read-only affordability check. Nothing is
// held; the authoritative check happens again in Debit.
type Reservation struct {
	OK        bool
	Remaining int
}

type DebitRequest struct {
	JobID       string
	JobKind     model.JobKind
	Account     model.AccountRef
	Cost        int
	ActorUserID string
}

type LedgerUseCase interface {
	AllowanceForPlan(plan string) int
	CostForResolution(width, height int) int
	// ResolveAccount picks the team pool when the user belongs to a team and
	// the personal pool otherwise.
	ResolveAccount(ctx context.Context, userID string) (*model.CreditAccount, *model.User, error)
	CheckAndReserve(account *model.CreditAccount, cost int) (Reservation, error)
	Debit(ctx context.Context, req DebitRequest) (*model.LedgerEntry, error)
	ResetTeamCredits(ctx context.Context, teamID string) error
	ResetDueTeams(ctx context.Context, now time.Time, limit int) (int, error)
}

type ledgerUC struct {
	users   repository.UserRepository
	teams   repository.TeamRepository
	entries repository.LedgerRepository
	tm      repository.TransactionManager
	plans   model.PlanTable
	now     func() time.Time
	log     *zerolog.Logger
}

func NewLedgerUseCase(
	users repository.UserRepository,
	teams repository.TeamRepository,
	entries repository.LedgerRepository,
	tm repository.TransactionManager,
	plans model.PlanTable,
	logger *zerolog.Logger,
) *ledgerUC {
	l := logger.With().Str("component", "CreditLedger").Logger()
	return &ledgerUC{
		users:   users,
		teams:   teams,
		entries: entries,
		tm:      tm,
		plans:   plans,
		now:     time.Now,
		log:     &l,
	}
}

// WithClock replaces the time source; used by tests.
func (u *ledgerUC) WithClock(now func() time.Time) *ledgerUC {
	u.now = now
	return u
}

func (u *ledgerUC) AllowanceForPlan(plan string) int {
	return u.plans.Allowance(plan)
}

func (u *ledgerUC) CostForResolution(width, height int) int {
	return CostForResolution(width, height)
}

// CostForResolution charges double when either side is at the 2048 tier.
func CostForResolution(width, height int) int {
	if width == 2048 || height == 2048 {
		return 2
	}
	return 1
}

func (u *ledgerUC) ResolveAccount(ctx context.Context, userID string) (*model.CreditAccount, *model.User, error) {
	user, err := u.users.FindByID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, domain.ErrAccountNotFound
		}
		return nil, nil, fmt.Errorf("load user: %w", err)
	}

	if !user.InTeam() {
		allowance := u.plans.Allowance(user.Plan)
		return &model.CreditAccount{
			Ref:       model.PersonalAccount(user.ID),
			Plan:      model.NormalizePlan(user.Plan),
			Allowance: allowance,
			Used:      user.CreditsUsed,
			Balance:   allowance - user.CreditsUsed,
		}, user, nil
	}

	team, err := u.teams.FindByID(ctx, nil, *user.TeamID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, user, domain.ErrAccountNotFound
		}
		return nil, user, fmt.Errorf("load team: %w", err)
	}
	member, ok := team.Member(user.ID)
	if !ok {
		return nil, user, domain.ErrNotTeamMember
	}
	now := u.now()
	return &model.CreditAccount{
		Ref:             model.TeamAccount(team.ID, user.ID),
		Plan:            model.NormalizePlan(team.Plan),
		Allowance:       u.plans.Allowance(team.Plan),
		Used:            member.UsageThisMonth,
		Balance:         team.Credits,
		DailyLimit:      team.DailyGenerationLimit,
		DailyUsed:       team.DailyGenerationsUsed,
		DailyResetDate:  team.DailyLimitResetDate,
		DailyWindowOpen: team.DailyWindowOpen(now),
	}, user, nil
}

func (u *ledgerUC) CheckAndReserve(account *model.CreditAccount, cost int) (Reservation, error) {
	if account == nil {
		return Reservation{}, domain.ErrAccountNotFound
	}
	if account.Balance < cost {
		if account.Ref.Kind == model.AccountTeam {
			return Reservation{Remaining: account.Balance}, domain.ErrInsufficientTeamCredits
		}
		return Reservation{Remaining: account.Balance}, domain.ErrInsufficientCredits
	}
	if account.Ref.Kind == model.AccountTeam && account.DailyWindowOpen && account.DailyUsed >= account.DailyLimit {
		return Reservation{Remaining: account.Balance}, domain.ErrDailyLimitExceeded
	}
	return Reservation{OK: true, Remaining: account.Balance - cost}, nil
}

// Debit charges the account inside one transaction holding a row lock on the
// user or team. A ledger entry is written in the same transaction; a second
// debit for the same job fails with ErrAlreadyDebited and changes nothing.
func (u *ledgerUC) Debit(ctx context.Context, req DebitRequest) (*model.LedgerEntry, error) {
	if req.Cost <= 0 || req.JobID == "" {
		return nil, domain.ErrInvalidArgument
	}
	var entry *model.LedgerEntry
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		switch req.Account.Kind {
		case model.AccountTeam:
			entry, err = u.debitTeam(ctx, tx, req)
		case model.AccountPersonal:
			entry, err = u.debitPersonal(ctx, tx, req)
		default:
			return domain.ErrAccountNotFound
		}
		if err != nil {
			return err
		}
		return u.entries.Append(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	u.log.Debug().
		Str("job_id", req.JobID).
		Str("account", string(req.Account.Kind)).
		Int("amount", req.Cost).
		Int("balance_after", entry.BalanceAfter).
		Msg("credits debited")
	return entry, nil
}

func (u *ledgerUC) debitPersonal(ctx context.Context, tx repository.Tx, req DebitRequest) (*model.LedgerEntry, error) {
	user, err := u.users.LockByID(ctx, tx, req.Account.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("lock user: %w", err)
	}
	allowance := u.plans.Allowance(user.Plan)
	if user.CreditsUsed+req.Cost > allowance {
		return nil, domain.ErrInsufficientCredits
	}
	now := u.now()
	used := user.CreditsUsed + req.Cost
	if err := u.users.UpdateUsage(ctx, tx, user.ID, used, now); err != nil {
		return nil, fmt.Errorf("update user usage: %w", err)
	}
	return &model.LedgerEntry{
		ID:           uuid.NewString(),
		JobID:        req.JobID,
		JobKind:      req.JobKind,
		AccountKind:  model.AccountPersonal,
		UserID:       user.ID,
		Amount:       req.Cost,
		BalanceAfter: allowance - used,
		CreatedAt:    now,
	}, nil
}

func (u *ledgerUC) debitTeam(ctx context.Context, tx repository.Tx, req DebitRequest) (*model.LedgerEntry, error) {
	team, err := u.teams.LockByID(ctx, tx, req.Account.TeamID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("lock team: %w", err)
	}
	actor := req.ActorUserID
	if actor == "" {
		actor = req.Account.UserID
	}
	member, ok := team.Member(actor)
	if !ok {
		return nil, domain.ErrNotTeamMember
	}
	if team.Credits < req.Cost {
		return nil, domain.ErrInsufficientTeamCredits
	}

	now := u.now()
	if now.After(team.DailyLimitResetDate) {
		// first generation of a new window
		team.DailyGenerationsUsed = 1
		team.DailyLimitResetDate = now.Add(model.DailyWindow)
	} else {
		if team.DailyGenerationsUsed >= team.DailyGenerationLimit {
			return nil, domain.ErrDailyLimitExceeded
		}
		team.DailyGenerationsUsed++
	}
	team.Credits -= req.Cost
	team.LastUsedAt = &now

	if err := u.teams.UpdateUsage(ctx, tx, team); err != nil {
		return nil, fmt.Errorf("update team usage: %w", err)
	}
	if err := u.teams.UpdateMemberUsage(ctx, tx, team.ID, member.UserID, member.UsageThisMonth+req.Cost); err != nil {
		return nil, fmt.Errorf("update member usage: %w", err)
	}
	teamID := team.ID
	return &model.LedgerEntry{
		ID:           uuid.NewString(),
		JobID:        req.JobID,
		JobKind:      req.JobKind,
		AccountKind:  model.AccountTeam,
		UserID:       member.UserID,
		TeamID:       &teamID,
		Amount:       req.Cost,
		BalanceAfter: team.Credits,
		CreatedAt:    now,
	}, nil
}

// ResetTeamCredits starts a new billing cycle for the team: credits go back to
// the plan allowance and member usage is zeroed.
func (u *ledgerUC) ResetTeamCredits(ctx context.Context, teamID string) error {
	return u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		team, err := u.teams.LockByID(ctx, tx, teamID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrAccountNotFound
			}
			return err
		}
		credits := u.plans.Allowance(team.Plan)
		next := u.now().Add(model.TeamCreditCycle)
		if err := u.teams.ResetCycle(ctx, tx, team.ID, credits, next); err != nil {
			return fmt.Errorf("reset team %s: %w", team.ID, err)
		}
		u.log.Info().Str("team_id", team.ID).Int("credits", credits).Time("next_reset", next).Msg("team credits reset")
		return nil
	})
}

func (u *ledgerUC) ResetDueTeams(ctx context.Context, now time.Time, limit int) (int, error) {
	ids, err := u.teams.ListDueForReset(ctx, nil, now, limit)
	if err != nil {
		return 0, fmt.Errorf("list teams due for reset: %w", err)
	}
	n := 0
	for _, id := range ids {
		if err := u.ResetTeamCredits(ctx, id); err != nil {
			u.log.Error().Err(err).Str("team_id", id).Msg("team credit reset failed")
			continue
		}
		n++
	}
	return n, nil
}
