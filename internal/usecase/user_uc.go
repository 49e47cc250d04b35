package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mediaforge/internal/domain"
	"mediaforge/internal/domain/model"
	"mediaforge/internal/domain/ports/repository"
	"mediaforge/internal/infra/logging"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ UserUseCase = (*userUC)(nil)

type RegisterUser struct {
	ID          string
	Email       string
	DisplayName string
	Plan        string
}

// UserUseCase covers account administration: users, teams and membership.
type UserUseCase interface {
	Register(ctx context.Context, req RegisterUser) (*model.User, error)
	Get(ctx context.Context, userID string) (*model.User, error)
	CreateTeam(ctx context.Context, ownerID, name string) (*model.Team, error)
	AddMember(ctx context.Context, teamID, userID string) (*model.Team, error)
	GetTeam(ctx context.Context, teamID string) (*model.Team, error)
}

type userUC struct {
	users repository.UserRepository
	teams repository.TeamRepository
	tm    repository.TransactionManager
	plans model.PlanTable
	now   func() time.Time
	log   *zerolog.Logger
}

func NewUserUseCase(users repository.UserRepository, teams repository.TeamRepository, tm repository.TransactionManager, plans model.PlanTable, logger *zerolog.Logger) *userUC {
	l := logger.With().Str("component", "Accounts").Logger()
	return &userUC{
		users: users,
		teams: teams,
		tm:    tm,
		plans: plans,
		now:   time.Now,
		log:   &l,
	}
}

func (u *userUC) WithClock(now func() time.Time) *userUC {
	u.now = now
	return u
}

func (u *userUC) Register(ctx context.Context, req RegisterUser) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.Register")()

	if req.Plan != "" && !u.plans.Known(req.Plan) {
		return nil, domain.Invalid("plan", fmt.Sprintf("unknown plan %q", req.Plan))
	}
	nu, err := model.NewUser(strings.TrimSpace(req.ID), req.Email, strings.TrimSpace(req.DisplayName), req.Plan)
	if err != nil {
		return nil, domain.Invalid("email", "email is required")
	}
	nu.CreatedAt = u.now()

	txOpts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	err = u.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		existing, err := u.users.FindByID(ctx, tx, nu.ID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if existing != nil {
			return domain.ErrAlreadyExists
		}
		return u.users.Save(ctx, tx, nu)
	})
	if err != nil {
		return nil, err
	}
	u.log.Info().Str("user_id", nu.ID).Str("plan", nu.Plan).Msg("user registered")
	return nu, nil
}

func (u *userUC) Get(ctx context.Context, userID string) (*model.User, error) {
	return u.users.FindByID(ctx, nil, userID)
}

func (u *userUC) GetTeam(ctx context.Context, teamID string) (*model.Team, error) {
	return u.teams.FindByID(ctx, nil, teamID)
}

// CreateTeam opens a business team owned by ownerID. The owner's personal
// pool stops being used from this point on.
func (u *userUC) CreateTeam(ctx context.Context, ownerID, name string) (*model.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.Invalid("name", "team name is required")
	}

	var team *model.Team
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		owner, err := u.users.LockByID(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		if owner.InTeam() {
			return domain.Invalid("ownerId", "user already belongs to a team")
		}
		team = model.NewTeam("team_"+strings.ToLower(ulid.Make().String()), name, owner, u.now())
		team.Credits = u.plans.Allowance(team.Plan)
		if err := u.teams.Create(ctx, tx, team); err != nil {
			return fmt.Errorf("create team: %w", err)
		}
		return u.users.SetTeam(ctx, tx, owner.ID, &team.ID, model.TeamRoleOwner)
	})
	if err != nil {
		return nil, err
	}
	u.log.Info().Str("team_id", team.ID).Str("user_id", ownerID).Int("credits", team.Credits).Msg("team created")
	return team, nil
}

func (u *userUC) AddMember(ctx context.Context, teamID, userID string) (*model.Team, error) {
	var team *model.Team
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		t, err := u.teams.LockByID(ctx, tx, teamID)
		if err != nil {
			return err
		}
		user, err := u.users.LockByID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if _, ok := t.Member(user.ID); ok {
			return domain.ErrAlreadyExists
		}
		if user.InTeam() {
			return domain.Invalid("userId", "user already belongs to another team")
		}
		m := model.TeamMember{
			UserID:   user.ID,
			Email:    user.Email,
			Name:     user.DisplayName,
			Role:     model.TeamRoleMember,
			JoinedAt: u.now(),
		}
		if err := u.teams.AddMember(ctx, tx, t.ID, m); err != nil {
			return fmt.Errorf("add member: %w", err)
		}
		if err := u.users.SetTeam(ctx, tx, user.ID, &t.ID, model.TeamRoleMember); err != nil {
			return err
		}
		t.Members = append(t.Members, m)
		team = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.log.Info().Str("team_id", teamID).Str("user_id", userID).Msg("team member added")
	return team, nil
}
