package engine

import (
	"context"
	"database/sql"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"projectmarket/internal/domain"
	"projectmarket/internal/engine/auth"
	"projectmarket/internal/events"
	"projectmarket/internal/repo"
)

// Session is the result of a successful register or login.
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      domain.User `json:"user"`
}

type RegisterOptions struct {
	Name     string
	Email    string
	Password string
}

func (e Engine) UserCount(ctx context.Context) (int, error) {
	n, err := e.Repo.CountUsers(ctx)
	if err != nil {
		return 0, e.fail("user count", err)
	}
	return n, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", domain.Validationf("a valid email is required")
	}
	return email, nil
}

// Register creates a user. The first user of an empty store becomes admin;
// everyone else starts with the plain user role.
func (e Engine) Register(ctx context.Context, opts RegisterOptions) (Session, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return Session{}, domain.Validationf("name is required")
	}
	email, err := normalizeEmail(opts.Email)
	if err != nil {
		return Session{}, err
	}
	if len(opts.Password) < auth.MinPasswordLength {
		return Session{}, domain.Validationf("password must be at least %d characters", auth.MinPasswordLength)
	}
	hash, err := auth.HashPassword(opts.Password)
	if err != nil {
		return Session{}, e.fail("register", err)
	}
	now := e.stamp()
	u := domain.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = e.inTx(ctx, "register", func(tx *sql.Tx) ([]transition, error) {
		role, err := e.Repo.InsertUserTx(ctx, tx, u)
		if errors.Is(err, repo.ErrUniqueViolation) {
			return nil, domain.Conflictf("email already registered")
		}
		if err != nil {
			return nil, err
		}
		u.Role = role
		return nil, e.appendEvents(ctx, tx, events.Entry{
			Type: events.UserRegistered, EntityKind: "user", EntityID: u.ID, ActorID: u.ID,
			Payload: events.Payload{"role": role},
		})
	})
	if err != nil {
		return Session{}, err
	}
	if u.Role == domain.RoleAdmin {
		e.log().Info("bootstrap admin registered", zap.String("user_id", u.ID))
	}
	return e.session(u)
}

// Login exchanges credentials for a token. Unknown email and wrong password
// fail the same way.
func (e Engine) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := e.Repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repo.ErrNotFound) {
		return Session{}, domain.Unauthenticatedf("invalid credentials")
	}
	if err != nil {
		return Session{}, e.fail("login", err)
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return Session{}, domain.Unauthenticatedf("invalid credentials")
	}
	return e.session(u)
}

func (e Engine) session(u domain.User) (Session, error) {
	token, exp, err := e.tokens().Issue(u)
	if err != nil {
		return Session{}, e.fail("issue token", err)
	}
	return Session{Token: token, ExpiresAt: exp, User: u}, nil
}

// Authenticate resolves a bearer token to the live user behind it.
func (e Engine) Authenticate(ctx context.Context, token string) (domain.User, error) {
	id, err := e.tokens().Verify(token)
	if err != nil {
		return domain.User{}, domain.Unauthenticatedf("invalid credentials")
	}
	u, err := e.Repo.GetUser(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, domain.Unauthenticatedf("invalid credentials")
	}
	if err != nil {
		return domain.User{}, e.fail("authenticate", err)
	}
	return u, nil
}

func (e Engine) GetUser(ctx context.Context, actor domain.User, id string) (domain.User, error) {
	if err := auth.Authorize(subject(actor), auth.CapUserRead, auth.Resource{}); err != nil {
		return domain.User{}, err
	}
	u, err := e.Repo.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, e.fail("get user", notFound(err, "user"))
	}
	return u, nil
}

func (e Engine) ListUsers(ctx context.Context, actor domain.User) ([]domain.User, error) {
	if err := auth.Authorize(subject(actor), auth.CapUserList, auth.Resource{}); err != nil {
		return nil, err
	}
	users, err := e.Repo.ListUsers(ctx)
	if err != nil {
		return nil, e.fail("list users", err)
	}
	return users, nil
}

func (e Engine) SetRole(ctx context.Context, actor domain.User, userID string, role domain.Role) (domain.User, error) {
	if err := auth.Authorize(subject(actor), auth.CapUserSetRole, auth.Resource{}); err != nil {
		return domain.User{}, err
	}
	if !role.Valid() {
		return domain.User{}, domain.Validationf("invalid role %q", role)
	}
	var out domain.User
	err := e.inTx(ctx, "set role", func(tx *sql.Tx) ([]transition, error) {
		u, err := e.Repo.GetUserTx(ctx, tx, userID)
		if err != nil {
			return nil, notFound(err, "user")
		}
		if err := e.Repo.SetUserRoleTx(ctx, tx, userID, role, e.stamp()); err != nil {
			return nil, notFound(err, "user")
		}
		if err := e.appendEvents(ctx, tx, events.Entry{
			Type: events.UserRoleChanged, EntityKind: "user", EntityID: userID, ActorID: actor.ID,
			Payload: events.Payload{"from": u.Role, "to": role},
		}); err != nil {
			return nil, err
		}
		out, err = e.Repo.GetUserTx(ctx, tx, userID)
		return nil, err
	})
	return out, err
}

// UpdateProfile replaces the caller's solver profile.
func (e Engine) UpdateProfile(ctx context.Context, actor domain.User, p domain.Profile) (domain.User, error) {
	if err := auth.Authorize(subject(actor), auth.CapProfileUpdate, auth.Resource{}); err != nil {
		return domain.User{}, err
	}
	p.Bio = strings.TrimSpace(p.Bio)
	p.Experience = strings.TrimSpace(p.Experience)
	p.Portfolio = strings.TrimSpace(p.Portfolio)
	p.Skills = cleanList(p.Skills)
	var out domain.User
	err := e.inTx(ctx, "update profile", func(tx *sql.Tx) ([]transition, error) {
		err := e.Repo.UpdateProfileTx(ctx, tx, actor.ID, domain.RoleProblemSolver, p, e.stamp())
		if errors.Is(err, repo.ErrConditionFailed) {
			return nil, auth.ForbiddenError{Capability: auth.CapProfileUpdate, Reason: "requires role problem_solver"}
		}
		if err != nil {
			return nil, err
		}
		if err := e.appendEvents(ctx, tx, events.Entry{
			Type: events.UserProfileUpdated, EntityKind: "user", EntityID: actor.ID, ActorID: actor.ID,
		}); err != nil {
			return nil, err
		}
		out, err = e.Repo.GetUserTx(ctx, tx, actor.ID)
		return nil, err
	})
	return out, err
}

func cleanList(items []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}
