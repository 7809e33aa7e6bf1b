package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"projectmarket/internal/config"
	"projectmarket/internal/domain"
	"projectmarket/internal/engine/auth"
	"projectmarket/internal/events"
	"projectmarket/internal/metrics"
	"projectmarket/internal/repo"
	"projectmarket/internal/storage"
)

// Engine runs every marketplace operation. Each mutating call is one
// transaction whose writes are conditional on the state it checked.
type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	Tokens  auth.Tokens
	Storage storage.Store
	Metrics *metrics.Metrics
	Log     *zap.Logger
	Now     func() time.Time
}

// New builds an engine over db. Tokens and the artifact store are derived
// from cfg; callers may replace them.
func New(db *sql.DB, cfg *config.Config) (Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	ttl, err := cfg.TokenTTL()
	if err != nil {
		return Engine{}, err
	}
	maxBytes, err := cfg.MaxUploadBytes()
	if err != nil {
		return Engine{}, err
	}
	store, err := storage.New(cfg.Storage.UploadDir, storage.Policy{
		MaxBytes:   maxBytes,
		Extensions: cfg.Storage.AllowedExtensions,
		MIMETypes:  cfg.Storage.AllowedMIMETypes,
	})
	if err != nil {
		return Engine{}, err
	}
	e := Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Config:  cfg,
		Storage: store,
		Log:     zap.NewNop(),
		Now:     time.Now,
	}
	e.Tokens = auth.Tokens{Secret: []byte(cfg.Auth.JWTSecret), TTL: ttl}
	return e, nil
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(domain.TimeLayout)
}

func (e Engine) tokens() auth.Tokens {
	t := e.Tokens
	t.Now = e.now
	return t
}

func (e Engine) appendEvents(ctx context.Context, tx *sql.Tx, entries ...events.Entry) error {
	w := e.Events
	w.Now = e.now
	return w.AppendAll(ctx, tx, entries...)
}

func (e Engine) log() *zap.Logger {
	if e.Log != nil {
		return e.Log
	}
	return zap.NewNop()
}

func subject(u domain.User) auth.Subject {
	return auth.Subject{UserID: u.ID, Role: u.Role}
}

// transition is a committed status change, reported after commit.
type transition struct {
	entity string
	id     string
	from   string
	to     string
}

// inTx runs fn in a write transaction and returns the transitions it made once
// they are committed.
func (e Engine) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) ([]transition, error)) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return e.fail(op, fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback()
	changes, err := fn(tx)
	if err != nil {
		return e.fail(op, err)
	}
	if err := tx.Commit(); err != nil {
		return e.fail(op, fmt.Errorf("commit: %w", err))
	}
	e.report(changes)
	return nil
}

func (e Engine) report(changes []transition) {
	for _, c := range changes {
		e.Metrics.Transition(c.entity, c.from, c.to)
		e.log().Info("status changed",
			zap.String("entity", c.entity),
			zap.String("id", c.id),
			zap.String("from", c.from),
			zap.String("to", c.to))
	}
}

// fail classifies err for the boundary. Unclassified errors are logged and
// become internal errors.
func (e Engine) fail(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return err
	}
	if domain.KindOf(err) == domain.KindInternal {
		e.log().Error("operation failed", zap.String("op", op), zap.Error(err))
		return domain.Internal(fmt.Errorf("%s: %w", op, err))
	}
	return err
}

// hideForeign reports ownership failures as not found so that probing another
// user's resource by id reveals nothing.
func hideForeign(err error, what string) error {
	var fe auth.ForbiddenError
	if errors.As(err, &fe) && fe.Ownership {
		return domain.NotFoundf("%s not found", what)
	}
	return err
}

func notFound(err error, what string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return domain.NotFoundf("%s not found", what)
	}
	return err
}
