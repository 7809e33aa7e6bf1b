package repo_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projectmarket/internal/db"
	"projectmarket/internal/domain"
	"projectmarket/internal/migrate"
	"projectmarket/internal/repo"
)

const ts = "2024-01-01T00:00:00.000000Z"

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "market.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	return repo.Repo{DB: conn}
}

func inTx(t *testing.T, r repo.Repo, fn func(tx *sql.Tx) error) error {
	t.Helper()
	tx, err := r.DB.BeginTx(context.Background(), nil)
	require.NoError(t, err)
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func insertUser(t *testing.T, r repo.Repo, id string, role domain.Role) domain.Role {
	t.Helper()
	var stored domain.Role
	require.NoError(t, inTx(t, r, func(tx *sql.Tx) error {
		var err error
		stored, err = r.InsertUserTx(context.Background(), tx, domain.User{
			ID: id, Name: id, Email: id + "@example.com", PasswordHash: "x", Role: role, CreatedAt: ts, UpdatedAt: ts,
		})
		return err
	}))
	return stored
}

func insertProject(t *testing.T, r repo.Repo, id, buyer string) {
	t.Helper()
	require.NoError(t, inTx(t, r, func(tx *sql.Tx) error {
		return r.InsertProjectTx(context.Background(), tx, domain.Project{
			ID: id, Title: "t", Description: "d", Status: domain.ProjectOpen, BuyerID: buyer, CreatedAt: ts, UpdatedAt: ts,
		})
	}))
}

func insertRequest(r repo.Repo, tx *sql.Tx, id, projectID, solver string) error {
	return r.InsertRequestIfOpenTx(context.Background(), tx, domain.Request{
		ID: id, ProjectID: projectID, ProblemSolverID: solver, Status: domain.RequestPending, CreatedAt: ts, UpdatedAt: ts,
	})
}

func TestFirstUserBecomesAdmin(t *testing.T) {
	r := newRepo(t)
	assert.Equal(t, domain.RoleAdmin, insertUser(t, r, "first", domain.RoleUser))
	assert.Equal(t, domain.RoleUser, insertUser(t, r, "second", domain.RoleUser))

	err := inTx(t, r, func(tx *sql.Tx) error {
		_, err := r.InsertUserTx(context.Background(), tx, domain.User{
			ID: "third", Name: "x", Email: "second@example.com", PasswordHash: "x", Role: domain.RoleUser, CreatedAt: ts, UpdatedAt: ts,
		})
		return err
	})
	assert.ErrorIs(t, err, repo.ErrUniqueViolation)

	n, err := r.CountUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRequestInsertIsConditional(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	insertUser(t, r, "buyer", domain.RoleBuyer)
	insertUser(t, r, "solver", domain.RoleProblemSolver)
	insertProject(t, r, "p1", "buyer")

	require.NoError(t, inTx(t, r, func(tx *sql.Tx) error { return insertRequest(r, tx, "r1", "p1", "solver") }))
	err := inTx(t, r, func(tx *sql.Tx) error { return insertRequest(r, tx, "r2", "p1", "solver") })
	assert.ErrorIs(t, err, repo.ErrUniqueViolation)

	require.NoError(t, inTx(t, r, func(tx *sql.Tx) error {
		ok, err := r.TransitionProjectTx(ctx, tx, repo.ProjectTransition{ID: "p1", From: domain.ProjectOpen, To: domain.ProjectCancelled, BuyerID: "buyer", UpdatedAt: ts})
		require.True(t, ok)
		return err
	}))
	insertUser(t, r, "late", domain.RoleProblemSolver)
	err = inTx(t, r, func(tx *sql.Tx) error { return insertRequest(r, tx, "r3", "p1", "late") })
	assert.ErrorIs(t, err, repo.ErrConditionFailed)

	missing := inTx(t, r, func(tx *sql.Tx) error { return insertRequest(r, tx, "r4", "nope", "late") })
	assert.ErrorIs(t, missing, repo.ErrConditionFailed)
}

func TestTransitionRequiresExpectedState(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	insertUser(t, r, "buyer", domain.RoleBuyer)
	insertUser(t, r, "solver", domain.RoleProblemSolver)
	insertProject(t, r, "p1", "buyer")

	require.NoError(t, inTx(t, r, func(tx *sql.Tx) error {
		ok, err := r.TransitionProjectTx(ctx, tx, repo.ProjectTransition{ID: "p1", From: domain.ProjectOpen, To: domain.ProjectAssigned, BuyerID: "someone-else", AssignTo: "solver", UpdatedAt: ts})
		assert.False(t, ok, "owner mismatch must not match")
		return err
	}))
	require.NoError(t, inTx(t, r, func(tx *sql.Tx) error {
		ok, err := r.TransitionProjectTx(ctx, tx, repo.ProjectTransition{ID: "p1", From: domain.ProjectOpen, To: domain.ProjectAssigned, BuyerID: "buyer", AssignTo: "solver", UpdatedAt: ts})
		assert.True(t, ok)
		return err
	}))
	require.NoError(t, inTx(t, r, func(tx *sql.Tx) error {
		ok, err := r.TransitionProjectTx(ctx, tx, repo.ProjectTransition{ID: "p1", From: domain.ProjectOpen, To: domain.ProjectAssigned, BuyerID: "buyer", AssignTo: "solver", UpdatedAt: ts})
		assert.False(t, ok, "a stale from state must not match")
		return err
	}))

	p, err := r.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectAssigned, p.Status)
	require.NotNil(t, p.AssignedTo)
	assert.Equal(t, "solver", *p.AssignedTo)

	_, err = r.GetProject(ctx, "missing")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestOnlyOneAcceptedRequestPerProject(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	insertUser(t, r, "buyer", domain.RoleBuyer)
	insertUser(t, r, "s1", domain.RoleProblemSolver)
	insertUser(t, r, "s2", domain.RoleProblemSolver)
	insertProject(t, r, "p1", "buyer")
	require.NoError(t, inTx(t, r, func(tx *sql.Tx) error {
		if err := insertRequest(r, tx, "r1", "p1", "s1"); err != nil {
			return err
		}
		return insertRequest(r, tx, "r2", "p1", "s2")
	}))

	require.NoError(t, inTx(t, r, func(tx *sql.Tx) error {
		ok, err := r.AcceptRequestTx(ctx, tx, "p1", "s1", ts)
		assert.True(t, ok)
		return err
	}))
	err := inTx(t, r, func(tx *sql.Tx) error {
		_, err := r.AcceptRequestTx(ctx, tx, "p1", "s2", ts)
		return err
	})
	assert.ErrorIs(t, err, repo.ErrUniqueViolation)

	var rejected []string
	require.NoError(t, inTx(t, r, func(tx *sql.Tx) error {
		var err error
		rejected, err = r.RejectPendingRequestsTx(ctx, tx, "p1", ts)
		return err
	}))
	assert.Equal(t, []string{"r2"}, rejected)

	reqs, err := r.ListRequestsByProject(ctx, "p1")
	require.NoError(t, err)
	statuses := map[string]domain.RequestStatus{}
	for _, req := range reqs {
		statuses[req.ID] = req.Status
	}
	assert.Equal(t, map[string]domain.RequestStatus{"r1": domain.RequestAccepted, "r2": domain.RequestRejected}, statuses)
}
