package events_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projectmarket/internal/db"
	"projectmarket/internal/events"
	"projectmarket/internal/migrate"
	"projectmarket/internal/repo"
)

func TestAppendIsTransactional(t *testing.T) {
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "market.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	r := repo.Repo{DB: conn}
	w := events.Writer{Now: func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }}

	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, w.AppendAll(ctx, tx,
		events.Entry{Type: events.ProjectCreated, ProjectID: "p1", EntityKind: "project", EntityID: "p1", ActorID: "u1"},
		events.Entry{Type: events.RequestCreated, ProjectID: "p1", EntityKind: "request", EntityID: "r1", ActorID: "u2", Payload: events.Payload{"message": "hi"}},
	))
	require.NoError(t, tx.Commit())

	tx, err = conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, w.Append(ctx, tx, events.Entry{Type: events.ProjectCancelled, ProjectID: "p1", EntityKind: "project", EntityID: "p1", ActorID: "u1"}))
	require.NoError(t, tx.Rollback())

	evts, err := r.LatestEvents(ctx, repo.EventFilters{ProjectID: "p1"})
	require.NoError(t, err)
	require.Len(t, evts, 2, "rolled back events must not persist")
	assert.Equal(t, events.RequestCreated, evts[0].Type)
	assert.JSONEq(t, `{"message":"hi"}`, evts[0].Payload)
	assert.Equal(t, "{}", evts[1].Payload)
	assert.Equal(t, "2024-03-01T12:00:00.000000Z", evts[1].TS)

	older, err := r.LatestEvents(ctx, repo.EventFilters{Cursor: evts[0].ID})
	require.NoError(t, err)
	require.Len(t, older, 1)
	assert.Equal(t, events.ProjectCreated, older[0].Type)

	n, err := r.CountEvents(ctx, "p1", events.RequestCreated)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
