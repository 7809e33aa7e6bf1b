package migrate_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projectmarket/internal/db"
	"projectmarket/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "market.db")})
	require.NoError(t, err)
	defer conn.Close()

	applied, err := migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_init.sql"}, applied)

	applied, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	assert.Empty(t, applied)

	v, err := migrate.Version(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestSchemaEnforcesAssigneeInvariant(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "market.db")})
	require.NoError(t, err)
	defer conn.Close()
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)

	_, err = conn.ExecContext(ctx, `INSERT INTO users(id,name,email,password_hash,role,created_at,updated_at) VALUES ('u1','B','b@x.io','h','buyer','t','t')`)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `INSERT INTO projects(id,title,description,status,buyer_id,created_at,updated_at) VALUES ('p1','T','D','assigned','u1','t','t')`)
	assert.Error(t, err, "assigned project without assignee must be rejected")
	_, err = conn.ExecContext(ctx, `INSERT INTO projects(id,title,description,status,buyer_id,created_at,updated_at) VALUES ('p1','T','D','open','u1','t','t')`)
	assert.NoError(t, err)
}
