//go:build integration

package migrations

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func getTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err)

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})
	return db
}

func getMigrationsPath(t *testing.T) string {
	projectRoot, err := filepath.Abs("../..")
	require.NoError(t, err)
	return filepath.Join(projectRoot, "migrations")
}

func TestRunMigrations(t *testing.T) {
	db := getTestDB(t)
	path := getMigrationsPath(t)

	require.NoError(t, Run(db, path))

	for _, table := range []string{"profiles", "analyses"} {
		var exists bool
		err := db.QueryRow(`
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)`, table).Scan(&exists)
		require.NoError(t, err)
		require.True(t, exists, "table %s should exist", table)
	}

	v, dirty, err := Version(db, path)
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, uint(1), v)
}

func TestMigrationIdempotency(t *testing.T) {
	db := getTestDB(t)
	path := getMigrationsPath(t)

	require.NoError(t, Run(db, path))
	require.NoError(t, Run(db, "file://"+path))
}
