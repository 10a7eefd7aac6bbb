// Package pgtest starts a throwaway PostgreSQL container for integration
// tests.
package pgtest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/shabazpatel/acp-infra/pkg/postgres"
)

// Start runs postgres:16-alpine, applies the migrations in migrationsDir
// (skipped when empty) and returns an open connection. Everything is torn
// down with the test.
func Start(t *testing.T, migrationsDir, migrationsTable string) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	creds := &postgres.Credentials{
		Host:              host,
		Port:              port.Int(),
		User:              "testuser",
		Password:          "testpass",
		DBName:            "testdb",
		MigrationsDirPath: migrationsDir,
	}

	db, err := postgres.Open(ctx, creds)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	if migrationsDir != "" {
		require.NoError(t, postgres.RunMigrations(db, migrationsDir, migrationsTable))
	}
	return db
}
