//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	testcontainerspg "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hookqueue/hookqueue/internal/db"
)

// PostgresContainer holds the postgres testcontainer and connection pool
type PostgresContainer struct {
	Container *testcontainerspg.PostgresContainer
	Pool      *pgxpool.Pool
}

// SetupPostgresContainer starts a postgres container and applies the schema
func SetupPostgresContainer(t *testing.T, ctx context.Context) (*PostgresContainer, func()) {
	t.Helper()

	pgContainer, err := testcontainerspg.Run(ctx,
		"postgres:16-alpine",
		testcontainerspg.WithDatabase("hookqueue_test"),
		testcontainerspg.WithUsername("testuser"),
		testcontainerspg.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get postgres connection string")

	pool, err := db.Connect(ctx, connStr)
	require.NoError(t, err, "failed to connect")

	require.NoError(t, db.Migrate(ctx, pool), "failed to apply schema")

	pc := &PostgresContainer{
		Container: pgContainer,
		Pool:      pool,
	}

	cleanup := func() {
		pool.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	}

	return pc, cleanup
}

// QueueLen counts the pending jobs in the queue table
func QueueLen(t *testing.T, ctx context.Context, pool *pgxpool.Pool) int {
	t.Helper()

	var n int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM hookqueue.queue`).Scan(&n))
	return n
}
