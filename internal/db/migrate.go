package db

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/001_init.sql
var initSchema string

// Migrate applies the embedded schema. Every statement is idempotent, so
// running it on each service start is safe.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, initSchema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}
