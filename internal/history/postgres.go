package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hookqueue/hookqueue/internal/job"
	"github.com/hookqueue/hookqueue/internal/sender"
)

// Recorder appends dispatch outcomes. Callers must treat Record as
// best-effort: a failed audit write is logged and swallowed upstream, it
// never blocks the dispatch state machine.
type Recorder interface {
	Record(ctx context.Context, j job.Job, out sender.Outcome) error
	ListByStore(ctx context.Context, storeID int64, limit int) ([]Entry, error)
}

// PostgresRecorder writes history rows keyed (store_id, id).
type PostgresRecorder struct {
	pool *pgxpool.Pool
}

func NewPostgresRecorder(pool *pgxpool.Pool) *PostgresRecorder {
	return &PostgresRecorder{pool: pool}
}

// Record reads the store's current max id and inserts max+1 (1 if none).
// The read-then-write is a tolerated check-then-act race between concurrent
// deliveries for the same store.
func (r *PostgresRecorder) Record(ctx context.Context, j job.Job, out sender.Outcome) error {
	e := NewEntry(j, out)

	var maxID int64
	if err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(id), 0) FROM hookqueue.history WHERE store_id = $1`,
		e.StoreID,
	).Scan(&maxID); err != nil {
		return fmt.Errorf("read max history id: %w", err)
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO hookqueue.history(store_id, id, trigger_id, uri, method, headers, body, status_code, response, error, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())`,
		e.StoreID, maxID+1, e.TriggerID, e.URI, e.Method, e.Headers, e.Body,
		e.StatusCode, e.Response, e.Error,
	)
	if err != nil {
		return fmt.Errorf("insert history row: %w", err)
	}
	return nil
}

// ListByStore returns the most recent entries for a store, newest first.
func (r *PostgresRecorder) ListByStore(ctx context.Context, storeID int64, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, store_id, trigger_id, uri, method, headers, body, status_code, response, error, recorded_at
		FROM hookqueue.history
		WHERE store_id = $1
		ORDER BY id DESC
		LIMIT $2`,
		storeID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var recordedAt time.Time
		if err := rows.Scan(&e.ID, &e.StoreID, &e.TriggerID, &e.URI, &e.Method,
			&e.Headers, &e.Body, &e.StatusCode, &e.Response, &e.Error, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.RecordedAt = recordedAt.UTC().Format(time.RFC3339Nano)
		out = append(out, e)
	}
	return out, rows.Err()
}
