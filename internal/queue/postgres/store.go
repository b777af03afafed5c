// Package postgres is the query-based Queue Store: pending jobs live in one
// table and due jobs are found by scanning on scheduled_time.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hookqueue/hookqueue/internal/job"
	"github.com/hookqueue/hookqueue/internal/queue"
)

const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Enqueue inserts the job, silently keeping the existing row when another
// job already holds the same (trigger_id, scheduled_time) slot.
func (s *Store) Enqueue(ctx context.Context, j job.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO hookqueue.queue(id, trigger_id, store_id, uri, method, headers, body, retry, scheduled_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT ON CONSTRAINT uq_queue_trigger_schedule DO NOTHING`,
		j.ID, j.TriggerID, j.StoreID, j.URI, j.Method, j.Headers, j.Body,
		j.Retry, j.ScheduledTime,
	)
	if err != nil {
		return fmt.Errorf("%w: enqueue: %v", queue.ErrUnavailable, err)
	}
	return nil
}

// PollDue scans for jobs whose schedule has passed. No locking: a cycle that
// outlives the poll interval may see jobs still in flight, which the bounded
// retry count tolerates.
func (s *Store) PollDue(ctx context.Context, now time.Time) ([]job.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, trigger_id, store_id, uri, method, headers, body, retry, scheduled_time
		FROM hookqueue.queue
		WHERE scheduled_time <= $1
		ORDER BY scheduled_time`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: poll: %v", queue.ErrUnavailable, err)
	}
	defer rows.Close()

	var due []job.Job
	for rows.Next() {
		var j job.Job
		if err := rows.Scan(&j.ID, &j.TriggerID, &j.StoreID, &j.URI, &j.Method,
			&j.Headers, &j.Body, &j.Retry, &j.ScheduledTime); err != nil {
			return due, fmt.Errorf("scan queue row: %w", err)
		}
		due = append(due, j)
	}
	return due, rows.Err()
}

// Remove deletes by stable id. A missing row means another path already
// settled the job; that is a no-op.
func (s *Store) Remove(ctx context.Context, j job.Job) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM hookqueue.queue WHERE id = $1`, j.ID)
	if err != nil {
		return fmt.Errorf("%w: remove: %v", queue.ErrUnavailable, err)
	}
	return nil
}

// Reschedule advances the job in place, keyed by its stable id, which is the
// replacement for the old delete-then-reinsert dance on stores that key rows
// by (trigger_id, scheduled_time). If the target slot is already occupied by
// an identical pending job, this copy is dropped as a duplicate.
func (s *Store) Reschedule(ctx context.Context, j job.Job, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE hookqueue.queue
		SET retry = retry + 1, scheduled_time = $2
		WHERE id = $1`,
		j.ID, at,
	)
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return s.Remove(ctx, j)
	}
	return fmt.Errorf("%w: reschedule: %v", queue.ErrUnavailable, err)
}
