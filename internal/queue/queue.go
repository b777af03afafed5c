// Package queue defines the contract between the dispatcher and the durable
// store of pending deliveries. Two backends implement it: a query-based
// postgres store (scan and filter by schedule) and a redis list store
// (FIFO pop with client-side due-time requeue). The dispatcher works
// correctly against either.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/hookqueue/hookqueue/internal/job"
)

// ErrUnavailable wraps backend connectivity failures so the dispatcher can
// skip the cycle and let the next poll retry naturally.
var ErrUnavailable = errors.New("queue store unavailable")

// Store is the durable queue of pending jobs.
//
// Enqueue is idempotent on (TriggerID, ScheduledTime): inserting a job whose
// dedup key already exists must not create a second visible row.
//
// PollDue returns jobs with ScheduledTime <= now. It does not require an
// atomic snapshot; each element is visited at most once per cycle, best
// effort.
//
// Remove deletes a job by its stable ID. Removing a job that is already gone
// is a no-op, not an error.
//
// Reschedule is logically remove-then-enqueue: the job reappears with Retry
// incremented by one and ScheduledTime set to at. Implementations must never
// leave the job visible at its old schedule.
type Store interface {
	Enqueue(ctx context.Context, j job.Job) error
	PollDue(ctx context.Context, now time.Time) ([]job.Job, error)
	Remove(ctx context.Context, j job.Job) error
	Reschedule(ctx context.Context, j job.Job, at time.Time) error
}
