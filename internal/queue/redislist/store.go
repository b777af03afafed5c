// Package redislist is the list-based Queue Store: a redis list popped FIFO
// with client-side due-time requeue, plus SETNX identity keys for idempotent
// enqueue. Due jobs are parked on an in-flight list until the dispatcher
// reaches a terminal decision or reschedules them.
package redislist

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hookqueue/hookqueue/internal/job"
	"github.com/hookqueue/hookqueue/internal/queue"
)

const (
	queueKey    = "hookqueue:queue"
	inflightKey = "hookqueue:inflight"
	idKeyPrefix = "hookqueue:ids:"
)

type Store struct {
	client *redis.Client
}

// NewStore connects to redis and verifies the connection.
func NewStore(addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &Store{client: client}, nil
}

// NewStoreWithClient wraps an existing client, used by tests.
func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

func idKey(j job.Job) string {
	return idKeyPrefix + j.DedupKey()
}

// Enqueue pushes the job unless its dedup key is already claimed.
func (s *Store) Enqueue(ctx context.Context, j job.Job) error {
	set, err := s.client.SetNX(ctx, idKey(j), j.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: claim identity: %v", queue.ErrUnavailable, err)
	}
	if !set {
		// Same trigger and schedule already pending: idempotent no-op.
		return nil
	}

	b, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := s.client.LPush(ctx, queueKey, b).Err(); err != nil {
		return fmt.Errorf("%w: push job: %v", queue.ErrUnavailable, err)
	}
	return nil
}

// PollDue pops every element once: due jobs move to the in-flight list and
// are returned, not-yet-due jobs are pushed back to the head so the pass
// cannot revisit them this cycle. Entries that fail to decode are dropped.
func (s *Store) PollDue(ctx context.Context, now time.Time) ([]job.Job, error) {
	n, err := s.client.LLen(ctx, queueKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: queue length: %v", queue.ErrUnavailable, err)
	}

	var due []job.Job
	for i := int64(0); i < n; i++ {
		raw, err := s.client.RPop(ctx, queueKey).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return due, fmt.Errorf("%w: pop job: %v", queue.ErrUnavailable, err)
		}

		var j job.Job
		if err := json.Unmarshal([]byte(raw), &j); err != nil {
			continue
		}

		if j.ScheduledTime.After(now) {
			if err := s.client.LPush(ctx, queueKey, raw).Err(); err != nil {
				return due, fmt.Errorf("%w: requeue job: %v", queue.ErrUnavailable, err)
			}
			continue
		}

		if err := s.client.LPush(ctx, inflightKey, raw).Err(); err != nil {
			return due, fmt.Errorf("%w: park in-flight: %v", queue.ErrUnavailable, err)
		}
		due = append(due, j)
	}
	return due, nil
}

// Remove settles a job: drop it from the in-flight list and release its
// identity key. Removing a job that is already gone is a no-op.
func (s *Store) Remove(ctx context.Context, j job.Job) error {
	b, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := s.client.LRem(ctx, inflightKey, 0, b).Err(); err != nil {
		return fmt.Errorf("%w: remove in-flight: %v", queue.ErrUnavailable, err)
	}
	if err := s.client.Del(ctx, idKey(j)).Err(); err != nil {
		return fmt.Errorf("%w: release identity: %v", queue.ErrUnavailable, err)
	}
	return nil
}

// Reschedule is remove-then-enqueue under the new schedule with the retry
// count advanced; the identity key moves with the schedule.
func (s *Store) Reschedule(ctx context.Context, j job.Job, at time.Time) error {
	if err := s.Remove(ctx, j); err != nil {
		return err
	}
	updated := j
	updated.Retry++
	updated.ScheduledTime = at
	return s.Enqueue(ctx, updated)
}

// Ping verifies the redis connection, for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
