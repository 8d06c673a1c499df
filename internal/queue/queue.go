// Package queue implements the enqueue side of the Redis-backed work
// queues. Job bodies live under their own keys; the per-queue pending
// list carries only ids. Retry and failure handling belong to the
// consumers, not here.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Job bodies expire if no consumer claims them within a day.
const ttlJob = 24 * time.Hour

// Options control how a job is enqueued.
type Options struct {
	// Attempts the consumer may make; defaults to 1. Single-attempt
	// jobs are dropped on failure rather than retried.
	Attempts int
	// Timeout is the maximum processing window the consumer enforces.
	Timeout time.Duration
}

// Job is the handle returned to the enqueuer, also the wire format.
type Job struct {
	ID         string          `json:"id"`
	Queue      string          `json:"queue"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	TimeoutMS  int64           `json:"timeout_ms,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Queue is one named work queue.
type Queue struct {
	rdb  *redis.Client
	name string
}

func New(rdb *redis.Client, name string) *Queue {
	return &Queue{rdb: rdb, name: name}
}

func (q *Queue) Name() string { return q.name }

func (q *Queue) keyPending() string { return "queue:" + q.name }

func (q *Queue) keyJob(id string) string { return "job:" + q.name + ":" + id }

// Enqueue serializes payload into a new job, stores the job body, and
// pushes its id onto the pending list. The returned handle lets the
// caller track the job.
func (q *Queue) Enqueue(ctx context.Context, payload any, opts Options) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("queue %s: payload: %w", q.name, err)
	}
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	job := &Job{
		ID:         uuid.NewString(),
		Queue:      q.name,
		Payload:    raw,
		Attempts:   attempts,
		TimeoutMS:  opts.Timeout.Milliseconds(),
		EnqueuedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("queue %s: job: %w", q.name, err)
	}
	if err := q.rdb.Set(ctx, q.keyJob(job.ID), body, ttlJob).Err(); err != nil {
		return nil, fmt.Errorf("queue %s: store job: %w", q.name, err)
	}
	if err := q.rdb.LPush(ctx, q.keyPending(), job.ID).Err(); err != nil {
		return nil, fmt.Errorf("queue %s: push: %w", q.name, err)
	}
	return job, nil
}

// Dequeue blocks up to timeout for the next job. Returns nil without
// error when the wait expires or the job body already aged out.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.keyPending()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue %s: pop: %w", q.name, err)
	}
	id := res[1]
	body, err := q.rdb.Get(ctx, q.keyJob(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue %s: fetch job %s: %w", q.name, id, err)
	}
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("queue %s: decode job %s: %w", q.name, id, err)
	}
	return &job, nil
}

// Len reports the number of pending jobs.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.keyPending()).Result()
}
