package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T, name string) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, name), mr
}

func TestEnqueueReturnsHandle(t *testing.T) {
	q, mr := newTestQueue(t, "parse")
	ctx := context.Background()

	job, err := q.Enqueue(ctx, map[string]any{"match_id": 100}, Options{Timeout: 180 * time.Second})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if job.ID == "" {
		t.Fatalf("expected non-empty job id")
	}
	if job.Queue != "parse" {
		t.Fatalf("queue: got %q", job.Queue)
	}
	if job.Attempts != 1 {
		t.Fatalf("attempts should default to 1, got %d", job.Attempts)
	}
	if job.TimeoutMS != 180000 {
		t.Fatalf("timeout: got %d, want 180000", job.TimeoutMS)
	}

	n, err := q.Len(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Len: got %d err=%v", n, err)
	}
	if ttl := mr.TTL("job:parse:" + job.ID); ttl != 24*time.Hour {
		t.Fatalf("job ttl: got %v, want 24h", ttl)
	}
}

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	q, _ := newTestQueue(t, "cache")
	ctx := context.Background()

	sent, err := q.Enqueue(ctx, map[string]any{"match_id": 100, "origin": "scanner"}, Options{Attempts: 1})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	got, err := q.Dequeue(ctx, time.Second)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if got == nil || got.ID != sent.ID {
		t.Fatalf("dequeued job mismatch: %+v", got)
	}
	var payload map[string]any
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("payload decode: %v", err)
	}
	if payload["origin"] != "scanner" {
		t.Fatalf("payload: %v", payload)
	}

	n, err := q.Len(ctx)
	if err != nil || n != 0 {
		t.Fatalf("Len after dequeue: got %d err=%v", n, err)
	}
}

func TestQueuesAreIndependent(t *testing.T) {
	q, mr := newTestQueue(t, "cache")
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	other := New(rdb, "parse")
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, "a", Options{}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	n, err := other.Len(ctx)
	if err != nil || n != 0 {
		t.Fatalf("parse queue should be empty: got %d err=%v", n, err)
	}
}
