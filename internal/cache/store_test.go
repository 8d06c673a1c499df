package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb), mr
}

func TestInvalidateMatchDeletesEntry(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if err := mr.Set("match:100", `{"match_id":100}`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := s.InvalidateMatch(ctx, 100); err != nil {
		t.Fatalf("InvalidateMatch: %v", err)
	}
	if mr.Exists("match:100") {
		t.Fatalf("match:100 should be gone")
	}
}

func TestInvalidateMatchMissingEntry(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.InvalidateMatch(context.Background(), 999); err != nil {
		t.Fatalf("InvalidateMatch on missing key: %v", err)
	}
}

func TestSetAbilityUpgrades(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	perSlot := map[int64][]int64{0: {5003, 5001}, 128: nil}
	if err := s.SetAbilityUpgrades(ctx, 100, perSlot); err != nil {
		t.Fatalf("SetAbilityUpgrades: %v", err)
	}

	raw, err := mr.Get("ability_upgrades:100")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var decoded map[string][]int64
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded["0"]) != 2 || decoded["0"][0] != 5003 {
		t.Fatalf("slot 0 abilities wrong: %v", decoded["0"])
	}
	if decoded["128"] != nil {
		t.Fatalf("slot 128 should be null, got %v", decoded["128"])
	}

	if ttl := mr.TTL("ability_upgrades:100"); ttl != 24*time.Hour {
		t.Fatalf("ttl: got %v, want 24h", ttl)
	}
}

func TestSetsMissingKeysDecodeEmpty(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if err := mr.Set("trackedPlayers", `{"88470":1}`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	sets, err := s.Sets(ctx)
	if err != nil {
		t.Fatalf("Sets: %v", err)
	}
	if len(sets.TrackedPlayers) != 1 {
		t.Fatalf("trackedPlayers: got %v", sets.TrackedPlayers)
	}
	if sets.UserPlayers == nil || len(sets.UserPlayers) != 0 {
		t.Fatalf("userPlayers should decode empty, got %v", sets.UserPlayers)
	}
	if sets.Donators == nil || len(sets.Donators) != 0 {
		t.Fatalf("donators should decode empty, got %v", sets.Donators)
	}
}
