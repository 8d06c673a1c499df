package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTL for the ability-upgrade side record; the parser picks it up well
// within a day or not at all.
const ttlAbilityUpgrades = 24 * time.Hour

// Store wraps the read-cache keys the ingestion pipeline touches.
type Store struct{ rdb *redis.Client }

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func (s *Store) keyMatch(matchID int64) string {
	return "match:" + strconv.FormatInt(matchID, 10)
}

func (s *Store) keyAbilityUpgrades(matchID int64) string {
	return "ability_upgrades:" + strconv.FormatInt(matchID, 10)
}

// InvalidateMatch drops the read-through cache entry for a match so the
// next read recomputes from the source of truth.
func (s *Store) InvalidateMatch(ctx context.Context, matchID int64) error {
	return s.rdb.Del(ctx, s.keyMatch(matchID)).Err()
}

// SetAbilityUpgrades writes the per-slot ability pick sequences as a
// time-boxed side record keyed by match id. Slots without data carry
// null, mirroring the payload shape consumers expect.
func (s *Store) SetAbilityUpgrades(ctx context.Context, matchID int64, perSlot map[int64][]int64) error {
	raw, err := json.Marshal(perSlot)
	if err != nil {
		return fmt.Errorf("ability upgrades %d: %w", matchID, err)
	}
	return s.rdb.SetEx(ctx, s.keyAbilityUpgrades(matchID), raw, ttlAbilityUpgrades).Err()
}

// PlayerSets are the account-id membership maps maintained elsewhere and
// read by pollers to decide which matches to track.
type PlayerSets struct {
	TrackedPlayers map[string]any
	UserPlayers    map[string]any
	Donators       map[string]any
}

// Sets loads the three player membership maps. Missing keys decode as
// empty maps.
func (s *Store) Sets(ctx context.Context) (*PlayerSets, error) {
	out := &PlayerSets{}
	for key, dst := range map[string]*map[string]any{
		"trackedPlayers": &out.TrackedPlayers,
		"userPlayers":    &out.UserPlayers,
		"donators":       &out.Donators,
	} {
		raw, err := s.rdb.Get(ctx, key).Bytes()
		if err == redis.Nil {
			*dst = map[string]any{}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("sets %s: %w", key, err)
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return nil, fmt.Errorf("sets %s: %w", key, err)
		}
	}
	return out, nil
}
