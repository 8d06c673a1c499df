// Package ingest sequences the match write pipeline: transactional
// upsert, cache snapshot dispatch, read-cache invalidation, and the
// parse-or-skip decision. Matches arrive repeatedly from different
// sources (api poll, replay parse, skill fetch) and converge through
// upsert semantics rather than application-level locking.
package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dotastats/ingest/internal/dota"
	"github.com/dotastats/ingest/internal/queue"
)

// ParseTimeout is the processing window carried on every parse job,
// enforced by the queue consumer.
const ParseTimeout = 180 * time.Second

// Insert types tag a match's provenance.
const (
	TypeAPI   = "api"
	TypeParse = "parse"
	TypeSkill = "skill"
)

// MatchWriter is the relational write surface the pipeline needs.
type MatchWriter interface {
	WriteMatch(ctx context.Context, match dota.Row, players []dota.Row) error
	Upsert(ctx context.Context, table string, row dota.Row, conflict []string) error
	Insert(ctx context.Context, table string, row dota.Row) error
}

// CacheStore is the read-cache surface the pipeline needs.
type CacheStore interface {
	InvalidateMatch(ctx context.Context, matchID int64) error
	SetAbilityUpgrades(ctx context.Context, matchID int64, perSlot map[int64][]int64) error
}

// Enqueuer is the enqueue contract of a work queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload any, opts queue.Options) (*queue.Job, error)
}

// Options adjust one ingestion call.
type Options struct {
	// Type tags the match's provenance (api, parse, skill).
	Type string `json:"type,omitempty"`
	// Origin is a free-form tag propagated to the cache snapshot.
	Origin string `json:"origin,omitempty"`

	SkipAbilityUpgrades bool `json:"skip_ability_upgrades,omitempty"`
	SkipCacheUpdate     bool `json:"skip_cache_update,omitempty"`
}

// Service orchestrates match and player persistence.
type Service struct {
	db           MatchWriter
	cache        CacheStore
	cacheQ       Enqueuer
	parseQ       Enqueuer
	log          *zap.Logger
	parseTimeout time.Duration
}

// ServiceOption adjusts a Service at construction time.
type ServiceOption func(*Service)

// WithParseTimeout overrides the processing window carried on parse jobs.
func WithParseTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.parseTimeout = d
		}
	}
}

func NewService(db MatchWriter, cache CacheStore, cacheQ, parseQ Enqueuer, log *zap.Logger, opts ...ServiceOption) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{db: db, cache: cache, cacheQ: cacheQ, parseQ: parseQ, log: log, parseTimeout: ParseTimeout}
	for _, o := range opts {
		o(s)
	}
	return s
}

// InsertMatch runs one match through the pipeline. The steps are
// strictly ordered and each gates on the previous one; the returned job
// is the parse job when the match still needs parsing, nil otherwise.
// Failures after the transaction committed come back as *StepError with
// Committed set.
func (s *Service) InsertMatch(ctx context.Context, m *dota.Match, opts Options) (*queue.Job, error) {
	if m == nil {
		return nil, fmt.Errorf("ingest: nil match")
	}
	matchID := m.ID()
	if matchID == 0 {
		return nil, fmt.Errorf("ingest: missing match_id")
	}

	if len(m.Players) > 0 && m.PGroup == nil {
		m.PGroup = dota.BuildPGroup(m.Players)
	}

	// Opportunistic side record; losing it only delays the parser's
	// ability metadata, so a failure is logged and swallowed.
	if perSlot, ok := abilityUpgrades(m.Players); ok && !opts.SkipAbilityUpgrades {
		if err := s.cache.SetAbilityUpgrades(ctx, matchID, perSlot); err != nil {
			s.log.Warn("ability upgrades side write failed",
				zap.Int64("match_id", matchID), zap.Error(err))
		}
	}

	playerRows := make([]dota.Row, 0, len(m.Players))
	for _, p := range m.Players {
		playerRows = append(playerRows, p.Row)
	}
	if err := s.db.WriteMatch(ctx, m.Row, playerRows); err != nil {
		return nil, stepErr(StepWrite, false, err)
	}

	if !opts.SkipCacheUpdate {
		snap := m.Snapshot()
		snap["insert_type"] = opts.Type
		snap["origin"] = opts.Origin
		// Single attempt: a lost cache refresh is corrected by the next
		// ingestion or read, so retrying is not worth it.
		if _, err := s.cacheQ.Enqueue(ctx, snap, queue.Options{Attempts: 1}); err != nil {
			return nil, stepErr(StepCacheUpdate, true, err)
		}
	}

	if err := s.cache.InvalidateMatch(ctx, matchID); err != nil {
		return nil, stepErr(StepInvalidate, true, err)
	}

	return s.decideParse(ctx, m)
}

// decideParse enqueues a parse job when the match still needs parsing.
// Any other parse status, including an absent one, skips without error;
// a refused parse is an expected outcome, not a failure.
func (s *Service) decideParse(ctx context.Context, m *dota.Match) (*queue.Job, error) {
	status, ok := m.ParseStatus()
	if !ok || status != dota.ParseStatusPending {
		return nil, nil
	}
	job, err := s.parseQ.Enqueue(ctx, m.Snapshot(), queue.Options{Timeout: s.parseTimeout})
	if err != nil {
		return nil, stepErr(StepParseDispatch, true, err)
	}
	return job, nil
}

// InsertPlayer upserts one players row keyed by account id. A steamid on
// the row (a login) is converted to an account id first. Anonymous or
// unknown accounts succeed without writing.
func (s *Service) InsertPlayer(ctx context.Context, player dota.Row) error {
	if sid, ok := player["steamid"]; ok && sid != nil {
		id64, err := dota.ParseSteamID64(sid)
		if err != nil {
			return fmt.Errorf("insert player: %w", err)
		}
		player["account_id"] = dota.AccountIDFromSteamID64(id64)
	}
	accountID, ok := dota.RowInt64(player, "account_id")
	if !ok || accountID == 0 || accountID == dota.AnonymousAccountID {
		return nil
	}
	return s.db.Upsert(ctx, "players", player, []string{"account_id"})
}

// InsertMatchSkill records the skill bracket observed for a match.
func (s *Service) InsertMatchSkill(ctx context.Context, row dota.Row) error {
	if _, ok := dota.RowInt64(row, "match_id"); !ok {
		return fmt.Errorf("insert match skill: missing match_id")
	}
	return s.db.Upsert(ctx, "match_skill", row, []string{"match_id"})
}

// InsertPlayerRating appends one rating observation.
func (s *Service) InsertPlayerRating(ctx context.Context, row dota.Row) error {
	return s.db.Insert(ctx, "player_ratings", row)
}

// abilityUpgrades collects per-slot ability pick sequences. Mirrors the
// write condition on the side record: only when the first player entry
// actually carries upgrade data. Slots without data map to nil.
func abilityUpgrades(players []dota.PlayerMatch) (map[int64][]int64, bool) {
	if len(players) == 0 {
		return nil, false
	}
	if _, ok := players[0].AbilityUpgrades(); !ok {
		return nil, false
	}
	out := make(map[int64][]int64, len(players))
	for _, p := range players {
		slot, ok := p.Slot()
		if !ok {
			continue
		}
		if abilities, ok := p.AbilityUpgrades(); ok {
			out[slot] = abilities
		} else {
			out[slot] = nil
		}
	}
	return out, true
}
