package dota

import (
	"encoding/json"
	"fmt"
)

// Row is a loosely structured record destined for one table. Match data
// arrives from several sources (live API poll, replay parse, skill fetch)
// with overlapping but not identical field sets, so rows stay schemaless
// until they are filtered against the live column list at write time.
type Row = map[string]any

// Match is one in-flight match record plus its player entries.
type Match struct {
	// Row holds the raw match columns. It never contains the "players"
	// array; that lives in Players.
	Row Row

	Players []PlayerMatch

	// PGroup maps player slot to identity info so downstream cache
	// consumers can resolve players without a database read. Derived
	// once per ingestion when absent.
	PGroup PGroup
}

// PlayerMatch is one (match, player slot) entry.
type PlayerMatch struct {
	Row Row
}

// PGroupEntry identifies the player occupying one slot.
type PGroupEntry struct {
	AccountID  *int64 `json:"account_id"`
	HeroID     int64  `json:"hero_id"`
	PlayerSlot int64  `json:"player_slot"`
}

// PGroup indexes PGroupEntry by player slot.
type PGroup map[int64]PGroupEntry

// Parse status values carried on the match row.
const (
	ParseStatusPending     = 0 // replay parse still required
	ParseStatusUnavailable = 1 // no replay to parse
	ParseStatusParsed      = 2
)

// MatchFromRow splits a raw decoded record into match columns and player
// entries. The input map is not retained.
func MatchFromRow(raw Row) (*Match, error) {
	if raw == nil {
		return nil, fmt.Errorf("match: nil row")
	}
	row := CloneRow(raw)
	if _, ok := RowInt64(row, "match_id"); !ok {
		return nil, fmt.Errorf("match: missing match_id")
	}
	m := &Match{Row: row}
	if ps, ok := row["players"]; ok {
		delete(row, "players")
		list, ok := ps.([]any)
		if !ok {
			return nil, fmt.Errorf("match: players is not an array")
		}
		for i, p := range list {
			pr, ok := p.(Row)
			if !ok {
				return nil, fmt.Errorf("match: players[%d] is not an object", i)
			}
			m.Players = append(m.Players, PlayerMatch{Row: pr})
		}
	}
	if pg, ok := row["pgroup"]; ok {
		delete(row, "pgroup")
		group, err := pgroupFromValue(pg)
		if err != nil {
			return nil, err
		}
		m.PGroup = group
	}
	return m, nil
}

// MatchFromJSON decodes one match record, players included.
func MatchFromJSON(data []byte) (*Match, error) {
	var raw Row
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("match: decode: %w", err)
	}
	return MatchFromRow(raw)
}

// ID returns the match id, or 0 when absent.
func (m *Match) ID() int64 {
	id, _ := RowInt64(m.Row, "match_id")
	return id
}

// ParseStatus reports the match's parse status and whether one is set.
func (m *Match) ParseStatus() (int64, bool) {
	return RowInt64(m.Row, "parse_status")
}

// Snapshot returns a self-contained deep copy of the match with players
// and pgroup folded back in, suitable for handing to another process.
func (m *Match) Snapshot() Row {
	snap := CloneRow(m.Row)
	if m.Players != nil {
		players := make([]any, 0, len(m.Players))
		for _, p := range m.Players {
			players = append(players, CloneRow(p.Row))
		}
		snap["players"] = players
	}
	if m.PGroup != nil {
		snap["pgroup"] = m.PGroup
	}
	return snap
}

// Slot returns the player slot ordinal (encodes team and position).
func (p PlayerMatch) Slot() (int64, bool) {
	return RowInt64(p.Row, "player_slot")
}

// AccountID returns the account id when present and non-anonymous data
// exists; ok is false for anonymous players.
func (p PlayerMatch) AccountID() (int64, bool) {
	return RowInt64(p.Row, "account_id")
}

// HeroID returns the hero id, or 0 when absent.
func (p PlayerMatch) HeroID() int64 {
	id, _ := RowInt64(p.Row, "hero_id")
	return id
}

// AbilityUpgrades extracts the ordered ability ids from the raw
// ability_upgrades array ({ability, time, level} objects).
func (p PlayerMatch) AbilityUpgrades() ([]int64, bool) {
	v, ok := p.Row["ability_upgrades"]
	if !ok || v == nil {
		return nil, false
	}
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]int64, 0, len(list))
	for _, e := range list {
		obj, ok := e.(Row)
		if !ok {
			return nil, false
		}
		ability, ok := RowInt64(obj, "ability")
		if !ok {
			return nil, false
		}
		out = append(out, ability)
	}
	return out, true
}

// BuildPGroup derives the slot index from the player entries.
func BuildPGroup(players []PlayerMatch) PGroup {
	group := make(PGroup, len(players))
	for _, p := range players {
		slot, ok := p.Slot()
		if !ok {
			continue
		}
		entry := PGroupEntry{HeroID: p.HeroID(), PlayerSlot: slot}
		if aid, ok := p.AccountID(); ok {
			entry.AccountID = &aid
		}
		group[slot] = entry
	}
	return group
}

func pgroupFromValue(v any) (PGroup, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("match: pgroup: %w", err)
	}
	var group PGroup
	if err := json.Unmarshal(raw, &group); err != nil {
		return nil, fmt.Errorf("match: pgroup: %w", err)
	}
	return group, nil
}

// CloneRow deep-copies a row through a JSON round trip, matching the
// snapshot semantics the cache consumers rely on. Rows hold only
// JSON-representable values.
func CloneRow(row Row) Row {
	if row == nil {
		return nil
	}
	raw, err := json.Marshal(row)
	if err != nil {
		// Rows are built from decoded JSON; a cycle or exotic type here
		// is a programming error.
		panic(fmt.Sprintf("dota: clone row: %v", err))
	}
	var out Row
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("dota: clone row: %v", err))
	}
	return out
}

// RowInt64 reads a numeric row value, coercing the representations a
// JSON decode can produce.
func RowInt64(row Row, key string) (int64, bool) {
	v, ok := row[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
