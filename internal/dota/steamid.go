package dota

import (
	"fmt"
	"strconv"
)

// AnonymousAccountID is the sentinel Valve uses for players who hide
// their profile. Rows carrying it are never persisted per-player.
const AnonymousAccountID int64 = 4294967295

// steamID64Base is the offset between a 64-bit Steam ID and the 32-bit
// account id used everywhere in the match data.
const steamID64Base int64 = 76561197960265728

// AccountIDFromSteamID64 converts a 64-bit Steam ID to an account id.
func AccountIDFromSteamID64(steamID int64) int64 {
	return steamID - steamID64Base
}

// ParseSteamID64 reads a 64-bit Steam ID from the representations a
// login payload can carry (string or number).
func ParseSteamID64(v any) (int64, error) {
	switch s := v.(type) {
	case string:
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("steamid: %w", err)
		}
		return id, nil
	case float64:
		return int64(s), nil
	case int64:
		return s, nil
	default:
		return 0, fmt.Errorf("steamid: unsupported type %T", v)
	}
}
