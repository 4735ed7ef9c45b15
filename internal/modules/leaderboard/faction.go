package leaderboard

import (
	"github.com/google/uuid"
)

// FactionRow is one character's aggregate.
type FactionRow struct {
	CharacterID   uuid.UUID
	CharacterName string
	Total         int64
	Players       int64
}

// Faction picks the character with the highest summed total. Ties go to the name that
// sorts first. ok is false when no character has any points.
func Faction(rows []FactionRow) (FactionRow, bool) {
	var best FactionRow
	found := false
	for _, r := range rows {
		if r.Total <= 0 {
			continue
		}
		if !found || r.Total > best.Total || (r.Total == best.Total && r.CharacterName < best.CharacterName) {
			best = r
			found = true
		}
	}
	return best, found
}

// Holder is the top fan of one character.
type Holder struct {
	CharacterID uuid.UUID
	Entry
}

// TopHolders returns the first entry per character from boards already in board order.
func TopHolders(boards map[uuid.UUID][]Entry) map[uuid.UUID]Holder {
	out := make(map[uuid.UUID]Holder, len(boards))
	for charID, entries := range boards {
		if len(entries) == 0 {
			continue
		}
		out[charID] = Holder{CharacterID: charID, Entry: entries[0]}
	}
	return out
}
