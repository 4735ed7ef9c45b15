package leaderboard

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	TitleUnproven  = "KARBIT OR NO?"
	TitleHusband   = "SUAMI SAH"
	TitleSeasonal  = "KARBIT MUSIMAN"
	TitleBottom    = "KARBIT SAMPAH"
	devoteePrefix  = "PEMUJA "
	followerPrefix = "PENGIKUT "
)

// Rank is 1 + the number of totals strictly greater than mine, so equal totals share a rank.
func Rank(myTotal int, others []int) int {
	rank := 1
	for _, t := range others {
		if t > myTotal {
			rank++
		}
	}
	return rank
}

// TitleInput carries what the title cascade needs.
type TitleInput struct {
	Rank          int
	Completion    float64
	CharacterName string
	LevelCleared  int
	// RequireCleared gates every title behind clearing the final level.
	RequireCleared bool
	MaxLevel       int
}

// Title maps a standing to its fan title.
func Title(in TitleInput) string {
	if in.RequireCleared && in.LevelCleared < in.MaxLevel {
		return TitleUnproven
	}
	first := strings.ToUpper(FirstName(in.CharacterName))
	switch {
	case in.Rank == 1:
		return TitleHusband
	case in.Rank >= 2 && in.Rank <= 5:
		return devoteePrefix + first
	case in.Completion > 50:
		return followerPrefix + first
	case in.Completion >= 30:
		return TitleSeasonal
	default:
		return TitleBottom
	}
}

func FirstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Completion is answered/total as a percentage; zero questions means zero completion.
func Completion(answered, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(answered) / float64(total) * 100
}

// Entry is one fan on a character board.
type Entry struct {
	UserID    uuid.UUID
	Total     int
	UpdatedAt time.Time
}

// Order sorts by total desc. Ties go to the earliest UpdatedAt, then the smaller user id.
func Order(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		return a.UserID.String() < b.UserID.String()
	})
}

// Ranks assigns competition ranks to an ordered slice.
func Ranks(ordered []Entry) []int {
	out := make([]int, len(ordered))
	for i := range ordered {
		if i > 0 && ordered[i].Total == ordered[i-1].Total {
			out[i] = out[i-1]
			continue
		}
		out[i] = i + 1
	}
	return out
}
