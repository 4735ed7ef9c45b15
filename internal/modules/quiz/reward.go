package quiz

import (
	"math"
	"time"

	"github.com/yungbote/waifu-verifier-backend/internal/domain/catalog"
)

const (
	// MaxLevel is the highest difficulty tier. Clearing it unlocks the character title.
	MaxLevel = 4

	BonusMultiplier = 1.5
)

const (
	StatusPerfectSync      = "PERFECT_SYNC"
	StatusMissionPassed    = "MISSION_PASSED"
	StatusMissionCompleted = "MISSION_COMPLETED"
)

// Reward returns the points for a correct answer given the whole seconds left on the
// countdown. The bonus applies only when remaining is strictly more than half the duration.
func Reward(base, duration, remaining int) int {
	if base <= 0 {
		base = catalog.DefaultQuestionPoints
	}
	if duration <= 0 {
		duration = catalog.DefaultQuestionDuration
	}
	if float64(remaining) > float64(duration)/2 {
		return int(math.Round(float64(base) * BonusMultiplier))
	}
	return base
}

// RemainingSeconds mirrors the visible countdown: it starts at duration and drops by one
// every full second.
func RemainingSeconds(duration int, elapsed time.Duration) int {
	if duration <= 0 {
		duration = catalog.DefaultQuestionDuration
	}
	if elapsed < 0 {
		elapsed = 0
	}
	left := duration - int(elapsed/time.Second)
	if left < 0 {
		return 0
	}
	return left
}

// Result summarises a finished session.
type Result struct {
	Correct    int    `json:"correct"`
	Total      int    `json:"total"`
	Points     int    `json:"points"`
	Percentage int    `json:"percentage"`
	Status     string `json:"status"`
}

func Summarize(correct, total, points int) Result {
	pct := 0
	if total > 0 {
		pct = int(math.Round(float64(correct) / float64(total) * 100))
	}
	return Result{
		Correct:    correct,
		Total:      total,
		Points:     points,
		Percentage: pct,
		Status:     StatusFor(pct),
	}
}

func StatusFor(percentage int) string {
	switch {
	case percentage >= 100:
		return StatusPerfectSync
	case percentage >= 70:
		return StatusMissionPassed
	default:
		return StatusMissionCompleted
	}
}

// LevelUnlocked reports whether level can be played given the highest level cleared.
func LevelUnlocked(level, levelCleared int) bool {
	if level < 1 || level > MaxLevel {
		return false
	}
	return level == 1 || levelCleared >= level-1
}
