package quiz

import (
	"testing"
	"time"
)

func TestRewardBonusThresholdIsStrict(t *testing.T) {
	cases := []struct {
		base, duration, remaining, want int
	}{
		{10, 20, 10, 10},
		{10, 20, 11, 15},
		{10, 15, 8, 15},
		{10, 15, 7, 10},
		{15, 30, 16, 23},
		{0, 0, 8, 15},
		{0, 0, 7, 10},
		{25, 10, 0, 25},
	}
	for _, tc := range cases {
		if got := Reward(tc.base, tc.duration, tc.remaining); got != tc.want {
			t.Fatalf("Reward(%d,%d,%d): want=%d got=%d", tc.base, tc.duration, tc.remaining, tc.want, got)
		}
	}
}

func TestRemainingSecondsCountsWholeSeconds(t *testing.T) {
	if got := RemainingSeconds(20, 9500*time.Millisecond); got != 11 {
		t.Fatalf("9.5s elapsed: want=11 got=%d", got)
	}
	if got := RemainingSeconds(20, 10*time.Second); got != 10 {
		t.Fatalf("10s elapsed: want=10 got=%d", got)
	}
	if got := RemainingSeconds(0, 0); got != 15 {
		t.Fatalf("default duration: want=15 got=%d", got)
	}
	if got := RemainingSeconds(5, time.Minute); got != 0 {
		t.Fatalf("overrun: want=0 got=%d", got)
	}
}

func TestSummarizeStatus(t *testing.T) {
	cases := []struct {
		correct, total int
		pct            int
		status         string
	}{
		{5, 5, 100, StatusPerfectSync},
		{7, 10, 70, StatusMissionPassed},
		{2, 3, 67, StatusMissionCompleted},
		{0, 0, 0, StatusMissionCompleted},
	}
	for _, tc := range cases {
		r := Summarize(tc.correct, tc.total, 0)
		if r.Percentage != tc.pct || r.Status != tc.status {
			t.Fatalf("Summarize(%d,%d): want=%d/%s got=%d/%s", tc.correct, tc.total, tc.pct, tc.status, r.Percentage, r.Status)
		}
	}
}

func TestLevelUnlocked(t *testing.T) {
	if !LevelUnlocked(1, 0) {
		t.Fatalf("level 1 must always be open")
	}
	if LevelUnlocked(2, 0) {
		t.Fatalf("level 2 must be locked until level 1 is cleared")
	}
	if !LevelUnlocked(3, 2) || !LevelUnlocked(2, 4) {
		t.Fatalf("cleared prerequisites must unlock")
	}
	if LevelUnlocked(0, 4) || LevelUnlocked(MaxLevel+1, MaxLevel) {
		t.Fatalf("out of range levels must be locked")
	}
}
