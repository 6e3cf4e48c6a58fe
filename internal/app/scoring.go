package app

import "math"

const (
	baseScore      = 1000
	streakStep     = 100
	maxStreakBonus = 500
)

// Score returns the points for one answer. timeRemaining is not clamped: a late answer yields a
// reduced, possibly negative, result and callers decide how to apply it. totalTime must be positive.
func Score(timeRemaining, totalTime float64, streak int, optimal bool) int {
	if !optimal {
		return 0
	}
	bonus := min(streak*streakStep, maxStreakBonus)
	return int(math.Floor(baseScore*(timeRemaining/totalTime) + float64(bonus)))
}
