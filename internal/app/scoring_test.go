package app_test

import (
	"testing"

	"scenario-quiz/internal/app"
)

func TestScoreExamples(t *testing.T) {
	cases := []struct {
		name      string
		remaining float64
		total     float64
		streak    int
		optimal   bool
		want      int
	}{
		{"full time first streak", 20, 30, 1, true, 766},
		{"streak cap at five", 30, 30, 5, true, 1500},
		{"streak above cap", 30, 30, 10, true, 1500},
		{"non optimal", 30, 30, 3, false, 0},
		{"non optimal late", -10, 30, 9, false, 0},
		{"late answer is not clamped", -15, 30, 0, true, -500},
		{"late answer floors toward negative", -1, 3, 0, true, -334},
	}
	for _, tc := range cases {
		if got := app.Score(tc.remaining, tc.total, tc.streak, tc.optimal); got != tc.want {
			t.Fatalf("%s: Score(%v, %v, %d, %v) = %d, want %d", tc.name, tc.remaining, tc.total, tc.streak, tc.optimal, got, tc.want)
		}
	}
}

func TestScoreMonotonic(t *testing.T) {
	prev := app.Score(0, 30, 1, true)
	for remaining := 1.0; remaining <= 30; remaining++ {
		got := app.Score(remaining, 30, 1, true)
		if got < prev {
			t.Fatalf("score decreased with more time remaining: %d -> %d at %v", prev, got, remaining)
		}
		prev = got
	}

	prev = app.Score(10, 30, 0, true)
	for streak := 1; streak <= 8; streak++ {
		got := app.Score(10, 30, streak, true)
		if got < prev {
			t.Fatalf("score decreased with longer streak: %d -> %d at %d", prev, got, streak)
		}
		prev = got
	}
}
