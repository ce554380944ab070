package session

import (
	"testing"
	"time"
)

func TestRemainingFullDurationAtStart(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	got := Remaining(start, 30*time.Minute, start)
	if got != 30*time.Minute {
		t.Fatalf("expected full duration, got %v", got)
	}
}

func TestRemainingMatchesFormula(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	duration := 30 * time.Minute

	// D - floor(elapsed) at several offsets, including sub-second parts
	// that must floor away.
	cases := []struct {
		elapsed time.Duration
		want    int
	}{
		{0, 1800},
		{time.Second, 1799},
		{1500 * time.Millisecond, 1799},
		{15 * time.Minute, 900},
		{29*time.Minute + 58*time.Second, 2},
		{30 * time.Minute, 0},
		{31 * time.Minute, 0},
	}

	for _, tc := range cases {
		got := RemainingSeconds(start, duration, start.Add(tc.elapsed))
		if got != tc.want {
			t.Fatalf("elapsed %v: expected %d seconds, got %d", tc.elapsed, tc.want, got)
		}
	}
}

func TestRemainingClampsClockSkew(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	// Local clock behind the server: elapsed floors at zero rather than
	// inflating the remaining time.
	got := Remaining(start, 30*time.Minute, start.Add(-10*time.Second))
	if got != 30*time.Minute {
		t.Fatalf("expected full duration under skew, got %v", got)
	}
}

func TestRemainingNonIncreasing(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	duration := 30 * time.Minute

	prev := Remaining(start, duration, start)
	for elapsed := time.Second; elapsed <= 31*time.Minute; elapsed += 13 * time.Second {
		got := Remaining(start, duration, start.Add(elapsed))
		if got > prev {
			t.Fatalf("remaining increased from %v to %v at elapsed %v", prev, got, elapsed)
		}
		prev = got
	}
}
