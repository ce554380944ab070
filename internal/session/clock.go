package session

import "time"

// Clock supplies the local notion of "now". Production code uses
// SystemClock; tests inject fixed or stepped clocks.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the real wall clock.
var SystemClock Clock = systemClock{}

// Remaining computes the time left in a timed window that opened at the
// server-reported instant serverStart and lasts duration. Elapsed time is
// floored to whole seconds and clamped at zero, so local clocks running
// behind the server (skew) never produce more than the full duration, and
// an expired window never goes negative.
func Remaining(serverStart time.Time, duration time.Duration, now time.Time) time.Duration {
	elapsed := now.Sub(serverStart)
	if elapsed < 0 {
		elapsed = 0
	}
	elapsed = elapsed.Truncate(time.Second)
	remaining := duration - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RemainingSeconds is Remaining expressed in whole seconds.
func RemainingSeconds(serverStart time.Time, duration time.Duration, now time.Time) int {
	return int(Remaining(serverStart, duration, now) / time.Second)
}
