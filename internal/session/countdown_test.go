package session

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestCountdownFiresOnceInsideGraceWindow(t *testing.T) {
	var fired atomic.Int32

	cd := NewCountdown(2*time.Second, nil, func() { fired.Add(1) }, zerolog.Nop())
	cd.SetInterval(2 * time.Millisecond)
	cd.Start(6 * time.Second)
	defer cd.Stop()

	// 6s of countdown at 2ms per tick: well past the grace threshold, the
	// timer keeps ticking but the signal must stay armed after one firing.
	deadline := time.After(500 * time.Millisecond)
	for fired.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("expiry signal never fired")
		case <-time.After(5 * time.Millisecond):
		}
	}

	time.Sleep(50 * time.Millisecond) // many more ticks below the threshold
	if got := fired.Load(); got != 1 {
		t.Fatalf("expected exactly one expiry signal, got %d", got)
	}
}

func TestCountdownFiresImmediatelyWhenAlreadyInsideGrace(t *testing.T) {
	// The §8 scenario: 30 minutes duration, started 29m58s ago, 2s grace —
	// remaining computes to 2s and the signal fires without waiting a tick.
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	now := start.Add(29*time.Minute + 58*time.Second)

	remaining := Remaining(start, 30*time.Minute, now)
	if remaining != 2*time.Second {
		t.Fatalf("expected 2s remaining, got %v", remaining)
	}

	fired := make(chan struct{}, 1)
	cd := NewCountdown(2*time.Second, nil, func() { fired <- struct{}{} }, zerolog.Nop())
	cd.SetInterval(time.Hour) // no tick will arrive; only the start check can fire
	cd.Start(remaining)
	defer cd.Stop()

	select {
	case <-fired:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected immediate expiry signal inside grace window")
	}
}

func TestCountdownTickDecrements(t *testing.T) {
	ticks := make(chan int, 64)

	cd := NewCountdown(0, func(s int) { ticks <- s }, func() {}, zerolog.Nop())
	cd.SetInterval(2 * time.Millisecond)
	cd.Start(5 * time.Second)
	defer cd.Stop()

	var seen []int
	timeout := time.After(500 * time.Millisecond)
	for len(seen) < 4 {
		select {
		case s := <-ticks:
			seen = append(seen, s)
		case <-timeout:
			t.Fatalf("not enough ticks, saw %v", seen)
		}
	}

	for i := 1; i < len(seen); i++ {
		if seen[i] > seen[i-1] {
			t.Fatalf("countdown increased: %v", seen)
		}
	}
	if seen[0] != 5 {
		t.Fatalf("expected first tick at initial value 5, got %d", seen[0])
	}
}

func TestCountdownStopPreventsLaterSignals(t *testing.T) {
	var fired atomic.Int32
	var ticks atomic.Int32

	cd := NewCountdown(time.Second, func(int) { ticks.Add(1) }, func() { fired.Add(1) }, zerolog.Nop())
	cd.SetInterval(2 * time.Millisecond)
	cd.Start(time.Hour)

	time.Sleep(20 * time.Millisecond)
	cd.Stop()

	before := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	if after := ticks.Load(); after != before {
		t.Fatalf("tick fired after Stop: %d -> %d", before, after)
	}
	if fired.Load() != 0 {
		t.Fatalf("expiry fired for an hour-long countdown")
	}

	cd.Stop() // idempotent
}
