package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Countdown is the UI-facing ticking clock. It decrements a local seconds
// counter once per tick from the server-derived starting value and raises
// the expiry signal once when the counter crosses into the grace window
// (small-but-positive, to absorb submit round-trip latency).
//
// The countdown is advisory: it does not survive tab-suspension-style
// stalls, and the authoritative remaining time is always re-derived from
// the server start timestamp. Firing the expiry handler is idempotent only
// because arming happens at most once here and the submission coordinator
// guards itself besides.
type Countdown struct {
	interval time.Duration
	grace    time.Duration
	onTick   func(secondsLeft int)
	onExpiry func()
	log      zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewCountdown builds a countdown that starts at initial remaining time and
// signals expiry once remaining <= grace. onTick may be nil; onExpiry must
// not be. The tick interval is one second; tests shrink it via SetInterval.
func NewCountdown(grace time.Duration, onTick func(int), onExpiry func(), log zerolog.Logger) *Countdown {
	return &Countdown{
		interval: time.Second,
		grace:    grace,
		onTick:   onTick,
		onExpiry: onExpiry,
		log:      log.With().Str("component", "countdown").Logger(),
		done:     make(chan struct{}),
	}
}

// SetInterval overrides the tick period. Call before Start.
func (c *Countdown) SetInterval(d time.Duration) { c.interval = d }

// Start begins ticking from initial. Call at most once.
func (c *Countdown) Start(initial time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(ctx, initial)
}

// Stop cancels the countdown and waits until the ticking goroutine has
// exited, so no tick or expiry signal can fire afterwards. Safe to call
// more than once; must not be called from inside the expiry handler.
func (c *Countdown) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

func (c *Countdown) run(ctx context.Context, initial time.Duration) {
	defer close(c.done)

	seconds := int(initial / time.Second)
	graceSeconds := int(c.grace / time.Second)
	armed := false

	fire := func() {
		if armed {
			return
		}
		armed = true
		c.log.Info().Int("seconds_left", seconds).Msg("Time-up threshold reached")
		c.onExpiry()
	}

	if c.onTick != nil {
		c.onTick(seconds)
	}
	// A session resumed with (nearly) no time left must expire immediately,
	// not one tick later.
	if seconds <= graceSeconds {
		fire()
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if seconds > 0 {
				seconds--
			}
			if c.onTick != nil {
				c.onTick(seconds)
			}
			if seconds <= graceSeconds {
				fire()
			}
		}
	}
}
