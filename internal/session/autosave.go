package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AutosavePump periodically persists a snapshot of the current answers
// while the session is in progress. Autosave is best-effort: failures are
// logged and swallowed, never surfaced and never allowed to touch the
// phase. The pump's lifetime is scoped to PhaseInProgress — it is started
// on entry and stopped synchronously on exit so a stale tick can never
// fire against a terminal session.
type AutosavePump struct {
	interval time.Duration
	snapshot func() map[uuid.UUID]string
	save     func(ctx context.Context, answers map[uuid.UUID]string) error
	log      zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewAutosavePump creates a pump that every interval calls snapshot and
// hands the result to save.
func NewAutosavePump(
	interval time.Duration,
	snapshot func() map[uuid.UUID]string,
	save func(ctx context.Context, answers map[uuid.UUID]string) error,
	log zerolog.Logger,
) *AutosavePump {
	return &AutosavePump{
		interval: interval,
		snapshot: snapshot,
		save:     save,
		log:      log.With().Str("component", "autosave_pump").Logger(),
		done:     make(chan struct{}),
	}
}

// Start begins the pump loop. Call at most once.
func (p *AutosavePump) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.run(ctx)
}

// Stop cancels the pump and waits for the loop goroutine to exit. After
// Stop returns no further save can be issued. Safe to call more than once.
func (p *AutosavePump) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

func (p *AutosavePump) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Debug().Msg("Pump stopped")
			return
		case <-ticker.C:
			answers := p.snapshot()
			if err := p.save(ctx, answers); err != nil {
				// Best-effort: the final submit carries the authoritative
				// answer set regardless.
				p.log.Warn().Err(err).Int("answers", len(answers)).Msg("Autosave failed")
				continue
			}
			p.log.Debug().Int("answers", len(answers)).Msg("Autosaved")
		}
	}
}
