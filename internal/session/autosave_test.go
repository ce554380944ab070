package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestAutosavePumpSendsSnapshots(t *testing.T) {
	qid := uuid.New()
	var saves atomic.Int32
	var lastValue atomic.Value

	pump := NewAutosavePump(
		3*time.Millisecond,
		func() map[uuid.UUID]string { return map[uuid.UUID]string{qid: "answer"} },
		func(ctx context.Context, answers map[uuid.UUID]string) error {
			saves.Add(1)
			lastValue.Store(answers[qid])
			return nil
		},
		zerolog.Nop(),
	)
	pump.Start()
	defer pump.Stop()

	deadline := time.After(500 * time.Millisecond)
	for saves.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 saves, got %d", saves.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	if got := lastValue.Load(); got != "answer" {
		t.Fatalf("expected snapshot content, got %v", got)
	}
}

func TestAutosaveFailureIsSwallowed(t *testing.T) {
	clock := fixedClock{at: time.Now()}
	store, _ := newInProgressStore(t, clock)

	var saves atomic.Int32
	pump := NewAutosavePump(
		3*time.Millisecond,
		store.Snapshot,
		func(ctx context.Context, answers map[uuid.UUID]string) error {
			saves.Add(1)
			return errors.New("network down")
		},
		zerolog.Nop(),
	)
	pump.Start()

	deadline := time.After(500 * time.Millisecond)
	for saves.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("pump stopped retrying after failure, got %d saves", saves.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	pump.Stop()

	// Best-effort: repeated failures never touch the phase.
	if got := store.Phase(); got != PhaseInProgress {
		t.Fatalf("autosave failure changed phase to %s", got)
	}
}

func TestAutosaveStopIsSynchronous(t *testing.T) {
	var saves atomic.Int32
	pump := NewAutosavePump(
		2*time.Millisecond,
		func() map[uuid.UUID]string { return nil },
		func(ctx context.Context, answers map[uuid.UUID]string) error {
			saves.Add(1)
			return nil
		},
		zerolog.Nop(),
	)
	pump.Start()

	time.Sleep(20 * time.Millisecond)
	pump.Stop()
	after := saves.Load()

	time.Sleep(30 * time.Millisecond)
	if got := saves.Load(); got != after {
		t.Fatalf("save fired after Stop returned: %d -> %d", after, got)
	}

	pump.Stop() // idempotent
}

func TestAutosaveStopBeforeStartIsNoop(t *testing.T) {
	pump := NewAutosavePump(time.Second, func() map[uuid.UUID]string { return nil },
		func(context.Context, map[uuid.UUID]string) error { return nil }, zerolog.Nop())
	pump.Stop()
}
