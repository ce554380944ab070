package session

import (
	"errors"
	"testing"
)

func TestLegalTransitions(t *testing.T) {
	legal := []struct{ from, to Phase }{
		{PhaseLoading, PhaseAwaitingToken},
		{PhaseLoading, PhaseInstructions},
		{PhaseLoading, PhaseInProgress},
		{PhaseLoading, PhaseSubmitted},
		{PhaseLoading, PhaseErrored},
		{PhaseAwaitingToken, PhaseInstructions},
		{PhaseInstructions, PhaseInProgress},
		{PhaseInstructions, PhaseErrored},
		{PhaseInProgress, PhaseSubmitting},
		{PhaseSubmitting, PhaseSubmitted},
		{PhaseSubmitting, PhaseErrored},
	}

	for _, tc := range legal {
		if err := transition(tc.from, tc.to); err != nil {
			t.Fatalf("expected %s -> %s to be legal: %v", tc.from, tc.to, err)
		}
	}
}

func TestIllegalTransitions(t *testing.T) {
	illegal := []struct{ from, to Phase }{
		{PhaseSubmitted, PhaseInProgress},
		{PhaseSubmitted, PhaseErrored},
		{PhaseErrored, PhaseInProgress},
		{PhaseErrored, PhaseSubmitting},
		{PhaseInProgress, PhaseSubmitted}, // must pass through Submitting
		{PhaseInProgress, PhaseErrored},
		{PhaseInstructions, PhaseSubmitting},
		{PhaseAwaitingToken, PhaseInProgress},
		{PhaseSubmitting, PhaseInProgress}, // no way back after submit begins
	}

	for _, tc := range illegal {
		err := transition(tc.from, tc.to)
		if err == nil {
			t.Fatalf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
		var te *TransitionError
		if !errors.As(err, &te) {
			t.Fatalf("expected TransitionError, got %T", err)
		}
	}
}

func TestTerminalPhases(t *testing.T) {
	for _, p := range []Phase{PhaseSubmitted, PhaseErrored} {
		if !p.Terminal() {
			t.Fatalf("expected %s to be terminal", p)
		}
	}
	for _, p := range []Phase{PhaseLoading, PhaseAwaitingToken, PhaseInstructions, PhaseInProgress, PhaseSubmitting} {
		if p.Terminal() {
			t.Fatalf("did not expect %s to be terminal", p)
		}
	}
}
