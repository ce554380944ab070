package session

import "fmt"

// Phase enumerates the states of an exam session. Exactly one phase is
// active at any time; all phase changes go through transition so illegal
// edges are structurally impossible.
type Phase string

const (
	PhaseLoading       Phase = "LOADING"
	PhaseAwaitingToken Phase = "AWAITING_TOKEN"
	PhaseInstructions  Phase = "INSTRUCTIONS"
	PhaseInProgress    Phase = "IN_PROGRESS"
	PhaseSubmitting    Phase = "SUBMITTING"
	PhaseSubmitted     Phase = "SUBMITTED"
	PhaseErrored       Phase = "ERRORED"
)

// legalEdges is the complete transition table. PhaseSubmitted and
// PhaseErrored have no outgoing edges: they are terminal.
var legalEdges = map[Phase][]Phase{
	PhaseLoading:       {PhaseAwaitingToken, PhaseInstructions, PhaseInProgress, PhaseSubmitted, PhaseErrored},
	PhaseAwaitingToken: {PhaseInstructions},
	PhaseInstructions:  {PhaseInProgress, PhaseErrored},
	PhaseInProgress:    {PhaseSubmitting},
	PhaseSubmitting:    {PhaseSubmitted, PhaseErrored},
}

// TransitionError reports an attempted illegal phase change.
type TransitionError struct {
	From Phase
	To   Phase
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal session transition %s -> %s", e.From, e.To)
}

// InvalidPhaseError reports an operation attempted while the session was in
// a phase that does not permit it.
type InvalidPhaseError struct {
	Op    string
	Phase Phase
}

func (e *InvalidPhaseError) Error() string {
	return fmt.Sprintf("%s not allowed in phase %s", e.Op, e.Phase)
}

// Terminal reports whether no transition leaves p.
func (p Phase) Terminal() bool {
	return p == PhaseSubmitted || p == PhaseErrored
}

// transition validates the edge from -> to.
func transition(from, to Phase) error {
	for _, next := range legalEdges[from] {
		if next == to {
			return nil
		}
	}
	return &TransitionError{From: from, To: to}
}
