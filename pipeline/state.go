package pipeline

import (
	"github.com/teranos/evalanche/errors"
)

// State is the position of a run in its lifecycle
type State string

const (
	StateIdle                State = "IDLE"
	StateTagging             State = "TAGGING"
	StateFetchingBatch       State = "FETCHING_BATCH"
	StateInvoking            State = "INVOKING"
	StateJoiningAndAppending State = "JOINING_AND_APPENDING"
	StateDone                State = "DONE"
	StateFailed              State = "FAILED"
)

// transitions lists the legal successors of each state. FAILED is reachable
// from every non-terminal state and is not listed.
var transitions = map[State][]State{
	StateIdle:                {StateTagging},
	StateTagging:             {StateFetchingBatch},
	StateFetchingBatch:       {StateInvoking, StateDone},
	StateInvoking:            {StateJoiningAndAppending},
	StateJoiningAndAppending: {StateFetchingBatch},
}

// IsValidState returns true if s names a State
func IsValidState(s string) bool {
	switch State(s) {
	case StateIdle, StateTagging, StateFetchingBatch, StateInvoking,
		StateJoiningAndAppending, StateDone, StateFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no transition leaves s
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransitionTo reports whether next may follow s
func (s State) CanTransitionTo(next State) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// checkTransition returns an assertion failure for an illegal transition
func checkTransition(from, to State) error {
	if !from.CanTransitionTo(to) {
		return errors.AssertionFailedf("illegal run transition %s -> %s", from, to)
	}
	return nil
}
