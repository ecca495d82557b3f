// Package domain defines the core domain models for the approval service.
package domain

import "fmt"

// ActionState represents the lifecycle state of an action proposal.
type ActionState string

const (
	ActionStateProposed  ActionState = "proposed"
	ActionStateApproved  ActionState = "approved"
	ActionStateExecuting ActionState = "executing"
	ActionStateSucceeded ActionState = "succeeded"
	ActionStateFailed    ActionState = "failed"
	ActionStateDeclined  ActionState = "declined"
)

// validTransitions is the full transition table. failed -> executing is the
// retry edge; succeeded and declined have no outgoing edges.
var validTransitions = map[ActionState]map[ActionState]bool{
	ActionStateProposed: {
		ActionStateApproved: true,
		ActionStateDeclined: true,
	},
	ActionStateApproved: {
		ActionStateExecuting: true,
	},
	ActionStateExecuting: {
		ActionStateSucceeded: true,
		ActionStateFailed:    true,
	},
	ActionStateFailed: {
		ActionStateExecuting: true,
	},
}

var terminalStates = map[ActionState]bool{
	ActionStateSucceeded: true,
	ActionStateDeclined:  true,
}

// InvalidTransitionError reports a rejected state transition. The proposal is
// left unchanged when this is returned.
type InvalidTransitionError struct {
	From ActionState
	To   ActionState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid action state transition: %q -> %q", e.From, e.To)
}

// ValidateTransition checks the transition table. Pure, no side effects.
func ValidateTransition(from, to ActionState) error {
	if validTransitions[from][to] {
		return nil
	}
	return &InvalidTransitionError{From: from, To: to}
}

// IsTerminal reports whether a state has no outgoing transitions.
func IsTerminal(s ActionState) bool {
	return terminalStates[s]
}
