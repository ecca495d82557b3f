package domain

import (
	"errors"
	"fmt"
)

// ErrProposalNotFound is returned when a proposal id is unknown.
var ErrProposalNotFound = errors.New("proposal not found")

// MalformedArgumentsError reports that the accumulated argument text for one
// tool call could not be parsed. The failure is scoped to that call; the
// streaming turn continues.
type MalformedArgumentsError struct {
	CallID   string
	ToolName string
	Err      error
}

func (e *MalformedArgumentsError) Error() string {
	return fmt.Sprintf("malformed arguments for tool call %s (%s): %v", e.CallID, e.ToolName, e.Err)
}

func (e *MalformedArgumentsError) Unwrap() error { return e.Err }

// ToolExecutionError reports a tool handler failure. It is resolved locally
// into the proposal record or a scoped stream event, never propagated as a
// stream-fatal error.
type ToolExecutionError struct {
	ToolName string
	Err      error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s execution failed: %v", e.ToolName, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }
