package flow

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("flow: validation failed")
	ErrGraphIntegrity   = errors.New("flow: graph integrity violation")
	ErrLockConflict     = errors.New("flow: locked")
	ErrStateCorruption  = errors.New("flow: session state corrupted")
	ErrTransientStorage = errors.New("flow: transient storage failure")

	ErrFlowNotFound     = errors.New("flow: flow not found")
	ErrNodeNotFound     = errors.New("flow: node not found")
	ErrSessionNotFound  = errors.New("flow: session not found")
	ErrSessionCompleted = errors.New("flow: session already completed")
	ErrFlowNotPublished = errors.New("flow: flow is not published")
)

// ValidationError reports a malformed request or node payload.
type ValidationError struct {
	Field  string
	NodeID string
	Reason string
}

func (e *ValidationError) Error() string {
	switch {
	case e.NodeID != "" && e.Field != "":
		return fmt.Sprintf("flow: invalid node %s: %s: %s", e.NodeID, e.Field, e.Reason)
	case e.NodeID != "":
		return fmt.Sprintf("flow: invalid node %s: %s", e.NodeID, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("flow: invalid %s: %s", e.Field, e.Reason)
	}
	return "flow: invalid request: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// IntegrityKind names the structural rule a node set broke.
type IntegrityKind string

const (
	KindDanglingEdge     IntegrityKind = "dangling_edge"
	KindNoStart          IntegrityKind = "no_start"
	KindMultipleStarts   IntegrityKind = "multiple_starts"
	KindStartMismatch    IntegrityKind = "start_mismatch"
	KindOrphan           IntegrityKind = "orphan"
	KindDeadEnd          IntegrityKind = "dead_end"
	KindTerminalHasExit  IntegrityKind = "terminal_has_exit"
	KindCycle            IntegrityKind = "cycle"
	KindConsentViolation IntegrityKind = "consent_violation"
)

// IntegrityError is returned by Validate when a graph is not safe to run.
type IntegrityError struct {
	Kind   IntegrityKind
	NodeID string
	Detail string
}

func (e *IntegrityError) Error() string {
	msg := "flow: " + string(e.Kind)
	if e.NodeID != "" {
		msg += " at node " + e.NodeID
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *IntegrityError) Unwrap() error { return ErrGraphIntegrity }

// StateCorruptionError means a session points at a node that no longer exists.
// The session cannot be repaired and must be terminated.
type StateCorruptionError struct {
	SessionID string
	NodeID    string
}

func (e *StateCorruptionError) Error() string {
	return fmt.Sprintf("flow: session %q points at missing node %q", e.SessionID, e.NodeID)
}

func (e *StateCorruptionError) Unwrap() error { return ErrStateCorruption }

// TransientError wraps an infrastructure failure that is safe to retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("flow: %s: transient: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() []error { return []error{ErrTransientStorage, e.Err} }

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool { return errors.Is(err, ErrTransientStorage) }
