package domain

import "fmt"

// PreconditionError reports an input state under which a pipeline stage
// cannot run at all: an empty atomic-unit set or a zero unit count at cell
// generation time. It is fatal to the run and never retried by the engine.
type PreconditionError struct {
	Stage  string
	Reason string
}

func (e PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed in %s: %s", e.Stage, e.Reason)
}

// GeometryError reports a geometric invariant violation: a degenerate hull,
// an atomic unit left unmapped after cell assignment, or invalid tiling
// parameters. It indicates a data or algorithm defect and is fatal.
type GeometryError struct {
	Stage  string
	Reason string
	Units  int
	Cells  int
}

func (e GeometryError) Error() string {
	return fmt.Sprintf("geometry computation failed in %s: %s (units=%d cells=%d)",
		e.Stage, e.Reason, e.Units, e.Cells)
}

// PersistenceError wraps a transactional write or commit failure. The
// orchestrator rolls back and reports it; retry policy belongs to the
// external job queue.
type PersistenceError struct {
	Op  string
	Err error
}

func (e PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e PersistenceError) Unwrap() error { return e.Err }

// ScopeBusyError is returned when a run cannot obtain the exclusive claim
// for its election/node scope because another run holds it. Callers fail
// fast rather than risking a partially written generation.
type ScopeBusyError struct {
	Scope Scope
}

func (e ScopeBusyError) Error() string {
	return fmt.Sprintf("scope %s is locked by a concurrent segmentation run", e.Scope.Key())
}
