package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestPersistenceErrorUnwrap(t *testing.T) {
	inner := errors.New("commit refused")
	err := PersistenceError{Op: "persist segments", Err: inner}
	if !errors.Is(err, inner) {
		t.Fatalf("expected wrapped error to satisfy errors.Is")
	}
	if !strings.Contains(err.Error(), "persist segments") {
		t.Fatalf("error text missing operation: %q", err.Error())
	}
}

func TestTypedErrorsSurviveWrapping(t *testing.T) {
	wrapped := fmt.Errorf("run failed: %w", PreconditionError{Stage: "units", Reason: "no located voters"})
	var pre PreconditionError
	if !errors.As(wrapped, &pre) {
		t.Fatalf("expected PreconditionError via errors.As")
	}
	if pre.Stage != "units" {
		t.Fatalf("unexpected stage %q", pre.Stage)
	}

	wrapped = fmt.Errorf("run failed: %w", GeometryError{Stage: "assign", Reason: "unmapped unit", Units: 3, Cells: 0})
	var ge GeometryError
	if !errors.As(wrapped, &ge) {
		t.Fatalf("expected GeometryError via errors.As")
	}
	if ge.Cells != 0 || ge.Units != 3 {
		t.Fatalf("unexpected counts in %+v", ge)
	}
}

func TestScopeKey(t *testing.T) {
	if got := (Scope{Election: "e1"}).Key(); got != "e1" {
		t.Fatalf("scope without node: %q", got)
	}
	if got := (Scope{Election: "e1", Node: "n7"}).Key(); got != "e1/n7" {
		t.Fatalf("scope with node: %q", got)
	}
}

func TestScopeBusyErrorMentionsScope(t *testing.T) {
	err := ScopeBusyError{Scope: Scope{Election: "e1", Node: "n1"}}
	if !strings.Contains(err.Error(), "e1/n1") {
		t.Fatalf("scope missing from error: %q", err.Error())
	}
}
