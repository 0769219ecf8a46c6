package domain

import (
	"errors"
	"fmt"
)

// FailureKind is the failure taxonomy of the invocation engine. Every failure
// the engine can produce is one of these kinds, returned as a value to the
// caller; nothing in the engine is fatal to the process.
type FailureKind string

const (
	// InvalidArguments: the caller's input fails the tool's parameter schema.
	InvalidArguments FailureKind = "invalid_arguments"
	// UnparsableCall: the parser could not extract a tool call.
	UnparsableCall FailureKind = "unparsable_call"
	// NotFound: unknown tool or chain name.
	NotFound FailureKind = "not_found"
	// DuplicateName: registration conflict.
	DuplicateName FailureKind = "duplicate_name"
	// CyclicChain: a chain directly or transitively contains itself.
	CyclicChain FailureKind = "cyclic_chain"
	// TimeoutFailure: the invocation exceeded its allotted time.
	TimeoutFailure FailureKind = "timeout"
	// ExecutionFailure wraps a tool's own runtime error or recovered panic.
	ExecutionFailure FailureKind = "execution_failure"
)

// Failure is a typed engine error carrying its kind and, for chain step
// failures, the index of the failing step.
type Failure struct {
	Kind FailureKind
	Msg  string
	Step int // failing step index within a chain, -1 when not applicable
	Err  error
}

func (f *Failure) Error() string {
	if f.Step >= 0 {
		return fmt.Sprintf("%s (step %d): %s", f.Kind, f.Step, f.Msg)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Msg)
}

func (f *Failure) Unwrap() error { return f.Err }

// Failf creates a Failure with a formatted message.
func Failf(kind FailureKind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Msg: fmt.Sprintf(format, args...), Step: -1}
}

// WrapFailure wraps err as a Failure of the given kind, preserving the cause.
func WrapFailure(kind FailureKind, err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: kind, Msg: err.Error(), Step: -1, Err: err}
}

// AtStep returns a copy of f annotated with the failing step index.
func (f *Failure) AtStep(i int) *Failure {
	c := *f
	c.Step = i
	return &c
}

// KindOf reports the FailureKind of err, or ExecutionFailure for untyped errors.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ExecutionFailure
}

// IsKind reports whether err is a Failure of the given kind.
func IsKind(err error, kind FailureKind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == kind
}
