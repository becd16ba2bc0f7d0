package reactor

import (
	"context"
	"errors"
	"fmt"

	"github.com/goclaw/reactor/pkg/dag"
)

// Build-time errors are produced by the dag package and surfaced unchanged.
type (
	UnresolvedArgumentError = dag.UnresolvedArgumentError
	CycleDetectedError      = dag.CycleDetectedError
	UnreachableReturnError  = dag.UnreachableReturnError
)

var (
	// ErrRunCancelled is the cancellation cause set when a step requests
	// that the run stop.
	ErrRunCancelled = errors.New("run cancelled by step")

	// ErrRunTimeout is the cancellation cause set when the run deadline expires.
	ErrRunTimeout = errors.New("run timeout exceeded")

	// ErrStalled is reported when no step can make progress and the return
	// step has not resolved. It indicates an executor bug.
	ErrStalled = errors.New("run stalled before the return step resolved")
)

// StepExecutionError wraps a failure of a step's run function, including
// per-attempt timeouts and recovered panics.
type StepExecutionError struct {
	Step    string
	Attempt int
	Err     error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %s attempt %d failed: %v", e.Step, e.Attempt, e.Err)
}

func (e *StepExecutionError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the attempt exceeded its deadline.
func (e *StepExecutionError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// CompensationError is returned when a compensate function itself fails.
// It always aborts the run.
type CompensationError struct {
	Step    string
	Failure error
	Err     error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation for step %s failed: %v", e.Step, e.Err)
}

func (e *CompensationError) Unwrap() error {
	return e.Err
}

// UndoError records one failed undo during rollback.
type UndoError struct {
	Step string
	Err  error
}

func (e *UndoError) Error() string {
	return fmt.Sprintf("undo of step %s failed: %v", e.Step, e.Err)
}

func (e *UndoError) Unwrap() error {
	return e.Err
}

// MissingInputError is returned when a declared input has no value at run time.
type MissingInputError struct {
	Name string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("missing value for input %s", e.Name)
}

// PanicError carries a value recovered from a panicking step function.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
