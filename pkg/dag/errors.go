package dag

import (
	"fmt"
	"strings"
)

// BuildError is the base interface for all plan construction errors.
type BuildError interface {
	error
	// StepName returns the step associated with the error, if any.
	StepName() string
}

// UnresolvedArgumentError is returned when a binding source names neither a
// declared input nor a declared step.
type UnresolvedArgumentError struct {
	Step   string
	Source Source
}

func (e *UnresolvedArgumentError) Error() string {
	return fmt.Sprintf("step %s: unresolved argument source %s", e.Step, e.Source)
}

// StepName returns the step that holds the bad binding.
func (e *UnresolvedArgumentError) StepName() string {
	return e.Step
}

// CycleDetectedError is returned when the dependency graph contains a cycle.
type CycleDetectedError struct {
	// Cycle is the offending path, closed on its first node (e.g. ["a", "b", "a"]).
	Cycle []string
}

func (e *CycleDetectedError) Error() string {
	if len(e.Cycle) == 0 {
		return "cycle detected"
	}
	return fmt.Sprintf("cycle detected: %s", strings.Join(e.Cycle, " → "))
}

// StepName returns the first step in the cycle.
func (e *CycleDetectedError) StepName() string {
	if len(e.Cycle) > 0 {
		return e.Cycle[0]
	}
	return ""
}

// UnreachableReturnError is returned when the return step is not declared or
// cannot be reached from the inputs.
type UnreachableReturnError struct {
	Return string
	Reason string
}

func (e *UnreachableReturnError) Error() string {
	if e.Return == "" {
		return fmt.Sprintf("return step is unreachable: %s", e.Reason)
	}
	return fmt.Sprintf("return step %s is unreachable: %s", e.Return, e.Reason)
}

// StepName returns the return step name.
func (e *UnreachableReturnError) StepName() string {
	return e.Return
}

// DuplicateStepError is returned when a step name is declared twice or
// collides with an input name.
type DuplicateStepError struct {
	Name string
}

func (e *DuplicateStepError) Error() string {
	return fmt.Sprintf("duplicate step or input name: %s", e.Name)
}

// StepName returns the duplicated name.
func (e *DuplicateStepError) StepName() string {
	return e.Name
}

// InvalidSourceError is returned when a binding source string cannot be parsed.
type InvalidSourceError struct {
	Raw string
}

func (e *InvalidSourceError) Error() string {
	return fmt.Sprintf("invalid binding source %q: want input:<name> or step:<name>", e.Raw)
}

// StepName returns an empty string; the source is not yet attached to a step.
func (e *InvalidSourceError) StepName() string {
	return ""
}
