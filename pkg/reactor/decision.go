package reactor

import "fmt"

// DecisionKind enumerates compensation outcomes.
type DecisionKind int

const (
	// DecisionAbort stops scheduling and rolls the run back.
	DecisionAbort DecisionKind = iota
	// DecisionRetry re-runs the failed step.
	DecisionRetry
	// DecisionSkip marks the step skipped; dependents receive its fallback.
	DecisionSkip
	// DecisionContinue marks the step succeeded with a supplied value.
	DecisionContinue
)

// String returns the string representation of DecisionKind.
func (k DecisionKind) String() string {
	switch k {
	case DecisionAbort:
		return "abort"
	case DecisionRetry:
		return "retry"
	case DecisionSkip:
		return "skip"
	case DecisionContinue:
		return "continue"
	default:
		return "unknown"
	}
}

// Decision is the result of a compensate function. The zero value aborts.
type Decision struct {
	Kind  DecisionKind
	Value any
}

// Retry re-runs the step if it has retries left.
func Retry() Decision { return Decision{Kind: DecisionRetry} }

// Skip marks the step skipped.
func Skip() Decision { return Decision{Kind: DecisionSkip} }

// Continue marks the step succeeded with value.
func Continue(value any) Decision { return Decision{Kind: DecisionContinue, Value: value} }

// Abort stops the run and starts rollback.
func Abort() Decision { return Decision{Kind: DecisionAbort} }

func (d Decision) String() string {
	if d.Kind == DecisionContinue {
		return fmt.Sprintf("continue(%v)", d.Value)
	}
	return d.Kind.String()
}
