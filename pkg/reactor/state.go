package reactor

// StepState is the lifecycle state of a step within one run.
type StepState int

const (
	StatePending StepState = iota
	StateReady
	StateRunning
	StateSucceeded
	StateFailed
	StateCompensating
	StateSkipped
	StateUndone
)

// String returns the string representation of StepState.
func (s StepState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCompensating:
		return "compensating"
	case StateSkipped:
		return "skipped"
	case StateUndone:
		return "undone"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state as its name.
func (s StepState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Resolved reports whether dependents may consume the step's value.
func (s StepState) Resolved() bool {
	return s == StateSucceeded || s == StateSkipped
}

// RunStatus is the terminal status of a run.
type RunStatus int

const (
	StatusCompleted RunStatus = iota
	StatusFailed
	StatusCancelled
)

// String returns the string representation of RunStatus.
func (s RunStatus) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status as its name.
func (s RunStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
