package reactor

import (
	"errors"
	"time"
)

// StepResult is the outcome of one step in a run.
type StepResult struct {
	Step      string        `json:"step"`
	RunID     string        `json:"run_id"`
	State     StepState     `json:"state"`
	Success   bool          `json:"success"`
	Value     any           `json:"value,omitempty"`
	Err       error         `json:"-"`
	Error     string        `json:"error,omitempty"`
	Attempts  int           `json:"attempts"`
	Duration  time.Duration `json:"duration"`
	Continued bool          `json:"continued,omitempty"`
}

// RollbackReport lists the steps undone during an abort and any undo
// failures. Undo failures never stop the rollback.
type RollbackReport struct {
	Undone []string     `json:"undone"`
	Errors []*UndoError `json:"-"`
}

// Err joins every undo failure, or returns nil.
func (r *RollbackReport) Err() error {
	if r == nil || len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// ExecutionResult is the outcome of one run. Step failures are reported
// here, never as a returned error.
type ExecutionResult struct {
	RunID       string                 `json:"run_id"`
	Workflow    string                 `json:"workflow"`
	Status      RunStatus              `json:"status"`
	ReturnValue any                    `json:"return_value,omitempty"`
	StepResults map[string]*StepResult `json:"step_results"`
	Duration    time.Duration          `json:"duration"`
	Rollback    *RollbackReport        `json:"rollback,omitempty"`

	// Err is the cause of a failed or cancelled run.
	Err error `json:"-"`
}

// Step returns the result of the named step, or nil.
func (r *ExecutionResult) Step(name string) *StepResult {
	return r.StepResults[name]
}
