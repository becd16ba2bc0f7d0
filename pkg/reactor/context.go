package reactor

import (
	"context"
	"sort"
)

// Results is a read-only view of values already resolved in a run.
type Results struct {
	values map[string]any
}

// Get returns the value of a succeeded or skipped step.
func (r Results) Get(step string) (any, bool) {
	v, ok := r.values[step]
	return v, ok
}

// Names returns the resolved step names in sorted order.
func (r Results) Names() []string {
	names := make([]string, 0, len(r.values))
	for name := range r.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of resolved steps.
func (r Results) Len() int {
	return len(r.values)
}

// StepContext is passed to run, compensate and undo functions. It carries
// the attempt deadline and the run cancellation signal.
type StepContext struct {
	context.Context

	runID    string
	workflow string
	step     string
	attempt  int
	results  Results
	cancel   context.CancelCauseFunc
}

// RunID returns the identifier of the current run.
func (c *StepContext) RunID() string { return c.runID }

// Workflow returns the workflow name.
func (c *StepContext) Workflow() string { return c.workflow }

// Step returns the name of the executing step.
func (c *StepContext) Step() string { return c.step }

// Attempt returns the 1-based attempt number.
func (c *StepContext) Attempt() int { return c.attempt }

// Results returns the values resolved before this step was dispatched.
func (c *StepContext) Results() Results { return c.results }

// Cancel requests cancellation of the whole run. Steps already running
// finish; no new steps are dispatched.
func (c *StepContext) Cancel() {
	if c.cancel != nil {
		c.cancel(ErrRunCancelled)
	}
}

func (c *StepContext) withContext(ctx context.Context) *StepContext {
	clone := *c
	clone.Context = ctx
	return &clone
}
