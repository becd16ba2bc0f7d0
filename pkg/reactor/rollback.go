package reactor

import (
	"context"
	"time"
)

// rollback undoes every succeeded step in reverse topological order. It
// runs after all in-flight steps have drained and ignores run
// cancellation so undo always gets a chance to execute.
func (r *run) rollback() *RollbackReport {
	report := &RollbackReport{Undone: []string{}}
	ctx := context.WithoutCancel(r.ctx)

	for _, i := range r.plan.ReverseOrder() {
		if !r.plan.Required(i) || r.states[i] != StateSucceeded {
			continue
		}
		step := r.wf.steps[i]

		start := time.Now()
		var err error
		if step.Undo != nil {
			err = r.undo(ctx, i, step)
		}

		ev := r.event(i, r.attempts[i])
		ev.Value = r.values[i]
		ev.Duration = time.Since(start)
		if err != nil {
			undoErr := &UndoError{Step: step.Name, Err: err}
			report.Errors = append(report.Errors, undoErr)
			ev.Err = undoErr
			r.log.ErrorContext(ctx, "undo failed", "step", step.Name, "error", err)
		} else {
			r.states[i] = StateUndone
			report.Undone = append(report.Undone, step.Name)
			r.log.DebugContext(ctx, "step undone", "step", step.Name, "has_undo", step.Undo != nil)
		}
		ev.State = r.states[i]
		r.pipeline.notify(ctx, hookUndo, ev)
	}

	return report
}

func (r *run) undo(ctx context.Context, i int, step *Step) error {
	timeout := step.Timeout
	if timeout == 0 {
		timeout = r.defaultStepTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sc := &StepContext{
		Context:  ctx,
		runID:    r.id,
		workflow: r.wf.name,
		step:     step.Name,
		attempt:  r.attempts[i],
		results:  r.snapshot(),
	}
	return callUndo(step.Undo, sc, r.values[i], copyArgs(r.args[i]))
}
