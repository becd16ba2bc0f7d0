package reactor

import (
	"context"
	"time"

	"github.com/goclaw/reactor/pkg/dag"
	"github.com/goclaw/reactor/pkg/logger"
)

type completionKind int

const (
	attemptFinished completionKind = iota
	compensationFinished
	retryDue
)

// completion is the only message workers send back to the control loop.
type completion struct {
	kind     completionKind
	step     int
	attempt  int
	value    any
	err      error
	decision Decision
	duration time.Duration
}

// run is the mutable state of one execution. Every field below the
// channels is read and written only by the control loop goroutine.
type run struct {
	id                 string
	wf                 *Workflow
	plan               *dag.Plan
	inputs             map[string]any
	limit              int
	required           int
	defaultStepTimeout time.Duration
	comp               compensator
	log                logger.Logger
	pipeline           *Pipeline

	ctx         context.Context
	cancel      context.CancelCauseFunc
	stopTimeout context.CancelFunc
	stop        chan struct{} // closed on abort; wakes retry timers
	done        chan completion

	states   []StepState
	results  []*StepResult
	values   []any
	args     []Args
	waiting  []int
	attempts []int
	started  []time.Time
	ready    []int
	inflight int // steps holding a concurrency slot
	timers   int // retries waiting out their backoff

	aborted   bool
	cancelled bool
	cause     error
	start     time.Time
}

func newRun(parent context.Context, e *Executor, wf *Workflow, inputs map[string]any, cfg runConfig) *run {
	n := wf.plan.Len()

	ctx, cancel := context.WithCancelCause(parent)
	stopTimeout := context.CancelFunc(func() {})
	if cfg.timeout > 0 {
		ctx, stopTimeout = context.WithTimeoutCause(ctx, cfg.timeout, ErrRunTimeout)
	}

	r := &run{
		id:                 cfg.runID,
		wf:                 wf,
		plan:               wf.plan,
		inputs:             inputs,
		defaultStepTimeout: cfg.stepTimeout,
		comp:               compensator{defaultBackoff: e.defaultBackoff},
		log:                logger.ForRun(e.logger, cfg.runID, wf.name),
		pipeline:           e.pipeline.clone(),
		ctx:                ctx,
		cancel:             cancel,
		stopTimeout:        stopTimeout,
		stop:               make(chan struct{}),
		done:               make(chan completion, n),
		states:             make([]StepState, n),
		results:            make([]*StepResult, n),
		values:             make([]any, n),
		args:               make([]Args, n),
		waiting:            make([]int, n),
		attempts:           make([]int, n),
		started:            make([]time.Time, n),
	}

	for i := 0; i < n; i++ {
		if wf.plan.Required(i) {
			r.required++
			r.results[i] = &StepResult{Step: wf.plan.Name(i), RunID: r.id}
		}
	}

	r.limit = cfg.maxConcurrency
	if r.limit <= 0 || r.limit > r.required {
		r.limit = r.required
	}
	return r
}

func (r *run) execute() *ExecutionResult {
	defer r.stopTimeout()
	defer r.cancel(nil)

	r.start = time.Now()
	r.pipeline.runStarted(r.ctx, r.id, r.wf.name)
	r.log.InfoContext(r.ctx, "run started", "steps", r.required, "max_concurrency", r.limit)

	if err := r.checkInputs(); err != nil {
		return r.finish(StatusFailed, err, nil)
	}

	for _, i := range r.plan.Order() {
		if !r.plan.Required(i) {
			continue
		}
		r.waiting[i] = len(r.plan.Deps(i))
		if r.waiting[i] == 0 {
			r.markReady(i)
		}
	}

	r.loop()

	// A cancellation that lands while the return step is still draining
	// does not undo a return value that was produced.
	if r.states[r.plan.Return()].Resolved() && (!r.aborted || r.cancelled) {
		return r.finish(StatusCompleted, nil, nil)
	}

	if r.aborted {
		report := r.rollback()
		status := StatusFailed
		if r.cancelled {
			status = StatusCancelled
		}
		return r.finish(status, r.cause, report)
	}

	return r.finish(StatusFailed, ErrStalled, nil)
}

func (r *run) checkInputs() error {
	for _, name := range r.plan.Inputs() {
		if _, ok := r.inputs[name]; !ok {
			return &MissingInputError{Name: name}
		}
	}
	return nil
}

// loop dispatches ready steps and consumes completions until nothing is in
// flight and either the return step resolved or the run aborted.
func (r *run) loop() {
	cancelled := r.ctx.Done()
	for {
		if cancelled != nil && r.ctx.Err() != nil {
			cancelled = nil
			if !r.settled() {
				r.abort(context.Cause(r.ctx), true)
			}
		}

		r.dispatch()
		if r.finished() {
			return
		}

		select {
		case c := <-r.done:
			r.handle(c)
		case <-cancelled:
			cancelled = nil
			r.abort(context.Cause(r.ctx), true)
		}
	}
}

// settled reports whether the return step resolved with nothing left
// running, so cancellation has no work to stop.
func (r *run) settled() bool {
	return r.inflight == 0 && r.timers == 0 && r.states[r.plan.Return()].Resolved()
}

func (r *run) finished() bool {
	if r.inflight > 0 || r.timers > 0 {
		return false
	}
	if r.aborted || r.states[r.plan.Return()].Resolved() {
		return true
	}
	return len(r.ready) == 0
}

func (r *run) dispatch() {
	for !r.aborted && r.inflight < r.limit && len(r.ready) > 0 {
		i := r.ready[0]
		r.ready = r.ready[1:]
		r.launch(i)
	}
}

func (r *run) launch(i int) {
	step := r.wf.steps[i]
	r.attempts[i]++
	attempt := r.attempts[i]
	if attempt == 1 {
		r.started[i] = time.Now()
		r.args[i] = r.resolveArgs(step)
	}

	r.states[i] = StateRunning
	r.inflight++

	sc := r.stepContext(i, attempt)
	r.pipeline.notify(r.ctx, hookDispatch, r.event(i, attempt))
	r.log.DebugContext(r.ctx, "step dispatched", "step", step.Name, "attempt", attempt, "in_flight", r.inflight)

	go r.attempt(i, step, sc, copyArgs(r.args[i]))
}

func (r *run) resolveArgs(step *Step) Args {
	args := make(Args, len(step.Bindings))
	for _, b := range step.Bindings {
		switch b.Source.Kind {
		case dag.SourceInput:
			args[b.Param] = r.inputs[b.Source.Name]
		case dag.SourceStep:
			j, _ := r.plan.Index(b.Source.Name)
			args[b.Param] = r.values[j]
		}
	}
	return args
}

func (r *run) snapshot() Results {
	values := make(map[string]any)
	for j, st := range r.states {
		if r.plan.Required(j) && st.Resolved() {
			values[r.plan.Name(j)] = r.values[j]
		}
	}
	return Results{values: values}
}

func (r *run) stepContext(i, attempt int) *StepContext {
	return &StepContext{
		Context:  r.ctx,
		runID:    r.id,
		workflow: r.wf.name,
		step:     r.plan.Name(i),
		attempt:  attempt,
		results:  r.snapshot(),
		cancel:   r.cancel,
	}
}

// attempt runs on a worker goroutine and reports through r.done.
func (r *run) attempt(i int, step *Step, sc *StepContext, args Args) {
	timeout := step.Timeout
	if timeout == 0 {
		timeout = r.defaultStepTimeout
	}

	ctx := sc.Context
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	sc = sc.withContext(ctx)

	start := time.Now()
	value, err := callRun(step.Run, sc, args)
	if err == nil && timeout > 0 && context.Cause(ctx) == context.DeadlineExceeded {
		err = context.DeadlineExceeded
	}
	if err != nil {
		value = nil
		err = &StepExecutionError{Step: step.Name, Attempt: sc.attempt, Err: err}
	}

	r.done <- completion{
		kind:     attemptFinished,
		step:     i,
		attempt:  sc.attempt,
		value:    value,
		err:      err,
		duration: time.Since(start),
	}
}

func (r *run) handle(c completion) {
	switch c.kind {
	case attemptFinished:
		r.attemptFinished(c)
	case compensationFinished:
		r.inflight--
		r.applyDecision(c.step, c.attempt, c.decision, c.err)
	case retryDue:
		r.timers--
		if r.aborted {
			r.fail(c.step)
			return
		}
		r.markReady(c.step)
	}
}

func (r *run) attemptFinished(c completion) {
	i := c.step
	res := r.results[i]
	res.Attempts = c.attempt
	res.Duration = time.Since(r.started[i])

	if c.err == nil {
		r.inflight--
		r.succeed(i, c.attempt, c.value, c.duration, false)
		return
	}

	res.Err = c.err
	res.Error = c.err.Error()
	r.states[i] = StateFailed

	ev := r.event(i, c.attempt)
	ev.Err = c.err
	ev.Duration = c.duration
	r.pipeline.notify(r.ctx, hookError, ev)
	r.log.WarnContext(r.ctx, "step failed", "step", res.Step, "attempt", c.attempt, "error", c.err)

	if r.aborted {
		r.inflight--
		r.fail(i)
		return
	}

	step := r.wf.steps[i]
	r.states[i] = StateCompensating
	if step.Compensate == nil {
		r.inflight--
		r.applyDecision(i, c.attempt, defaultDecision(step), nil)
		return
	}

	// The compensate call keeps the step's concurrency slot.
	go r.compensate(i, step, r.stepContext(i, c.attempt), c.err, copyArgs(r.args[i]))
}

// compensate runs on a worker goroutine and reports through r.done.
func (r *run) compensate(i int, step *Step, sc *StepContext, failure error, args Args) {
	decision, err := callCompensate(step.Compensate, sc, failure, args)
	if err != nil {
		err = &CompensationError{Step: step.Name, Failure: failure, Err: err}
	}
	r.done <- completion{
		kind:     compensationFinished,
		step:     i,
		attempt:  sc.attempt,
		decision: decision,
		err:      err,
	}
}

func (r *run) applyDecision(i, attempt int, requested Decision, compErr error) {
	step := r.wf.steps[i]
	res := r.results[i]

	v := r.comp.resolve(step, attempt, requested, compErr)
	if v.cause == nil {
		v.cause = res.Err
	}
	// Once aborted nothing is scheduled again, but skip and continue
	// still settle the step.
	if r.aborted && v.decision.Kind == DecisionRetry {
		v = verdict{decision: Abort(), cause: v.cause}
	}
	if compErr != nil {
		res.Err = compErr
		res.Error = compErr.Error()
	}

	ev := r.event(i, attempt)
	ev.Err = res.Err
	ev.Decision = v.decision
	r.pipeline.notify(r.ctx, hookCompensate, ev)
	r.log.InfoContext(r.ctx, "compensation resolved",
		"step", res.Step,
		"attempt", attempt,
		"requested", requested.String(),
		"decision", v.decision.String(),
		"exhausted", v.exhausted,
	)

	switch v.decision.Kind {
	case DecisionRetry:
		if v.delay <= 0 {
			r.markReady(i)
			return
		}
		r.timers++
		go r.waitRetry(i, v.delay)
	case DecisionSkip:
		r.skip(i)
	case DecisionContinue:
		r.succeed(i, attempt, v.decision.Value, 0, true)
	default:
		r.fail(i)
		r.abort(v.cause, false)
	}
}

func (r *run) waitRetry(i int, delay time.Duration) {
	t := time.NewTimer(delay)
	defer t.Stop()

	select {
	case <-t.C:
	case <-r.stop:
	}
	r.done <- completion{kind: retryDue, step: i}
}

func (r *run) markReady(i int) {
	r.states[i] = StateReady
	r.ready = append(r.ready, i)
}

func (r *run) succeed(i, attempt int, value any, d time.Duration, continued bool) {
	r.states[i] = StateSucceeded
	r.values[i] = value

	res := r.results[i]
	res.Success = true
	res.Value = value
	res.Continued = continued
	res.Err = nil
	res.Error = ""

	ev := r.event(i, attempt)
	ev.Value = value
	ev.Duration = d
	r.pipeline.notify(r.ctx, hookComplete, ev)
	r.log.DebugContext(r.ctx, "step succeeded", "step", res.Step, "attempt", attempt, "continued", continued)

	r.release(i)
}

func (r *run) skip(i int) {
	fallback := r.wf.steps[i].Fallback
	r.states[i] = StateSkipped
	r.values[i] = fallback
	r.results[i].Value = fallback
	r.release(i)
}

func (r *run) fail(i int) {
	r.states[i] = StateFailed
	r.results[i].Success = false
}

// release unblocks dependents of a step that succeeded or was skipped.
func (r *run) release(i int) {
	if r.aborted {
		return
	}
	for _, j := range r.plan.Dependents(i) {
		if !r.plan.Required(j) {
			continue
		}
		r.waiting[j]--
		if r.waiting[j] == 0 && r.states[j] == StatePending {
			r.markReady(j)
		}
	}
}

func (r *run) abort(cause error, cancelled bool) {
	if r.aborted {
		return
	}
	r.aborted = true
	r.cancelled = cancelled
	r.cause = cause
	close(r.stop)

	for _, i := range r.ready {
		r.states[i] = StatePending
	}
	r.ready = nil

	r.log.WarnContext(r.ctx, "run aborted", "cause", cause, "cancelled", cancelled, "in_flight", r.inflight)
}

func (r *run) event(i, attempt int) Event {
	return Event{
		RunID:    r.id,
		Workflow: r.wf.name,
		Step:     r.plan.Name(i),
		Attempt:  attempt,
		State:    r.states[i],
		Time:     time.Now(),
	}
}

func (r *run) finish(status RunStatus, cause error, report *RollbackReport) *ExecutionResult {
	result := &ExecutionResult{
		RunID:       r.id,
		Workflow:    r.wf.name,
		Status:      status,
		StepResults: make(map[string]*StepResult, r.required),
		Duration:    time.Since(r.start),
		Rollback:    report,
		Err:         cause,
	}
	for i, res := range r.results {
		if res == nil {
			continue
		}
		res.State = r.states[i]
		result.StepResults[res.Step] = res
	}
	if status == StatusCompleted {
		result.ReturnValue = r.values[r.plan.Return()]
	}

	ctx := context.WithoutCancel(r.ctx)
	r.pipeline.runFinished(ctx, result)

	args := []any{"status", status.String(), "duration", result.Duration}
	if cause != nil {
		args = append(args, "error", cause)
	}
	if report != nil {
		args = append(args, "undone", len(report.Undone), "undo_errors", len(report.Errors))
	}
	r.log.InfoContext(ctx, "run finished", args...)
	return result
}

func copyArgs(args Args) Args {
	clone := make(Args, len(args))
	for k, v := range args {
		clone[k] = v
	}
	return clone
}

func callRun(fn RunFunc, sc *StepContext, args Args) (value any, err error) {
	defer func() {
		if p := recover(); p != nil {
			value, err = nil, &PanicError{Value: p}
		}
	}()
	return fn(sc, args)
}

func callCompensate(fn CompensateFunc, sc *StepContext, failure error, args Args) (decision Decision, err error) {
	defer func() {
		if p := recover(); p != nil {
			decision, err = Abort(), &PanicError{Value: p}
		}
	}()
	return fn(sc, failure, args)
}

func callUndo(fn UndoFunc, sc *StepContext, value any, args Args) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{Value: p}
		}
	}()
	return fn(sc, value, args)
}
