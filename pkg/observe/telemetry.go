// Package observe provides executor observers that export step lifecycle
// transitions to tracing, metrics and logs.
package observe

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/goclaw/reactor/pkg/metrics"
	"github.com/goclaw/reactor/pkg/reactor"
	"github.com/goclaw/reactor/pkg/telemetry/tracing"
)

// Step attempt outcomes recorded in metrics.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
	OutcomeUndone    = "undone"
)

type attemptKey struct {
	runID string
	step  string
}

// Telemetry opens a span for every run and every step attempt and records
// the matching Prometheus metrics. One Telemetry may observe many
// concurrent runs.
type Telemetry struct {
	metrics *metrics.Manager

	mu       sync.Mutex
	runs     map[string]trace.Span
	attempts map[attemptKey]trace.Span
}

// NewTelemetry creates a telemetry observer. A nil manager disables metrics.
func NewTelemetry(m *metrics.Manager) *Telemetry {
	return &Telemetry{
		metrics:  m,
		runs:     make(map[string]trace.Span),
		attempts: make(map[attemptKey]trace.Span),
	}
}

var (
	_ reactor.Observer    = (*Telemetry)(nil)
	_ reactor.RunObserver = (*Telemetry)(nil)
)

func (t *Telemetry) OnRunStart(ctx context.Context, runID, workflow string) {
	_, span := tracing.StartRun(ctx, runID, workflow)

	t.mu.Lock()
	t.runs[runID] = span
	t.mu.Unlock()

	t.metrics.IncActiveRuns()
}

func (t *Telemetry) OnRunFinish(ctx context.Context, result *reactor.ExecutionResult) {
	t.mu.Lock()
	span, ok := t.runs[result.RunID]
	delete(t.runs, result.RunID)
	for k, s := range t.attempts {
		if k.runID == result.RunID {
			// Attempts still open here were abandoned by a cancelled run.
			tracing.End(s, reactor.StateFailed.String(), result.Err)
			delete(t.attempts, k)
		}
	}
	t.mu.Unlock()

	if ok {
		if result.Rollback != nil {
			span.SetAttributes(
				attribute.Int("reactor.rollback.undone", len(result.Rollback.Undone)),
				attribute.Int("reactor.rollback.errors", len(result.Rollback.Errors)),
			)
		}
		tracing.End(span, result.Status.String(), result.Err)
	}

	t.metrics.DecActiveRuns()
	t.metrics.RecordRun(result.Workflow, result.Status.String(), result.Duration)
}

func (t *Telemetry) OnDispatch(ctx context.Context, ev reactor.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if run, ok := t.runs[ev.RunID]; ok {
		ctx = trace.ContextWithSpan(ctx, run)
	}
	_, span := tracing.StartAttempt(ctx, ev.RunID, ev.Workflow, ev.Step, ev.Attempt)
	t.attempts[attemptKey{ev.RunID, ev.Step}] = span

	t.metrics.RecordStepDispatch(ev.Workflow, ev.Step)
}

func (t *Telemetry) OnStepComplete(ctx context.Context, ev reactor.Event) {
	// A continue decision completes a step without a running attempt.
	span, ok := t.takeAttempt(ev)
	if !ok {
		return
	}
	t.metrics.RecordStepOutcome(trace.ContextWithSpan(ctx, span), ev.Workflow, ev.Step, OutcomeSucceeded, ev.Duration)
	tracing.End(span, ev.State.String(), nil)
}

func (t *Telemetry) OnStepError(ctx context.Context, ev reactor.Event) {
	span, ok := t.takeAttempt(ev)
	if !ok {
		return
	}
	outcome := OutcomeFailed
	var execErr *reactor.StepExecutionError
	if errors.As(ev.Err, &execErr) && execErr.Timeout() {
		outcome = OutcomeTimeout
	}
	t.metrics.RecordStepOutcome(trace.ContextWithSpan(ctx, span), ev.Workflow, ev.Step, outcome, ev.Duration)
	tracing.End(span, ev.State.String(), ev.Err)
}

func (t *Telemetry) OnCompensate(ctx context.Context, ev reactor.Event) {
	t.metrics.RecordCompensation(ev.Workflow, ev.Decision.Kind.String())
	t.runEvent(ev.RunID, "compensation",
		tracing.AttrStep.String(ev.Step),
		tracing.AttrAttempt.Int(ev.Attempt),
		attribute.String("reactor.decision", ev.Decision.String()),
	)
}

func (t *Telemetry) OnUndo(ctx context.Context, ev reactor.Event) {
	outcome := OutcomeUndone
	if ev.Err != nil {
		outcome = OutcomeFailed
	}
	t.metrics.RecordUndo(ev.Workflow, outcome)
	t.runEvent(ev.RunID, "undo",
		tracing.AttrStep.String(ev.Step),
		attribute.String("reactor.outcome", outcome),
	)
}

func (t *Telemetry) takeAttempt(ev reactor.Event) (trace.Span, bool) {
	key := attemptKey{ev.RunID, ev.Step}
	t.mu.Lock()
	defer t.mu.Unlock()
	span, ok := t.attempts[key]
	delete(t.attempts, key)
	return span, ok
}

func (t *Telemetry) runEvent(runID, name string, attrs ...attribute.KeyValue) {
	t.mu.Lock()
	span, ok := t.runs[runID]
	t.mu.Unlock()
	if ok {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}
