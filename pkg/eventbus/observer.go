package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/goclaw/reactor/pkg/logger"
	"github.com/goclaw/reactor/pkg/reactor"
)

// StepPayload is the payload of step.* envelopes.
type StepPayload struct {
	Attempt    int     `json:"attempt"`
	State      string  `json:"state"`
	DurationMS float64 `json:"duration_ms,omitempty"`
	Error      string  `json:"error,omitempty"`
	Decision   string  `json:"decision,omitempty"`
	Value      any     `json:"value,omitempty"`
}

// RunPayload is the payload of run.* envelopes.
type RunPayload struct {
	Status      string   `json:"status,omitempty"`
	DurationMS  float64  `json:"duration_ms,omitempty"`
	Error       string   `json:"error,omitempty"`
	ReturnValue any      `json:"return_value,omitempty"`
	Undone      []string `json:"undone,omitempty"`
	UndoErrors  int      `json:"undo_errors,omitempty"`
}

// BusObserver publishes executor lifecycle transitions as envelopes.
// Publish failures are logged and never affect the run.
type BusObserver struct {
	publisher *Publisher
	log       logger.Logger
}

// NewBusObserver creates an observer publishing through p.
func NewBusObserver(p *Publisher, log logger.Logger) *BusObserver {
	if log == nil {
		log = logger.Global()
	}
	return &BusObserver{publisher: p, log: log}
}

var (
	_ reactor.Observer    = (*BusObserver)(nil)
	_ reactor.RunObserver = (*BusObserver)(nil)
)

func (o *BusObserver) OnRunStart(ctx context.Context, runID, workflow string) {
	o.publish(ctx, LifecycleEvent{
		Domain:     DomainRun,
		Transition: TransitionStarted,
		RunID:      runID,
		Workflow:   workflow,
		Payload:    RunPayload{},
	})
}

func (o *BusObserver) OnRunFinish(ctx context.Context, result *reactor.ExecutionResult) {
	payload := RunPayload{
		Status:      result.Status.String(),
		DurationMS:  millis(result),
		ReturnValue: jsonSafe(result.ReturnValue),
	}
	if result.Err != nil {
		payload.Error = result.Err.Error()
	}
	if result.Rollback != nil {
		payload.Undone = result.Rollback.Undone
		payload.UndoErrors = len(result.Rollback.Errors)
	}
	o.publish(ctx, LifecycleEvent{
		Domain:     DomainRun,
		Transition: TransitionFinished,
		RunID:      result.RunID,
		Workflow:   result.Workflow,
		Payload:    payload,
	})
	o.publisher.Forget(result.RunID)
}

func (o *BusObserver) OnDispatch(ctx context.Context, ev reactor.Event) {
	o.publishStep(ctx, TransitionDispatched, ev)
}

func (o *BusObserver) OnStepComplete(ctx context.Context, ev reactor.Event) {
	o.publishStep(ctx, TransitionCompleted, ev)
}

func (o *BusObserver) OnStepError(ctx context.Context, ev reactor.Event) {
	o.publishStep(ctx, TransitionErrored, ev)
}

func (o *BusObserver) OnCompensate(ctx context.Context, ev reactor.Event) {
	o.publishStep(ctx, TransitionCompensated, ev)
}

func (o *BusObserver) OnUndo(ctx context.Context, ev reactor.Event) {
	if ev.Err != nil {
		o.publishStep(ctx, TransitionUndoFailed, ev)
		return
	}
	o.publishStep(ctx, TransitionUndone, ev)
}

func (o *BusObserver) publishStep(ctx context.Context, transition string, ev reactor.Event) {
	payload := StepPayload{
		Attempt:    ev.Attempt,
		State:      ev.State.String(),
		DurationMS: float64(ev.Duration.Microseconds()) / 1000,
		Value:      jsonSafe(ev.Value),
	}
	if ev.Err != nil {
		payload.Error = ev.Err.Error()
	}
	if transition == TransitionCompensated {
		payload.Decision = ev.Decision.String()
	}
	o.publish(ctx, LifecycleEvent{
		Domain:     DomainStep,
		Transition: transition,
		RunID:      ev.RunID,
		Workflow:   ev.Workflow,
		Step:       ev.Step,
		Payload:    payload,
	})
}

func (o *BusObserver) publish(ctx context.Context, event LifecycleEvent) {
	// Transitions after cancellation are still worth publishing.
	ctx = context.WithoutCancel(ctx)
	if _, err := o.publisher.Publish(ctx, event); err != nil {
		o.log.WarnContext(ctx, "lifecycle event dropped",
			"run_id", event.RunID,
			"subject", Subject(event.Domain, event.Transition),
			"error", err,
		)
	}
}

func millis(result *reactor.ExecutionResult) float64 {
	return float64(result.Duration.Microseconds()) / 1000
}

// jsonSafe returns v when it encodes as JSON and its fmt rendering otherwise.
func jsonSafe(v any) any {
	if v == nil {
		return nil
	}
	if _, err := json.Marshal(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return v
}
