package observe

import (
	"context"

	"github.com/goclaw/reactor/pkg/logger"
	"github.com/goclaw/reactor/pkg/reactor"
)

// Logging writes one structured record per lifecycle transition.
type Logging struct {
	log logger.Logger
}

// NewLogging creates a logging observer. A nil logger uses the global one.
func NewLogging(log logger.Logger) *Logging {
	if log == nil {
		log = logger.Global()
	}
	return &Logging{log: log.With("component", "observer")}
}

var (
	_ reactor.Observer    = (*Logging)(nil)
	_ reactor.RunObserver = (*Logging)(nil)
)

func (l *Logging) OnRunStart(ctx context.Context, runID, workflow string) {
	l.log.InfoContext(ctx, "run started", "run_id", runID, "workflow", workflow)
}

func (l *Logging) OnRunFinish(ctx context.Context, result *reactor.ExecutionResult) {
	args := []any{
		"run_id", result.RunID,
		"workflow", result.Workflow,
		"status", result.Status.String(),
		"duration", result.Duration,
		"steps", len(result.StepResults),
	}
	if result.Err != nil {
		args = append(args, "error", result.Err)
		l.log.WarnContext(ctx, "run ended", args...)
		return
	}
	l.log.InfoContext(ctx, "run ended", args...)
}

func (l *Logging) OnDispatch(ctx context.Context, ev reactor.Event) {
	l.log.DebugContext(ctx, "step dispatched", eventArgs(ev)...)
}

func (l *Logging) OnStepComplete(ctx context.Context, ev reactor.Event) {
	l.log.InfoContext(ctx, "step completed", append(eventArgs(ev), "duration", ev.Duration)...)
}

func (l *Logging) OnStepError(ctx context.Context, ev reactor.Event) {
	l.log.WarnContext(ctx, "step errored", append(eventArgs(ev), "duration", ev.Duration, "error", ev.Err)...)
}

func (l *Logging) OnCompensate(ctx context.Context, ev reactor.Event) {
	l.log.InfoContext(ctx, "step compensated", append(eventArgs(ev), "decision", ev.Decision.String())...)
}

func (l *Logging) OnUndo(ctx context.Context, ev reactor.Event) {
	if ev.Err != nil {
		l.log.ErrorContext(ctx, "step undo failed", append(eventArgs(ev), "error", ev.Err)...)
		return
	}
	l.log.InfoContext(ctx, "step undone", eventArgs(ev)...)
}

func eventArgs(ev reactor.Event) []any {
	return []any{
		"run_id", ev.RunID,
		"workflow", ev.Workflow,
		"step", ev.Step,
		"attempt", ev.Attempt,
		"state", ev.State.String(),
	}
}
