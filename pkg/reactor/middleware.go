package reactor

import (
	"context"
	"fmt"
	"time"

	"github.com/goclaw/reactor/pkg/logger"
)

// Event is a read-only snapshot of one step transition.
type Event struct {
	RunID    string
	Workflow string
	Step     string
	Attempt  int
	State    StepState
	Duration time.Duration
	Value    any
	Err      error
	Decision Decision
	Time     time.Time
}

// Observer receives step lifecycle notifications. Every method is called
// synchronously from the run's control loop, so implementations should
// return quickly.
type Observer interface {
	OnDispatch(ctx context.Context, ev Event)
	OnStepComplete(ctx context.Context, ev Event)
	OnStepError(ctx context.Context, ev Event)
	OnCompensate(ctx context.Context, ev Event)
	OnUndo(ctx context.Context, ev Event)
}

// RunObserver is optionally implemented by observers that also track run
// boundaries.
type RunObserver interface {
	OnRunStart(ctx context.Context, runID, workflow string)
	OnRunFinish(ctx context.Context, result *ExecutionResult)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Dispatch     func(ctx context.Context, ev Event)
	StepComplete func(ctx context.Context, ev Event)
	StepError    func(ctx context.Context, ev Event)
	Compensated  func(ctx context.Context, ev Event)
	Undone       func(ctx context.Context, ev Event)
}

func (f ObserverFuncs) OnDispatch(ctx context.Context, ev Event) {
	if f.Dispatch != nil {
		f.Dispatch(ctx, ev)
	}
}

func (f ObserverFuncs) OnStepComplete(ctx context.Context, ev Event) {
	if f.StepComplete != nil {
		f.StepComplete(ctx, ev)
	}
}

func (f ObserverFuncs) OnStepError(ctx context.Context, ev Event) {
	if f.StepError != nil {
		f.StepError(ctx, ev)
	}
}

func (f ObserverFuncs) OnCompensate(ctx context.Context, ev Event) {
	if f.Compensated != nil {
		f.Compensated(ctx, ev)
	}
}

func (f ObserverFuncs) OnUndo(ctx context.Context, ev Event) {
	if f.Undone != nil {
		f.Undone(ctx, ev)
	}
}

type hook int

const (
	hookDispatch hook = iota
	hookComplete
	hookError
	hookCompensate
	hookUndo
)

func (h hook) String() string {
	switch h {
	case hookDispatch:
		return "OnDispatch"
	case hookComplete:
		return "OnStepComplete"
	case hookError:
		return "OnStepError"
	case hookCompensate:
		return "OnCompensate"
	case hookUndo:
		return "OnUndo"
	default:
		return "unknown"
	}
}

// Pipeline is an ordered list of observers. A panicking observer is
// logged and skipped; it never affects the run.
type Pipeline struct {
	observers []Observer
	logger    logger.Logger
}

// NewPipeline creates a pipeline that logs observer failures to log.
func NewPipeline(log logger.Logger, observers ...Observer) *Pipeline {
	if log == nil {
		log = logger.Global()
	}
	p := &Pipeline{logger: log}
	p.Use(observers...)
	return p
}

// Use appends observers in order.
func (p *Pipeline) Use(observers ...Observer) {
	for _, obs := range observers {
		if obs != nil {
			p.observers = append(p.observers, obs)
		}
	}
}

// Len returns the number of registered observers.
func (p *Pipeline) Len() int {
	return len(p.observers)
}

func (p *Pipeline) clone() *Pipeline {
	return &Pipeline{
		observers: append([]Observer(nil), p.observers...),
		logger:    p.logger,
	}
}

func (p *Pipeline) notify(ctx context.Context, h hook, ev Event) {
	for i, obs := range p.observers {
		p.call(ctx, i, h.String(), func() {
			switch h {
			case hookDispatch:
				obs.OnDispatch(ctx, ev)
			case hookComplete:
				obs.OnStepComplete(ctx, ev)
			case hookError:
				obs.OnStepError(ctx, ev)
			case hookCompensate:
				obs.OnCompensate(ctx, ev)
			case hookUndo:
				obs.OnUndo(ctx, ev)
			}
		})
	}
}

func (p *Pipeline) runStarted(ctx context.Context, runID, workflow string) {
	for i, obs := range p.observers {
		if ro, ok := obs.(RunObserver); ok {
			p.call(ctx, i, "OnRunStart", func() { ro.OnRunStart(ctx, runID, workflow) })
		}
	}
}

func (p *Pipeline) runFinished(ctx context.Context, result *ExecutionResult) {
	for i, obs := range p.observers {
		if ro, ok := obs.(RunObserver); ok {
			p.call(ctx, i, "OnRunFinish", func() { ro.OnRunFinish(ctx, result) })
		}
	}
}

func (p *Pipeline) call(ctx context.Context, index int, method string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WarnContext(ctx, "observer panicked",
				"observer", fmt.Sprintf("%T", p.observers[index]),
				"index", index,
				"method", method,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	fn()
}
