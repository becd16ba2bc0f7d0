package reactor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/goclaw/reactor/pkg/logger"
)

// Executor runs workflows. It holds configuration and middleware only; all
// per-run state lives in the run owned by a single Execute call, so one
// Executor may serve concurrent runs.
type Executor struct {
	maxConcurrency     int
	timeout            time.Duration
	defaultStepTimeout time.Duration
	defaultBackoff     BackoffPolicy
	logger             logger.Logger
	pipeline           *Pipeline
	pending            []Observer
	newRunID           func() string
}

// NewExecutor creates an executor.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		logger:   logger.Global(),
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.pipeline = NewPipeline(e.logger.With("component", "reactor.middleware"), e.pending...)
	e.pending = nil
	return e
}

// AddMiddleware appends observers. It must be called before Execute; runs
// already in progress keep the observers they started with.
func (e *Executor) AddMiddleware(observers ...Observer) {
	e.pipeline.Use(observers...)
}

// Execute runs wf with the given input values and blocks until the run
// reaches a terminal state. It never returns an error for step failures;
// inspect the result status and step results instead.
func (e *Executor) Execute(ctx context.Context, wf *Workflow, inputs map[string]any, opts ...RunOption) *ExecutionResult {
	cfg := runConfig{
		maxConcurrency: e.maxConcurrency,
		timeout:        e.timeout,
		stepTimeout:    e.defaultStepTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.runID == "" {
		cfg.runID = e.newRunID()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	r := newRun(ctx, e, wf, inputs, cfg)
	return r.execute()
}
