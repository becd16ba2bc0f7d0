package ledger

import (
	"context"
	"time"

	"github.com/goclaw/reactor/pkg/logger"
	"github.com/goclaw/reactor/pkg/metrics"
	"github.com/goclaw/reactor/pkg/reactor"
)

// Observer writes a claim when a step is dispatched and a record for each
// later transition. Write failures are logged and counted, never surfaced
// to the run.
type Observer struct {
	ledger  Ledger
	role    string
	log     logger.Logger
	metrics *metrics.Manager
	now     func() time.Time
}

// ObserverOption configures an Observer.
type ObserverOption func(*Observer)

// WithObserverLogger sets the logger used for write failures.
func WithObserverLogger(log logger.Logger) ObserverOption {
	return func(o *Observer) {
		if log != nil {
			o.log = log
		}
	}
}

// WithObserverMetrics counts write failures.
func WithObserverMetrics(m *metrics.Manager) ObserverOption {
	return func(o *Observer) {
		o.metrics = m
	}
}

// NewObserver creates an observer writing to l. Entry roles are
// "<role>.<step>".
func NewObserver(l Ledger, role string, opts ...ObserverOption) *Observer {
	o := &Observer{
		ledger: l,
		role:   role,
		log:    logger.Global(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

var _ reactor.Observer = (*Observer)(nil)

func (o *Observer) OnDispatch(ctx context.Context, ev reactor.Event) {
	o.record(ctx, ev, StatusActive)
}

func (o *Observer) OnStepComplete(ctx context.Context, ev reactor.Event) {
	o.record(ctx, ev, StatusComplete)
}

func (o *Observer) OnStepError(ctx context.Context, ev reactor.Event) {
	o.record(ctx, ev, StatusFailed)
}

// OnCompensate records skips. Retries and aborts are already covered by
// the failed record, and continue produces a complete record.
func (o *Observer) OnCompensate(ctx context.Context, ev reactor.Event) {
	if ev.Decision.Kind == reactor.DecisionSkip {
		o.record(ctx, ev, StatusSkipped)
	}
}

func (o *Observer) OnUndo(ctx context.Context, ev reactor.Event) {
	if ev.Err != nil {
		o.record(ctx, ev, StatusUndoFailed)
		return
	}
	o.record(ctx, ev, StatusUndone)
}

func (o *Observer) roleFor(step string) string {
	if o.role == "" {
		return step
	}
	return o.role + "." + step
}

func (o *Observer) record(ctx context.Context, ev reactor.Event, status string) {
	entry := Entry{
		Timestamp: o.now(),
		Role:      o.roleFor(ev.Step),
		Session:   ev.RunID,
		Status:    status,
	}
	if err := o.ledger.Append(context.WithoutCancel(ctx), entry); err != nil {
		o.metrics.RecordLedgerWriteError()
		o.log.WarnContext(ctx, "ledger write failed",
			"run_id", ev.RunID,
			"step", ev.Step,
			"status", status,
			"error", err,
		)
	}
}
