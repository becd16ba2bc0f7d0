package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Transport publishes bytes to a subject.
type Transport interface {
	Publish(ctx context.Context, subject string, payload []byte) error
}

// Telemetry records publish health.
type Telemetry interface {
	RecordPublish(status string)
	RecordRetry()
	SetDegradedMode(active bool)
	RecordOutage()
	RecordRecovery()
}

type nopTelemetry struct{}

func (nopTelemetry) RecordPublish(status string) {}
func (nopTelemetry) RecordRetry()                {}
func (nopTelemetry) SetDegradedMode(active bool) {}
func (nopTelemetry) RecordOutage()               {}
func (nopTelemetry) RecordRecovery()             {}

// RetryConfig controls retry/backoff behavior for publish attempts.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultRetryConfig returns the default retry policy. Publishing happens on
// the executor's control loop, so the budget stays small.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     2,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
		BackoffFactor:  2,
	}
}

// LifecycleEvent is the publish input for one run or step transition.
type LifecycleEvent struct {
	Domain     Domain
	Transition string
	RunID      string
	Workflow   string
	Step       string
	Payload    any
}

// Publisher wraps lifecycle events in envelopes and publishes them with a
// per-run sequence number.
type Publisher struct {
	transport Transport
	source    string
	retry     RetryConfig
	telemetry Telemetry

	mu        sync.Mutex
	sequences map[string]int64
	degraded  bool
}

// NewPublisher creates a lifecycle publisher. source identifies this process
// in every envelope.
func NewPublisher(source string, transport Transport, retry RetryConfig, telemetry Telemetry) (*Publisher, error) {
	if source == "" {
		return nil, fmt.Errorf("eventbus: source cannot be empty")
	}
	if transport == nil {
		return nil, fmt.Errorf("eventbus: transport cannot be nil")
	}
	if retry.MaxRetries < 0 {
		return nil, fmt.Errorf("eventbus: max retries cannot be negative")
	}
	if retry.MaxRetries > 0 && (retry.InitialBackoff <= 0 || retry.MaxBackoff <= 0 || retry.BackoffFactor < 1) {
		return nil, fmt.Errorf("eventbus: invalid retry config")
	}
	if telemetry == nil {
		telemetry = nopTelemetry{}
	}
	return &Publisher{
		transport: transport,
		source:    source,
		retry:     retry,
		telemetry: telemetry,
		sequences: make(map[string]int64),
	}, nil
}

// Publish publishes a lifecycle event with retry/backoff and degraded mode
// tracking.
func (p *Publisher) Publish(ctx context.Context, event LifecycleEvent) (Envelope, error) {
	if err := ctx.Err(); err != nil {
		return Envelope{}, err
	}
	if event.Transition == "" {
		return Envelope{}, fmt.Errorf("eventbus: transition cannot be empty")
	}
	switch event.Domain {
	case DomainRun, DomainStep:
	default:
		return Envelope{}, fmt.Errorf("eventbus: unsupported domain %q", event.Domain)
	}
	if event.RunID == "" {
		return Envelope{}, fmt.Errorf("eventbus: run id cannot be empty")
	}

	envelope, err := BuildEnvelope(BuildEnvelopeInput{
		EventType: string(event.Domain) + "." + event.Transition,
		Source:    p.source,
		RunID:     event.RunID,
		Workflow:  event.Workflow,
		Step:      event.Step,
		Sequence:  p.nextSequence(event.RunID),
		Payload:   event.Payload,
	})
	if err != nil {
		return Envelope{}, err
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return Envelope{}, fmt.Errorf("eventbus: marshal envelope: %w", err)
	}

	subject := Subject(event.Domain, event.Transition)
	backoff := p.retry.InitialBackoff
	var publishErr error
	for attempt := 0; attempt <= p.retry.MaxRetries; attempt++ {
		publishErr = p.transport.Publish(ctx, subject, body)
		if publishErr == nil {
			p.telemetry.RecordPublish("success")
			p.onPublishRecovered()
			return envelope, nil
		}
		if attempt == p.retry.MaxRetries {
			break
		}
		p.telemetry.RecordRetry()
		p.onPublishOutage()

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Envelope{}, ctx.Err()
		case <-timer.C:
		}
		backoff = nextBackoff(backoff, p.retry.MaxBackoff, p.retry.BackoffFactor)
	}

	p.telemetry.RecordPublish("failed")
	p.onPublishOutage()
	return Envelope{}, fmt.Errorf("eventbus: publish %s failed: %w", subject, publishErr)
}

// Forget drops the sequence counter of a finished run.
func (p *Publisher) Forget(runID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sequences, runID)
}

// Degraded reports whether the last publish attempt failed.
func (p *Publisher) Degraded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.degraded
}

func (p *Publisher) nextSequence(runID string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sequences[runID]++
	return p.sequences[runID]
}

func (p *Publisher) onPublishOutage() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.degraded {
		return
	}
	p.degraded = true
	p.telemetry.SetDegradedMode(true)
	p.telemetry.RecordOutage()
}

func (p *Publisher) onPublishRecovered() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.degraded {
		return
	}
	p.degraded = false
	p.telemetry.SetDegradedMode(false)
	p.telemetry.RecordRecovery()
}

func nextBackoff(current, max time.Duration, factor float64) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		return max
	}
	return next
}
