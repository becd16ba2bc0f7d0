package eventbus

import (
	"encoding/json"
	"fmt"
	"sync"
)

// DefaultDedupWindow is the number of recent event ids a consumer remembers.
const DefaultDedupWindow = 4096

// EnvelopeConsumer validates envelopes and suppresses duplicate deliveries
// within a bounded window of recent event ids.
type EnvelopeConsumer struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	order  []string
	next   int
	window int
}

// NewEnvelopeConsumer creates a consumer remembering up to window event ids.
// A non-positive window uses DefaultDedupWindow.
func NewEnvelopeConsumer(window int) *EnvelopeConsumer {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &EnvelopeConsumer{
		seen:   make(map[string]struct{}, window),
		order:  make([]string, 0, window),
		window: window,
	}
}

// DecodeAndValidate decodes raw envelope bytes and reports whether the
// envelope was already seen.
func (c *EnvelopeConsumer) DecodeAndValidate(raw []byte) (Envelope, bool, error) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Envelope{}, false, fmt.Errorf("eventbus: invalid envelope json: %w", err)
	}
	if err := envelope.Validate(); err != nil {
		return Envelope{}, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.seen[envelope.EventID]; exists {
		return envelope, true, nil
	}
	c.remember(envelope.EventID)
	return envelope, false, nil
}

// remember evicts the oldest id once the window is full.
func (c *EnvelopeConsumer) remember(id string) {
	if len(c.order) < c.window {
		c.order = append(c.order, id)
	} else {
		delete(c.seen, c.order[c.next])
		c.order[c.next] = id
		c.next = (c.next + 1) % c.window
	}
	c.seen[id] = struct{}{}
}
