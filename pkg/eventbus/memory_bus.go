package eventbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrBusClosed is returned by operations on a closed bus.
var ErrBusClosed = errors.New("eventbus: bus closed")

// Message is a delivered event-bus message.
type Message struct {
	Subject   string
	Payload   []byte
	Timestamp time.Time
}

// Subscription is one pattern subscription on a MemoryBus.
type Subscription struct {
	pattern string
	ch      chan Message
	bus     *MemoryBus
	dropped atomic.Int64
	once    sync.Once
}

// C returns the read-only message channel. It is closed by Close.
func (s *Subscription) C() <-chan Message {
	return s.ch
}

// Pattern returns the subject pattern of the subscription.
func (s *Subscription) Pattern() string {
	return s.pattern
}

// Dropped returns the number of messages discarded because the
// subscriber's buffer was full.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Close removes the subscription and closes its channel.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.bus.unsubscribe(s)
	})
	return nil
}

// MemoryBus is an in-process pub/sub transport. Publishing never blocks:
// a subscriber whose buffer is full misses the message.
type MemoryBus struct {
	mu          sync.RWMutex
	subscribers map[string][]*Subscription
	closed      bool
}

// NewMemoryBus creates an in-memory event bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subscribers: make(map[string][]*Subscription),
	}
}

// Publish publishes to all matching subscriptions.
func (b *MemoryBus) Publish(ctx context.Context, subject string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if subject == "" {
		return fmt.Errorf("eventbus: subject cannot be empty")
	}

	msg := Message{
		Subject:   subject,
		Payload:   append([]byte(nil), payload...),
		Timestamp: time.Now().UTC(),
	}

	// Sends happen under the read lock so Close cannot close a channel
	// mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	for pattern, subs := range b.subscribers {
		if !subjectMatches(pattern, subject) {
			continue
		}
		for _, sub := range subs {
			select {
			case sub.ch <- msg:
			default:
				sub.dropped.Add(1)
			}
		}
	}
	return nil
}

// Subscribe subscribes by subject pattern. Patterns support exact
// subjects, "*" for one segment and a trailing ".>" for any suffix.
func (b *MemoryBus) Subscribe(pattern string, buffer int) (*Subscription, error) {
	if pattern == "" {
		return nil, fmt.Errorf("eventbus: subscription pattern cannot be empty")
	}
	if buffer <= 0 {
		buffer = 32
	}
	sub := &Subscription{
		pattern: pattern,
		ch:      make(chan Message, buffer),
		bus:     b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}
	b.subscribers[pattern] = append(b.subscribers[pattern], sub)
	return sub, nil
}

// Subscribers returns the number of live subscriptions.
func (b *MemoryBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, subs := range b.subscribers {
		n += len(subs)
	}
	return n
}

// Close closes every subscription. Later publishes fail with ErrBusClosed.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, subs := range b.subscribers {
		for _, sub := range subs {
			sub.once.Do(func() { close(sub.ch) })
		}
	}
	b.subscribers = nil
	return nil
}

func (b *MemoryBus) unsubscribe(target *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	close(target.ch)
	if b.closed {
		return
	}

	subs := b.subscribers[target.pattern]
	filtered := subs[:0]
	for _, sub := range subs {
		if sub != target {
			filtered = append(filtered, sub)
		}
	}
	if len(filtered) == 0 {
		delete(b.subscribers, target.pattern)
		return
	}
	b.subscribers[target.pattern] = filtered
}

// subjectMatches supports exact, "*" segment, and ">" suffix wildcards.
func subjectMatches(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	if pattern == ">" {
		return true
	}
	if strings.HasSuffix(pattern, ".>") {
		prefix := strings.TrimSuffix(pattern, ".>")
		return subject == prefix || strings.HasPrefix(subject, prefix+".")
	}

	patternParts := strings.Split(pattern, ".")
	subjectParts := strings.Split(subject, ".")
	if len(patternParts) != len(subjectParts) {
		return false
	}
	for i := range patternParts {
		if patternParts[i] == "*" {
			continue
		}
		if patternParts[i] != subjectParts[i] {
			return false
		}
	}
	return true
}
