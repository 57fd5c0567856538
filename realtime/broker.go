package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/sourcemarket/sourcemarket-api/logger"
)

// ErrBrokerClosed is returned by brokers after Close
var ErrBrokerClosed = errors.New("realtime broker closed")

// DefaultBuffer is the per-subscription event buffer
const DefaultBuffer = 64

// Broker fans change events out to subscribers of a table
type Broker interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, table string) (*Subscription, error)
	Close() error
}

// Subscription is one listener on one table. It must be closed by its owner;
// it is also closed when the context passed to Subscribe ends.
type Subscription struct {
	Table string

	events  chan Event
	done    chan struct{}
	once    sync.Once
	release func()
}

func newSubscription(table string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Subscription{
		Table:  table,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
}

// Events delivers the table's changes until the subscription is closed
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Done is closed once the subscription has been released
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close releases the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		if s.release != nil {
			s.release()
		}
	})
}

// closeWith ends the subscription when ctx is cancelled
func (s *Subscription) closeWith(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
}

// MemoryBroker delivers events to subscribers of the same process
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	closed bool
}

// NewMemoryBroker creates an in-process broker
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: DefaultBuffer,
	}
}

// Publish delivers event to every current subscriber of its table. A
// subscriber whose buffer is full misses the event; publishing never blocks.
func (b *MemoryBroker) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBrokerClosed
	}
	for sub := range b.subs[event.Table] {
		select {
		case sub.events <- event:
		default:
			logger.Warn("realtime subscriber is full, dropping event",
				"table", event.Table, "event_id", event.ID, "row_id", event.RowID)
		}
	}
	return nil
}

// Subscribe registers a listener on table
func (b *MemoryBroker) Subscribe(ctx context.Context, table string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBrokerClosed
	}

	sub := newSubscription(table, b.buffer)
	if b.subs[table] == nil {
		b.subs[table] = make(map[*Subscription]struct{})
	}
	b.subs[table][sub] = struct{}{}

	// Removal and close happen under the write lock so Publish never sends
	// on a closed channel
	sub.release = func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[table][sub]; ok {
			delete(b.subs[table], sub)
			close(sub.events)
		}
	}
	sub.closeWith(ctx)
	return sub, nil
}

// SubscriberCount returns the number of open subscriptions on table
func (b *MemoryBroker) SubscriberCount(table string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[table])
}

// Close ends every subscription and rejects further use
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*Subscription
	for _, set := range b.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range all {
		sub.Close()
	}
	return nil
}
