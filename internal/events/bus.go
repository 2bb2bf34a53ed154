package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// EventBus distributes job events to subscribers with filtering support.
//
// Thread safety:
//   - All methods are safe for concurrent use.
//   - Publish never blocks on slow subscribers.
//
// Slow consumer handling:
//   - Subscribers receive events through buffered channels.
//   - When a subscriber's buffer is full, events are dropped for that
//     subscriber only; other subscribers are unaffected.
//   - Dropped events are reported through the error handler.
type EventBus interface {
	// Publish sends an event to all matching subscribers. It returns an
	// error only when the bus is closed.
	Publish(ctx context.Context, event Event) error

	// Subscribe creates a subscription with optional filtering. The cleanup
	// function must be called to release the subscription. bufferSize 0
	// selects the bus default.
	Subscribe(ctx context.Context, filter Filter, bufferSize int) (<-chan Event, func())

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// DefaultEventBus implements EventBus with buffered channels and
// non-blocking sends.
type DefaultEventBus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscription
	options     *eventBusOptions
	closed      bool
}

type subscription struct {
	id       string
	ch       chan Event
	filter   Filter
	ctx      context.Context
	cancel   context.CancelFunc
	created  time.Time
	received atomic.Int64
	dropped  atomic.Int64
}

type eventBusOptions struct {
	defaultBufferSize int
	errorHandler      ErrorHandler
}

// ErrorHandler is called when the bus drops an event or hits an internal
// error. Common use: logging dropped events for slow subscribers.
type ErrorHandler func(err error, context map[string]any)

// Option is a functional option for configuring DefaultEventBus.
type Option func(*eventBusOptions)

// WithDefaultBufferSize sets the buffer size used when Subscribe is called
// with bufferSize 0. Default: 100 events.
func WithDefaultBufferSize(size int) Option {
	return func(opts *eventBusOptions) {
		if size > 0 {
			opts.defaultBufferSize = size
		}
	}
}

// WithErrorHandler sets the handler invoked for dropped events.
func WithErrorHandler(handler ErrorHandler) Option {
	return func(opts *eventBusOptions) {
		if handler != nil {
			opts.errorHandler = handler
		}
	}
}

// NewEventBus creates a bus with the given options.
func NewEventBus(opts ...Option) *DefaultEventBus {
	options := &eventBusOptions{
		defaultBufferSize: 100,
		errorHandler:      func(error, map[string]any) {},
	}
	for _, opt := range opts {
		opt(options)
	}

	return &DefaultEventBus{
		subscribers: make(map[string]*subscription),
		options:     options,
	}
}

// Publish sends the event to every subscriber whose filter matches. A full
// subscriber buffer drops the event for that subscriber without blocking
// the publisher.
func (eb *DefaultEventBus) Publish(ctx context.Context, event Event) error {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return fmt.Errorf("event bus is closed")
	}

	for _, sub := range eb.subscribers {
		select {
		case <-sub.ctx.Done():
			continue
		default:
		}

		if !sub.filter.Matches(event) {
			continue
		}

		select {
		case sub.ch <- event:
			sub.received.Add(1)
		case <-ctx.Done():
			return ctx.Err()
		default:
			sub.dropped.Add(1)
			eb.options.errorHandler(
				fmt.Errorf("dropped event for slow subscriber"),
				map[string]any{
					"subscriber_id": sub.id,
					"event_type":    event.Type,
					"job_id":        event.JobID,
					"sequence":      event.Sequence,
				},
			)
		}
	}

	return nil
}

// Subscribe creates a subscription. The returned channel receives matching
// events until cleanup is called or the bus closes.
func (eb *DefaultEventBus) Subscribe(ctx context.Context, filter Filter, bufferSize int) (<-chan Event, func()) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if bufferSize <= 0 {
		bufferSize = eb.options.defaultBufferSize
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		id:      generateSubscriberID(),
		ch:      make(chan Event, bufferSize),
		filter:  filter,
		ctx:     subCtx,
		cancel:  cancel,
		created: time.Now(),
	}
	eb.subscribers[sub.id] = sub

	cleanup := func() {
		eb.unsubscribe(sub.id)
	}
	return sub.ch, cleanup
}

func (eb *DefaultEventBus) unsubscribe(subscriberID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	sub, exists := eb.subscribers[subscriberID]
	if !exists {
		return
	}

	sub.cancel()
	close(sub.ch)
	delete(eb.subscribers, subscriberID)
}

// Close shuts down the bus and closes all subscriber channels. Idempotent.
func (eb *DefaultEventBus) Close() error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return nil
	}
	eb.closed = true

	for id, sub := range eb.subscribers {
		sub.cancel()
		close(sub.ch)
		delete(eb.subscribers, id)
	}
	return nil
}

// SubscriberCount returns the current number of active subscribers.
func (eb *DefaultEventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}

var (
	subscriberCounter uint64
	subscriberMutex   sync.Mutex
)

func generateSubscriberID() string {
	subscriberMutex.Lock()
	defer subscriberMutex.Unlock()
	subscriberCounter++
	return fmt.Sprintf("sub-%d-%d", time.Now().UnixNano(), subscriberCounter)
}

// Ensure DefaultEventBus implements EventBus at compile time.
var _ EventBus = (*DefaultEventBus)(nil)
