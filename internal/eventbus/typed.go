package eventbus

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per subscriber channel capacity.
const DefaultBuffer = 8

// Option configures a bus.
type Option func(*options)

type options struct {
	buffer int
	block  bool
}

// WithBuffer sets the per subscriber channel capacity. A run publishes one
// event per step and per decision, so slow consumers need a larger buffer.
func WithBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.buffer = n
		}
	}
}

// WithBackpressure makes Publish wait for room in a full subscriber buffer
// instead of dropping the event. A publisher blocked on a subscriber is
// released when that subscriber unsubscribes or the bus is closed.
func WithBackpressure() Option {
	return func(o *options) { o.block = true }
}

type subscriber[T any] struct {
	ch   chan T
	quit chan struct{}
	once sync.Once
}

func (s *subscriber[T]) stop() { s.once.Do(func() { close(s.quit) }) }

// TypedBus is a type-safe publish/subscribe bus for events of type T.
type TypedBus[T any] struct {
	mu      sync.RWMutex
	subs    []*subscriber[T]
	index   sync.Map // <-chan T -> *subscriber[T]
	closed  bool
	buffer  int
	block   bool
	dropped atomic.Uint64
}

// NewTyped creates a new TypedBus.
func NewTyped[T any](opts ...Option) *TypedBus[T] {
	o := options{buffer: DefaultBuffer}
	for _, opt := range opts {
		opt(&o)
	}
	return &TypedBus[T]{buffer: o.buffer, block: o.block}
}

// Publish sends the event to all subscribers. Without back-pressure an event
// that does not fit in a subscriber buffer is dropped for that subscriber and
// counted.
func (b *TypedBus[T]) Publish(e T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		select {
		case s.ch <- e:
			continue
		default:
		}
		if !b.block {
			b.dropped.Add(1)
			continue
		}
		select {
		case s.ch <- e:
		case <-s.quit:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were skipped.
func (b *TypedBus[T]) Dropped() uint64 { return b.dropped.Load() }

// Subscribe registers a subscriber and returns its channel.
func (b *TypedBus[T]) Subscribe() <-chan T {
	s := &subscriber[T]{ch: make(chan T, b.buffer), quit: make(chan struct{})}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s.ch
	}
	b.subs = append(b.subs, s)
	b.index.Store((<-chan T)(s.ch), s)
	return s.ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *TypedBus[T]) Unsubscribe(sub <-chan T) {
	// Release blocked publishers before waiting for the write lock.
	if v, ok := b.index.LoadAndDelete(sub); ok {
		v.(*subscriber[T]).stop()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			if !b.closed {
				close(s.ch)
			}
			return
		}
	}
}

// Close closes the bus and all subscriber channels. Events already buffered
// stay readable until each channel is drained.
func (b *TypedBus[T]) Close() {
	b.index.Range(func(_, v any) bool {
		v.(*subscriber[T]).stop()
		return true
	})
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.subs {
		close(s.ch)
		b.index.Delete((<-chan T)(s.ch))
	}
	b.subs = nil
}
