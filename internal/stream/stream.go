// Package stream provides the multicast primitive the bridge publishes
// events through: one producer, many subscribers, each with its own
// buffered channel, plus Map and Filter derivations.
package stream

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber channel capacity used when a
// broker is created with a non-positive buffer size.
const DefaultBuffer = 256

// Broker fans published values out to every active subscriber.
//
// Delivery is per-subscriber FIFO and non-blocking: a subscriber that
// stops draining its channel loses values once its buffer fills, it
// never stalls the producer or its siblings. A broker terminates in
// one of two ways. Close completes every subscription cleanly; Fail
// completes them with a terminal error observable via Err.
type Broker[T any] struct {
	mu      sync.Mutex
	subs    map[int]*subscriber[T]
	nextID  int
	buffer  int
	closed  bool
	err     error
	dropped atomic.Uint64
}

type subscriber[T any] struct {
	ch chan T
}

// Subscription is one subscriber's view of a broker stream. Values
// arrive on C until it closes; after that, Err reports whether the
// stream completed cleanly (nil) or terminated with an error.
type Subscription[T any] struct {
	C      <-chan T
	errfn  func() error
	cancel func()
}

// Err returns the stream's terminal error, or nil before termination
// and after clean completion.
func (s *Subscription[T]) Err() error {
	if s.errfn == nil {
		return nil
	}
	return s.errfn()
}

// Cancel detaches the subscription from its broker. C closes; values
// already buffered remain readable.
func (s *Subscription[T]) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// NewBroker creates a broker whose subscribers each buffer up to
// buffer values. A non-positive buffer selects DefaultBuffer.
func NewBroker[T any](buffer int) *Broker[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	slog.Debug("creating stream broker", "buffer", buffer)
	return &Broker[T]{
		subs:   make(map[int]*subscriber[T]),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber. Subscribing to a terminated
// broker returns an already-completed subscription carrying the
// broker's terminal error, so late subscribers observe termination
// the same way live ones do.
func (b *Broker[T]) Subscribe() *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		slog.Debug("subscribe on terminated broker")
		ch := make(chan T)
		close(ch)
		return &Subscription[T]{C: ch, errfn: b.terminalErr}
	}

	id := b.nextID
	b.nextID++

	sub := &subscriber[T]{ch: make(chan T, b.buffer)}
	b.subs[id] = sub

	slog.Debug("subscriber registered", "subscriber_id", id, "total_subscribers", len(b.subs))

	return &Subscription[T]{
		C:      sub.ch,
		errfn:  b.terminalErr,
		cancel: func() { b.unsubscribe(id) },
	}
}

// Publish delivers v to every active subscriber. A subscriber whose
// buffer is full is skipped and the value counted as dropped.
func (b *Broker[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		slog.Debug("publish on terminated broker, discarding value")
		return
	}

	for id, sub := range b.subs {
		select {
		case sub.ch <- v:
		default:
			b.dropped.Add(1)
			slog.Debug("subscriber buffer full, dropping value",
				"subscriber_id", id,
				"dropped_total", b.dropped.Load())
		}
	}
}

// Fail terminates the stream with err. Every subscription's channel
// closes and Err reports err from then on. Later Publish, Fail, and
// Close calls are no-ops.
func (b *Broker[T]) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	slog.Debug("stream terminating with error", "error", err, "subscribers", len(b.subs))

	b.err = err
	b.terminate()
}

// Close completes the stream cleanly. Every subscription's channel
// closes with Err remaining nil.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	slog.Debug("stream closing", "subscribers", len(b.subs))
	b.terminate()
}

// Dropped returns the number of values discarded because a subscriber
// buffer was full.
func (b *Broker[T]) Dropped() uint64 {
	return b.dropped.Load()
}

// terminate closes every subscriber channel. Caller holds b.mu.
func (b *Broker[T]) terminate() {
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}

func (b *Broker[T]) terminalErr() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *Broker[T]) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return
	}

	delete(b.subs, id)
	close(sub.ch)

	slog.Debug("subscriber cancelled", "subscriber_id", id, "remaining_subscribers", len(b.subs))
}

// Filter derives a subscription carrying only the values of in for
// which keep returns true. Termination and cancellation pass through
// to the underlying subscription.
func Filter[T any](in *Subscription[T], keep func(T) bool) *Subscription[T] {
	out := make(chan T, cap(in.C))

	go func() {
		defer close(out)
		for v := range in.C {
			if keep(v) {
				out <- v
			}
		}
	}()

	return &Subscription[T]{C: out, errfn: in.Err, cancel: in.Cancel}
}

// Map derives a subscription whose values are fn applied to each value
// of in. Termination and cancellation pass through to the underlying
// subscription.
func Map[T, U any](in *Subscription[T], fn func(T) U) *Subscription[U] {
	out := make(chan U, cap(in.C))

	go func() {
		defer close(out)
		for v := range in.C {
			out <- fn(v)
		}
	}()

	return &Subscription[U]{C: out, errfn: in.Err, cancel: in.Cancel}
}
