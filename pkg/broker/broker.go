// Package broker fans values out to one-shot waiters and persistent
// subscribers.
package broker

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned to waiters when the broker stops before the next
// broadcast.
var ErrStopped = errors.New("broker stopped")

type Option func(*config)

type config struct {
	maxPending int
}

// WithMaxPending bounds the number of undelivered values queued per
// subscriber. When full the oldest value is dropped. n <= 0 means unbounded.
func WithMaxPending(n int) Option {
	return func(c *config) {
		c.maxPending = n
	}
}

// Broker delivers each broadcast value to every waiter registered before it
// and to every live subscription. Broadcast never blocks on slow subscribers.
type Broker[T any] struct {
	cfg config

	mu      sync.Mutex
	subs    map[*Subscription[T]]struct{}
	waiters map[chan T]struct{}
	stopped bool
	done    chan struct{}
}

func NewBroker[T any](opts ...Option) *Broker[T] {
	b := &Broker[T]{
		subs:    map[*Subscription[T]]struct{}{},
		waiters: map[chan T]struct{}{},
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(&b.cfg)
	}
	return b
}

// Broadcast hands msg to all current waiters and subscribers. It is a no-op
// once the broker is stopped.
func (b *Broker[T]) Broadcast(msg T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	for w := range b.waiters {
		w <- msg
	}
	clear(b.waiters)
	for s := range b.subs {
		s.push(msg)
	}
}

// Next blocks until the next broadcast, the broker stops, or ctx is done.
func (b *Broker[T]) Next(ctx context.Context) (T, error) {
	var zero T

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return zero, ErrStopped
	}
	w := make(chan T, 1)
	b.waiters[w] = struct{}{}
	b.mu.Unlock()

	select {
	case msg := <-w:
		return msg, nil
	case <-b.done:
		select {
		case msg := <-w:
			return msg, nil
		default:
		}
		return zero, ErrStopped
	case <-ctx.Done():
		b.mu.Lock()
		delete(b.waiters, w)
		b.mu.Unlock()
		return zero, ctx.Err()
	}
}

// Subscribe registers a subscription that receives every value broadcast
// after this call. Subscribing to a stopped broker yields a closed
// subscription.
func (b *Broker[T]) Subscribe() *Subscription[T] {
	s := newSubscription(b, b.cfg.maxPending)

	b.mu.Lock()
	if b.stopped {
		s.end()
	} else {
		b.subs[s] = struct{}{}
	}
	b.mu.Unlock()

	go s.run()
	return s
}

// Unsubscribe closes s without delivering its pending values.
func (b *Broker[T]) Unsubscribe(s *Subscription[T]) {
	s.Close()
}

func (b *Broker[T]) remove(s *Subscription[T]) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// Stop ends the stream: subscriptions close after delivering what they have
// queued and pending waiters get ErrStopped. Stop is idempotent.
func (b *Broker[T]) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.stopped = true
	close(b.done)
	for s := range b.subs {
		s.end()
	}
	clear(b.subs)
	clear(b.waiters)
}

// Done is closed once the broker stops.
func (b *Broker[T]) Done() <-chan struct{} {
	return b.done
}

// Subscribers reports the number of live subscriptions.
func (b *Broker[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Waiters reports the number of callers blocked in Next.
func (b *Broker[T]) Waiters() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.waiters)
}
