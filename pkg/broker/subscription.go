package broker

import (
	"sync"
	"sync/atomic"
)

// Subscription is a persistent, ordered feed of broadcast values. Values are
// queued on broadcast and moved to C by a goroutine owned by the
// subscription, so a slow reader only delays itself.
type Subscription[T any] struct {
	broker     *Broker[T]
	maxPending int

	c      chan T
	notify chan struct{}
	quit   chan struct{}
	once   sync.Once

	mu      sync.Mutex
	queue   []T
	ended   bool
	dropped atomic.Uint64
}

func newSubscription[T any](b *Broker[T], maxPending int) *Subscription[T] {
	return &Subscription[T]{
		broker:     b,
		maxPending: maxPending,
		c:          make(chan T),
		notify:     make(chan struct{}, 1),
		quit:       make(chan struct{}),
	}
}

// C returns the receive channel. It is closed after the last value once the
// broker stops, or immediately when the subscription is closed.
func (s *Subscription[T]) C() <-chan T {
	return s.c
}

// Close detaches the subscription from its broker and discards anything not
// yet received. It is safe to call more than once.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.ended = true
		s.queue = nil
		s.mu.Unlock()
		close(s.quit)
		s.broker.remove(s)
	})
}

// Dropped reports how many values were discarded because the queue was full.
func (s *Subscription[T]) Dropped() uint64 {
	return s.dropped.Load()
}

// Pending reports the number of values queued but not yet received.
func (s *Subscription[T]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Subscription[T]) push(msg T) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	if s.maxPending > 0 && len(s.queue) >= s.maxPending {
		var zero T
		s.queue[0] = zero
		s.queue = s.queue[1:]
		s.dropped.Add(1)
	}
	s.queue = append(s.queue, msg)
	s.mu.Unlock()
	s.wake()
}

// end marks the end of the stream; queued values are still delivered.
func (s *Subscription[T]) end() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription[T]) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) run() {
	defer close(s.c)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			ended := s.ended
			s.mu.Unlock()
			if ended {
				return
			}
			select {
			case <-s.notify:
			case <-s.quit:
				return
			}
			continue
		}
		var zero T
		msg := s.queue[0]
		s.queue[0] = zero
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.c <- msg:
		case <-s.quit:
			return
		}
	}
}
