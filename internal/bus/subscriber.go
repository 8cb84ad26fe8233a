package bus

import (
	"context"
	"sync"

	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/telemetry"
)

// Subscriber is one registered recipient of events, backed by a bounded
// ring queue. The bus is the only writer; the owning connection is the only
// reader.
type Subscriber struct {
	id     string
	policy OverrunPolicy

	mu       sync.Mutex
	buf      []*telemetry.Event
	head     int
	n        int
	dropped  uint64
	closed   bool
	closeErr error

	wake chan struct{}
	done chan struct{}
}

func newSubscriber(id string, capacity int, policy OverrunPolicy) *Subscriber {
	if capacity < 1 {
		capacity = 1
	}
	return &Subscriber{
		id:     id,
		policy: policy,
		buf:    make([]*telemetry.Event, capacity),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (s *Subscriber) ID() string { return s.id }

// Policy returns the overrun policy fixed at registration.
func (s *Subscriber) Policy() OverrunPolicy { return s.policy }

// Cap returns the queue capacity fixed at registration.
func (s *Subscriber) Cap() int { return len(s.buf) }

func (s *Subscriber) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Dropped returns how many events were discarded to make room for newer ones.
func (s *Subscriber) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Ready receives a signal after events were queued. A signal may be
// spurious; callers Drain and wait again.
func (s *Subscriber) Ready() <-chan struct{} { return s.wake }

// Done is closed once the subscriber has been unregistered or evicted.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Err reports why the subscriber was closed, or nil while it is live.
func (s *Subscriber) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}

type enqueueResult int

const (
	enqueued enqueueResult = iota
	droppedOldest
	full
	discarded
)

// enqueue never blocks. Under DropOldest a full queue loses its head;
// otherwise the event is refused and the caller decides what to do.
func (s *Subscriber) enqueue(ev *telemetry.Event) enqueueResult {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return discarded
	}

	res := enqueued
	if s.n == len(s.buf) {
		if s.policy != DropOldest {
			s.mu.Unlock()
			return full
		}
		s.buf[s.head] = nil
		s.head = (s.head + 1) % len(s.buf)
		s.n--
		s.dropped++
		res = droppedOldest
	}

	s.buf[(s.head+s.n)%len(s.buf)] = ev
	s.n++
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return res
}

// close discards anything still queued so that nothing is observable once
// Unregister has returned.
func (s *Subscriber) close(reason error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.closeErr = reason
	for i := range s.buf {
		s.buf[i] = nil
	}
	s.head, s.n = 0, 0
	close(s.done)
	return true
}

func (s *Subscriber) popLocked() *telemetry.Event {
	ev := s.buf[s.head]
	s.buf[s.head] = nil
	s.head = (s.head + 1) % len(s.buf)
	s.n--
	return ev
}

// Next blocks until an event is available, the subscriber is closed
// (ErrClosed or ErrOverrun) or ctx is done.
func (s *Subscriber) Next(ctx context.Context) (*telemetry.Event, error) {
	for {
		s.mu.Lock()
		if s.closed {
			err := s.closeErr
			s.mu.Unlock()
			return nil, err
		}
		if s.n > 0 {
			ev := s.popLocked()
			s.mu.Unlock()
			return ev, nil
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-s.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Drain returns every queued event without blocking, oldest first.
func (s *Subscriber) Drain() []*telemetry.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.n == 0 {
		return nil
	}
	out := make([]*telemetry.Event, 0, s.n)
	for s.n > 0 {
		out = append(out, s.popLocked())
	}
	return out
}
