package bus

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/metrics"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/telemetry"
	"github.com/google/uuid"
)

// DefaultQueueCapacity holds roughly two seconds of 60 Hz telemetry.
const DefaultQueueCapacity = 120

var (
	// ErrClosed is returned to a subscriber's reader after Unregister.
	ErrClosed = errors.New("bus: subscriber closed")
	// ErrOverrun is returned to a subscriber evicted under the Disconnect policy.
	ErrOverrun = errors.New("bus: subscriber queue overrun")
	// ErrTooManySubscribers is returned by Register when the limit is reached.
	ErrTooManySubscribers = errors.New("bus: too many subscribers")
)

// OverrunPolicy decides what happens when a subscriber's queue is full.
type OverrunPolicy int

const (
	// DropOldest discards the oldest queued event to make room. Stale
	// telemetry has no value to a live dashboard.
	DropOldest OverrunPolicy = iota
	// Disconnect evicts the subscriber; its connection is closed.
	Disconnect
)

func (p OverrunPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop_oldest"
	case Disconnect:
		return "disconnect"
	}
	return "unknown"
}

func ParsePolicy(s string) (OverrunPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drop_oldest", "drop-oldest":
		return DropOldest, nil
	case "disconnect":
		return Disconnect, nil
	}
	return DropOldest, fmt.Errorf("unknown overrun policy %q", s)
}

type Options struct {
	QueueCapacity  int
	MaxSubscribers int // 0 means unlimited
	Policy         OverrunPolicy
	Metrics        *metrics.Metrics
}

// Bus fans events out to every registered subscriber. Publish only ever
// touches in-memory queues, so it is safe to call from the sampler loop.
type Bus struct {
	registry *Registry
	metrics  *metrics.Metrics

	mu          sync.RWMutex // protects capacity through lastStream
	capacity    int
	maxSubs     int
	policy      OverrunPolicy
	lastSession *telemetry.Event
	lastStream  *telemetry.Event

	publishMu sync.Mutex // serializes Publish and Register

	dropped     int64 // drops since last log; guarded by publishMu
	lastDropLog time.Time
}

func New(opts Options) *Bus {
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = DefaultQueueCapacity
	}
	return &Bus{
		registry: NewRegistry(),
		metrics:  opts.Metrics,
		capacity: opts.QueueCapacity,
		maxSubs:  opts.MaxSubscribers,
		policy:   opts.Policy,
	}
}

// Register creates a subscriber and adds it to the registry. Its queue is
// seeded with the latest stream and session events so a new viewer learns
// the current state before any further telemetry.
func (b *Bus) Register() (*Subscriber, error) {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.mu.RLock()
	capacity, maxSubs, policy := b.capacity, b.maxSubs, b.policy
	greeting := []*telemetry.Event{b.lastStream, b.lastSession}
	b.mu.RUnlock()

	if maxSubs > 0 && b.registry.Count() >= maxSubs {
		return nil, ErrTooManySubscribers
	}
	if greeting[0] != nil && greeting[1] != nil && greeting[0].Seq > greeting[1].Seq {
		greeting[0], greeting[1] = greeting[1], greeting[0]
	}
	s := newSubscriber(uuid.NewString(), capacity, policy)
	seed := make([]*telemetry.Event, 0, len(greeting))
	for _, ev := range greeting {
		if ev != nil {
			seed = append(seed, ev)
		}
	}
	// A queue smaller than the greeting keeps its newest part.
	if len(seed) > s.Cap() {
		seed = seed[len(seed)-s.Cap():]
	}
	for _, ev := range seed {
		s.enqueue(ev)
	}
	b.registry.Add(s)
	return s, nil
}

// Unregister removes and closes the subscriber. Once it returns the
// subscriber observes no further events. Unknown ids are ignored.
func (b *Bus) Unregister(id string) {
	if s, ok := b.registry.Remove(id); ok {
		s.close(ErrClosed)
	}
}

// Publish enqueues ev for every registered subscriber. Calls are serialized
// so all subscribers see the same order.
func (b *Bus) Publish(ev *telemetry.Event) {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.mu.Lock()
	switch ev.Type {
	case telemetry.EventSession:
		b.lastSession = ev
	case telemetry.EventStream:
		b.lastStream = ev
	}
	b.mu.Unlock()

	b.metrics.RecordPublish()
	b.registry.ForEach(func(s *Subscriber) {
		switch s.enqueue(ev) {
		case droppedOldest:
			b.metrics.RecordDrop()
			b.noteDrop()
		case full:
			b.evict(s)
		}
	})
}

func (b *Bus) evict(s *Subscriber) {
	if _, ok := b.registry.Remove(s.id); !ok {
		return
	}
	if s.close(ErrOverrun) {
		b.metrics.RecordOverrun()
		log.Printf("bus: subscriber %s overrun, disconnecting", s.id)
	}
}

// noteDrop logs drops at most once per 10 seconds.
func (b *Bus) noteDrop() {
	b.dropped++
	now := time.Now()
	if b.lastDropLog.IsZero() || now.Sub(b.lastDropLog) >= 10*time.Second {
		log.Printf("bus: dropped %d stale events for slow subscribers", b.dropped)
		b.dropped = 0
		b.lastDropLog = now
	}
}

func (b *Bus) Count() int {
	return b.registry.Count()
}

// Registry exposes the subscriber set for diagnostics.
func (b *Bus) Registry() *Registry {
	return b.registry
}

// LastSession returns the most recent session event, or nil.
func (b *Bus) LastSession() *telemetry.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastSession
}

// LastStream returns the most recent stream event, or nil.
func (b *Bus) LastStream() *telemetry.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastStream
}

// SetQueueCapacity applies to subscribers registered afterwards.
func (b *Bus) SetQueueCapacity(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.capacity = n
}

// SetMaxSubscribers applies to future admissions; 0 removes the limit.
func (b *Bus) SetMaxSubscribers(n int) {
	if n < 0 {
		n = 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maxSubs = n
}

// SetPolicy applies to subscribers registered afterwards.
func (b *Bus) SetPolicy(p OverrunPolicy) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.policy = p
}

func (b *Bus) Policy() OverrunPolicy {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.policy
}
