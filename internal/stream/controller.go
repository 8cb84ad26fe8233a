// Package stream starts and stops the sampler on request. At most one
// sampler runs per process.
package stream

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/sampler"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/telemetry"
)

var (
	ErrAlreadyRunning = errors.New("stream: already running")
	ErrNotRunning     = errors.New("stream: not running")
)

// Factory builds a sampler whose sequence numbering continues after lastSeq.
type Factory func(lastSeq uint64) (*sampler.Sampler, error)

type Status struct {
	Running bool                   `json:"running"`
	Since   time.Time              `json:"since,omitempty"`
	Seq     uint64                 `json:"sequence"`
	State   telemetry.SessionState `json:"session"`
}

type Controller struct {
	factory Factory
	pub     sampler.Publisher

	mu      sync.Mutex
	current *sampler.Sampler
	cancel  context.CancelFunc
	done    chan struct{}
	since   time.Time
	lastSeq uint64
}

func New(factory Factory, pub sampler.Publisher) *Controller {
	return &Controller{factory: factory, pub: pub}
}

// Start launches a sampler bound to ctx. Cancelling ctx stops it like Stop.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return ErrAlreadyRunning
	}
	s, err := c.factory(c.lastSeq)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.current, c.cancel, c.done = s, cancel, done
	c.since = time.Now()
	c.pub.Publish(telemetry.NewStreamEvent(c.lastSeq, c.since, telemetry.StreamStarted))
	log.Printf("stream: started")

	go func() {
		defer close(done)
		if err := s.Run(runCtx); err != nil {
			log.Printf("stream: sampler exited: %v", err)
		}
		c.finish(s)
	}()
	return nil
}

// finish runs after the sampler loop returned and its source was closed.
func (c *Controller) finish(s *sampler.Sampler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != s {
		return
	}
	c.cancel()
	c.lastSeq = s.Seq()
	c.current, c.cancel = nil, nil
	now := time.Now()
	// Nothing reads the source any more, so late viewers must not be told
	// the session is still up.
	if s.State() != telemetry.Disconnected {
		c.pub.Publish(telemetry.NewSessionEvent(c.lastSeq, now, telemetry.Disconnected))
	}
	c.pub.Publish(telemetry.NewStreamEvent(c.lastSeq, now, telemetry.StreamStopped))
	log.Printf("stream: stopped at sequence %d", c.lastSeq)
}

// Stop cancels the sampler and waits until it has released the source.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return ErrNotRunning
	}
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Wait blocks until the running sampler, if any, has exited.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Seq returns the last issued sequence number, across restarts.
func (c *Controller) Seq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return c.current.Seq()
	}
	return c.lastSeq
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Status{Seq: c.lastSeq, State: telemetry.Disconnected}
	}
	return Status{
		Running: true,
		Since:   c.since,
		Seq:     c.current.Seq(),
		State:   c.current.State(),
	}
}

// Health reports the running sampler's source health.
func (c *Controller) Health() (sampler.Health, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return sampler.Health{}, false
	}
	return c.current.Health(), true
}
