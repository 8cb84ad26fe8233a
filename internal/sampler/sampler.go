// Package sampler polls a telemetry source at a fixed rate and publishes
// sequenced events.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/metrics"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/source"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/telemetry"
	"github.com/jpillora/backoff"
)

const (
	DefaultRate            = 60
	DefaultIdleInterval    = time.Second
	DefaultMaxIdleInterval = 5 * time.Second

	readErrorLogInterval = 10 * time.Second
)

var (
	// ErrConfig is wrapped by every *ConfigError.
	ErrConfig = errors.New("sampler: invalid configuration")
	// ErrSourceRead marks a failed read that was skipped.
	ErrSourceRead = errors.New("sampler: source read failed")
)

type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("sampler: invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

// Publisher receives every event the sampler produces. Publish must not
// block.
type Publisher interface {
	Publish(ev *telemetry.Event)
}

// Enricher derives additional fields from a reading. It runs on the sampler
// goroutine, once per successful tick, in order.
type Enricher interface {
	Enrich(at time.Time, f telemetry.Fields) telemetry.Fields
}

type Options struct {
	Rate            float64 // ticks per second
	IdleInterval    time.Duration
	MaxIdleInterval time.Duration
	Schema          telemetry.Schema
	Enrichers       []Enricher
	// Probe, if set, distinguishes a starting simulator (Connecting) from
	// an absent one (Disconnected).
	Probe source.Probe
	// Observer is called with every snapshot after it was published.
	Observer         func(*telemetry.Snapshot)
	Metrics          *metrics.Metrics
	FailureThreshold int
	// StartSeq continues numbering from a previous run.
	StartSeq uint64
}

// Sampler owns the source handle and the sequence counter. Run may be
// called once.
type Sampler struct {
	src    source.Source
	pub    Publisher
	opts   Options
	period time.Duration
	health *sourceHealth

	seq   atomic.Uint64
	state atomic.Int32 // -1 until the first observation

	connected bool

	logMu        sync.Mutex
	readErrors   int
	lastErrorLog time.Time
}

const stateUnknown = -1

func New(src source.Source, pub Publisher, opts Options) (*Sampler, error) {
	if opts.Rate <= 0 || math.IsNaN(opts.Rate) || math.IsInf(opts.Rate, 0) {
		return nil, &ConfigError{Field: "rate", Reason: fmt.Sprintf("%v is not a positive rate", opts.Rate)}
	}
	if src == nil {
		return nil, &ConfigError{Field: "source", Reason: "nil"}
	}
	if pub == nil {
		return nil, &ConfigError{Field: "publisher", Reason: "nil"}
	}
	if opts.IdleInterval <= 0 {
		opts.IdleInterval = DefaultIdleInterval
	}
	if opts.MaxIdleInterval < opts.IdleInterval {
		opts.MaxIdleInterval = max(DefaultMaxIdleInterval, opts.IdleInterval)
	}
	if opts.Schema.Len() == 0 {
		opts.Schema = telemetry.DefaultSchema
	}
	s := &Sampler{
		src:    src,
		pub:    pub,
		opts:   opts,
		period: time.Duration(float64(time.Second) / opts.Rate),
		health: newSourceHealth(opts.FailureThreshold),
	}
	s.seq.Store(opts.StartSeq)
	s.state.Store(stateUnknown)
	return s, nil
}

// Seq returns the last issued sequence number.
func (s *Sampler) Seq() uint64 {
	return s.seq.Load()
}

// State returns the last emitted session state, Disconnected before the
// first observation.
func (s *Sampler) State() telemetry.SessionState {
	v := s.state.Load()
	if v == stateUnknown {
		return telemetry.Disconnected
	}
	return telemetry.SessionState(v)
}

func (s *Sampler) Health() Health {
	return s.health.snapshot()
}

func (s *Sampler) Period() time.Duration {
	return s.period
}

// Run drives the loop until ctx is done, then closes the source.
func (s *Sampler) Run(ctx context.Context) error {
	defer s.disconnect()

	idle := &backoff.Backoff{
		Min:    s.opts.IdleInterval,
		Max:    s.opts.MaxIdleInterval,
		Factor: 1.5,
	}
	log.Printf("sampler: polling %s at %.0f Hz", s.src.Name(), s.opts.Rate)

	var next time.Time
	for {
		if ctx.Err() != nil {
			return nil
		}

		if !s.connected {
			if s.tryOpen(ctx) {
				idle.Reset()
				next = time.Now()
				continue
			}
			if !sleep(ctx, idle.Duration()) {
				return nil
			}
			continue
		}

		start := time.Now()
		s.opts.Metrics.RecordTick(start.Sub(next))
		if !s.tick(ctx) {
			// Disconnected: wait before the first reopen.
			if !sleep(ctx, idle.Duration()) {
				return nil
			}
			continue
		}

		next = next.Add(s.period)
		now := time.Now()
		if wait := next.Sub(now); wait > 0 {
			if !sleep(ctx, wait) {
				return nil
			}
		} else {
			// Overran: start the next tick now without catching up.
			next = now
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *Sampler) tryOpen(ctx context.Context) bool {
	err := s.src.Open(ctx)
	if err == nil {
		s.connected = true
		log.Printf("sampler: %s connected", s.src.Name())
		return true
	}
	if ctx.Err() != nil {
		return false
	}
	if !errors.Is(err, source.ErrNotConnected) {
		s.noteReadError(fmt.Errorf("open: %w", err))
	}
	s.transition(time.Now(), s.offlineState(ctx))
	return false
}

func (s *Sampler) offlineState(ctx context.Context) telemetry.SessionState {
	if s.opts.Probe != nil && s.opts.Probe.Alive(ctx) {
		return telemetry.Connecting
	}
	return telemetry.Disconnected
}

// tick performs one read. It returns false when the source disconnected.
func (s *Sampler) tick(ctx context.Context) bool {
	raw, err := s.poll(ctx)
	if errors.Is(err, source.ErrNotConnected) {
		s.disconnect()
		log.Printf("sampler: %s disconnected", s.src.Name())
		s.transition(time.Now(), s.offlineState(ctx))
		return false
	}
	if err != nil {
		s.readFailed(err)
		return true
	}

	fields, err := s.opts.Schema.Normalize(raw)
	if err != nil {
		s.readFailed(err)
		return true
	}
	s.health.recordSuccess()
	s.reportHealth()

	now := time.Now()
	for _, e := range s.opts.Enrichers {
		fields = e.Enrich(now, fields)
	}

	state := telemetry.Connected
	if fields.Bool(telemetry.FieldOnTrack) {
		state = telemetry.Live
	}
	s.transition(now, state)

	snap := &telemetry.Snapshot{Seq: s.seq.Add(1), Time: now, Fields: fields}
	s.pub.Publish(telemetry.NewTelemetryEvent(snap))
	if s.opts.Observer != nil {
		s.opts.Observer(snap)
	}
	return true
}

// poll calls the source, converting a panic into a read error.
func (s *Sampler) poll(ctx context.Context) (raw map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			raw, err = nil, fmt.Errorf("panic in %s poll: %v", s.src.Name(), r)
		}
	}()
	return s.src.Poll(ctx)
}

func (s *Sampler) readFailed(err error) {
	s.opts.Metrics.RecordReadError()
	s.health.recordFailure(err)
	s.noteReadError(err)
	s.reportHealth()
}

// noteReadError logs read errors at most once per readErrorLogInterval.
func (s *Sampler) noteReadError(err error) {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	s.readErrors++
	now := time.Now()
	if s.lastErrorLog.IsZero() || now.Sub(s.lastErrorLog) >= readErrorLogInterval {
		log.Printf("sampler: %d read errors, last: %v", s.readErrors, fmt.Errorf("%w: %w", ErrSourceRead, err))
		s.readErrors = 0
		s.lastErrorLog = now
	}
}

func (s *Sampler) reportHealth() {
	h, changed := s.health.snapshotAndEmit()
	if changed {
		log.Printf("[%s] health status: %s (consecutive=%d, total=%d)",
			s.src.Name(), h.Status, h.ConsecutiveFailures, h.TotalFailures)
	}
}

// transition publishes a session event when state differs from the last
// one published. Session events carry the last issued sequence number.
func (s *Sampler) transition(at time.Time, state telemetry.SessionState) {
	if s.state.Swap(int32(state)) == int32(state) {
		return
	}
	s.opts.Metrics.RecordTransition()
	s.pub.Publish(telemetry.NewSessionEvent(s.seq.Load(), at, state))
}

func (s *Sampler) disconnect() {
	if !s.connected {
		return
	}
	s.connected = false
	if err := s.src.Close(); err != nil {
		log.Printf("sampler: close %s: %v", s.src.Name(), err)
	}
}
