package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/bus"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/sampler"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type steadySource struct {
	mu     sync.Mutex
	closes int
}

func (s *steadySource) Name() string                   { return "steady" }
func (s *steadySource) Open(ctx context.Context) error { return nil }
func (s *steadySource) Poll(ctx context.Context) (map[string]any, error) {
	return map[string]any{"speed": 80.0}, nil
}
func (s *steadySource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []*telemetry.Event
}

func (r *recorder) Publish(ev *telemetry.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []*telemetry.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*telemetry.Event(nil), r.events...)
}

func newController(src *steadySource, rec *recorder) *Controller {
	return New(func(lastSeq uint64) (*sampler.Sampler, error) {
		return sampler.New(src, rec, sampler.Options{Rate: 200, StartSeq: lastSeq})
	}, rec)
}

func waitForSeq(t *testing.T, c *Controller, min uint64) {
	t.Helper()
	require.Eventually(t, func() bool { return c.Seq() >= min }, 5*time.Second, 5*time.Millisecond)
}

func TestController_StartStop(t *testing.T) {
	src := &steadySource{}
	rec := &recorder{}
	c := newController(src, rec)

	require.NoError(t, c.Start(context.Background()))
	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyRunning)
	assert.True(t, c.Running())
	waitForSeq(t, c, 5)

	require.NoError(t, c.Stop())
	assert.False(t, c.Running())
	assert.ErrorIs(t, c.Stop(), ErrNotRunning)
	assert.Equal(t, 1, src.closes, "source released before Stop returns")

	events := rec.snapshot()
	require.NotEmpty(t, events)
	first, last := events[0], events[len(events)-1]
	assert.Equal(t, telemetry.EventStream, first.Type)
	assert.Equal(t, telemetry.StreamStarted, first.Stream)
	assert.Equal(t, telemetry.EventStream, last.Type)
	assert.Equal(t, telemetry.StreamStopped, last.Stream)
	assert.Equal(t, c.Seq(), last.Seq)
}

func TestController_RestartContinuesSequence(t *testing.T) {
	src := &steadySource{}
	rec := &recorder{}
	c := newController(src, rec)

	require.NoError(t, c.Start(context.Background()))
	waitForSeq(t, c, 3)
	require.NoError(t, c.Stop())
	stoppedAt := c.Seq()

	require.NoError(t, c.Start(context.Background()))
	waitForSeq(t, c, stoppedAt+3)
	require.NoError(t, c.Stop())

	var prev uint64
	var telemetrySeqs []uint64
	for _, ev := range rec.snapshot() {
		assert.GreaterOrEqual(t, ev.Seq, prev)
		prev = ev.Seq
		if ev.Type == telemetry.EventTelemetry {
			telemetrySeqs = append(telemetrySeqs, ev.Seq)
		}
	}
	for i, seq := range telemetrySeqs {
		assert.Equal(t, uint64(i+1), seq)
	}
}

func TestController_ParentCancelStops(t *testing.T) {
	rec := &recorder{}
	c := newController(&steadySource{}, rec)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx))
	waitForSeq(t, c, 1)

	cancel()
	c.Wait()
	assert.False(t, c.Running())
	assert.Equal(t, telemetry.Disconnected, c.Status().State)

	events := rec.snapshot()
	assert.Equal(t, telemetry.StreamStopped, events[len(events)-1].Stream)
}

func TestController_FactoryError(t *testing.T) {
	boom := errors.New("no source")
	c := New(func(uint64) (*sampler.Sampler, error) { return nil, boom }, &recorder{})

	assert.ErrorIs(t, c.Start(context.Background()), boom)
	assert.False(t, c.Running())
	c.Wait()
}

func TestController_Status(t *testing.T) {
	c := newController(&steadySource{}, &recorder{})
	assert.False(t, c.Status().Running)
	_, ok := c.Health()
	assert.False(t, ok)

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()
	waitForSeq(t, c, 1)

	st := c.Status()
	assert.True(t, st.Running)
	assert.Equal(t, telemetry.Connected, st.State)
	h, ok := c.Health()
	require.True(t, ok)
	assert.Equal(t, sampler.StatusHealthy, h.Status)
}

type onTrackSource struct{}

func (onTrackSource) Name() string                   { return "on-track" }
func (onTrackSource) Open(ctx context.Context) error { return nil }
func (onTrackSource) Close() error                   { return nil }
func (onTrackSource) Poll(ctx context.Context) (map[string]any, error) {
	return map[string]any{"speed": 180.0, "on_track": true}, nil
}

func TestController_StopReportsDisconnected(t *testing.T) {
	b := bus.New(bus.Options{})
	c := New(func(lastSeq uint64) (*sampler.Sampler, error) {
		return sampler.New(onTrackSource{}, b, sampler.Options{Rate: 200, StartSeq: lastSeq})
	}, b)

	require.NoError(t, c.Start(context.Background()))
	waitForSeq(t, c, 5)
	require.Equal(t, telemetry.Live, c.Status().State)
	require.NoError(t, c.Stop())

	sub, err := b.Register()
	require.NoError(t, err)
	greeting := sub.Drain()
	require.Len(t, greeting, 2)
	assert.Equal(t, telemetry.StreamStopped, greeting[0].Stream)
	assert.Equal(t, telemetry.EventSession, greeting[1].Type)
	assert.Equal(t, telemetry.Disconnected, greeting[1].State)
	assert.Equal(t, c.Status().State, greeting[1].State)
}

func TestController_StopWithoutObservationSkipsSessionEvent(t *testing.T) {
	rec := &recorder{}
	c := New(func(lastSeq uint64) (*sampler.Sampler, error) {
		return sampler.New(&steadySource{}, rec, sampler.Options{Rate: 200, IdleInterval: time.Hour})
	}, rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, c.Start(ctx))
	c.Wait()

	for _, ev := range rec.snapshot() {
		assert.NotEqual(t, telemetry.EventSession, ev.Type)
	}
}
