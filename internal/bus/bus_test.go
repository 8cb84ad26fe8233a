package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/metrics"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func telemetryEvent(seq uint64) *telemetry.Event {
	return telemetry.NewTelemetryEvent(&telemetry.Snapshot{Seq: seq, Time: time.Now()})
}

func seqs(events []*telemetry.Event) []uint64 {
	out := make([]uint64, len(events))
	for i, ev := range events {
		out[i] = ev.Seq
	}
	return out
}

func TestPublish_DropOldestKeepsMostRecent(t *testing.T) {
	m := metrics.New()
	b := New(Options{QueueCapacity: 10, Metrics: m})

	s, err := b.Register()
	require.NoError(t, err)

	for i := uint64(1); i <= 20; i++ {
		b.Publish(telemetryEvent(i))
	}

	assert.Equal(t, 10, s.Len())
	assert.Equal(t, uint64(10), s.Dropped())
	assert.Equal(t, []uint64{11, 12, 13, 14, 15, 16, 17, 18, 19, 20}, seqs(s.Drain()))
	assert.Equal(t, int64(10), m.Snapshot().Dropped)
	assert.Equal(t, 1, b.Count(), "drop-oldest must not evict")
}

func TestPublish_DisconnectPolicyEvicts(t *testing.T) {
	m := metrics.New()
	b := New(Options{QueueCapacity: 3, Policy: Disconnect, Metrics: m})

	slow, err := b.Register()
	require.NoError(t, err)
	fast, err := b.Register()
	require.NoError(t, err)

	for i := uint64(1); i <= 3; i++ {
		b.Publish(telemetryEvent(i))
		_ = fast.Drain()
	}
	b.Publish(telemetryEvent(4))

	assert.Equal(t, 1, b.Count())
	_, err = slow.Next(context.Background())
	assert.ErrorIs(t, err, ErrOverrun)
	assert.ErrorIs(t, slow.Err(), ErrOverrun)
	assert.Equal(t, []uint64{4}, seqs(fast.Drain()))
	assert.Equal(t, int64(1), m.Snapshot().Overruns)
}

func TestPublish_NoSubscribersIsNoop(t *testing.T) {
	b := New(Options{})
	for i := uint64(1); i <= 100; i++ {
		b.Publish(telemetryEvent(i))
	}
	assert.Equal(t, 0, b.Count())
}

func TestPublish_PerSubscriberOrder(t *testing.T) {
	b := New(Options{QueueCapacity: 8})

	const readers = 4
	const total = 5000

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	results := make([][]uint64, readers)
	for r := 0; r < readers; r++ {
		s, err := b.Register()
		require.NoError(t, err)
		wg.Add(1)
		go func(r int, s *Subscriber) {
			defer wg.Done()
			for {
				ev, err := s.Next(ctx)
				if err != nil {
					return
				}
				results[r] = append(results[r], ev.Seq)
				if ev.Seq == total {
					return
				}
				if r%2 == 1 {
					time.Sleep(time.Microsecond)
				}
			}
		}(r, s)
	}

	for i := uint64(1); i <= total; i++ {
		b.Publish(telemetryEvent(i))
	}
	wg.Wait()

	for r, got := range results {
		require.NotEmpty(t, got, "reader %d got nothing", r)
		for i := 1; i < len(got); i++ {
			if got[i] < got[i-1] {
				t.Fatalf("reader %d: sequence went backwards at %d: %d after %d", r, i, got[i], got[i-1])
			}
		}
		assert.Equal(t, uint64(total), got[len(got)-1], "reader %d must end on the newest event", r)
	}
}

func TestPublish_StalledSubscriberDoesNotBlock(t *testing.T) {
	b := New(Options{QueueCapacity: 4})

	_, err := b.Register() // never drained
	require.NoError(t, err)
	live, err := b.Register()
	require.NoError(t, err)

	start := time.Now()
	for i := uint64(1); i <= 10000; i++ {
		b.Publish(telemetryEvent(i))
		if i%4 == 0 {
			_ = live.Drain()
		}
	}
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestUnregister_NothingObservedAfterReturn(t *testing.T) {
	b := New(Options{QueueCapacity: 16})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var seq uint64
		for ctx.Err() == nil {
			seq++
			b.Publish(telemetryEvent(seq))
		}
	}()

	for i := 0; i < 500; i++ {
		s, err := b.Register()
		require.NoError(t, err)
		b.Unregister(s.ID())

		assert.Empty(t, s.Drain())
		_, err = s.Next(context.Background())
		require.ErrorIs(t, err, ErrClosed)
		_, ok := b.Registry().Get(s.ID())
		assert.False(t, ok)
	}

	cancel()
	wg.Wait()
	assert.Equal(t, 0, b.Count())
}

func TestUnregister_Idempotent(t *testing.T) {
	b := New(Options{})
	s, err := b.Register()
	require.NoError(t, err)

	b.Unregister(s.ID())
	b.Unregister(s.ID())
	b.Unregister("missing")

	select {
	case <-s.Done():
	default:
		t.Fatal("Done should be closed after Unregister")
	}
}

func TestRegister_MaxSubscribers(t *testing.T) {
	b := New(Options{MaxSubscribers: 2})

	a, err := b.Register()
	require.NoError(t, err)
	_, err = b.Register()
	require.NoError(t, err)

	_, err = b.Register()
	assert.True(t, errors.Is(err, ErrTooManySubscribers))

	b.Unregister(a.ID())
	_, err = b.Register()
	assert.NoError(t, err)

	b.SetMaxSubscribers(0)
	for i := 0; i < 10; i++ {
		_, err = b.Register()
		require.NoError(t, err)
	}
	assert.Equal(t, 12, b.Count())
}

func TestSetQueueCapacity_AppliesToNewSubscribers(t *testing.T) {
	b := New(Options{QueueCapacity: 5})
	old, err := b.Register()
	require.NoError(t, err)

	b.SetQueueCapacity(50)
	b.SetQueueCapacity(-1)
	fresh, err := b.Register()
	require.NoError(t, err)

	assert.Equal(t, 5, old.Cap())
	assert.Equal(t, 50, fresh.Cap())
}

func TestNext_ContextCancel(t *testing.T) {
	b := New(Options{})
	s, err := b.Register()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNext_WakesOnPublish(t *testing.T) {
	b := New(Options{})
	s, err := b.Register()
	require.NoError(t, err)

	got := make(chan uint64, 1)
	go func() {
		ev, err := s.Next(context.Background())
		if err == nil {
			got <- ev.Seq
		}
	}()

	time.Sleep(10 * time.Millisecond)
	b.Publish(telemetryEvent(42))

	select {
	case seq := <-got:
		assert.Equal(t, uint64(42), seq)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not wake up")
	}
}

func TestLastSessionAndStream(t *testing.T) {
	b := New(Options{})
	assert.Nil(t, b.LastSession())
	assert.Nil(t, b.LastStream())

	b.Publish(telemetry.NewStreamEvent(0, time.Now(), telemetry.StreamStarted))
	b.Publish(telemetry.NewSessionEvent(0, time.Now(), telemetry.Disconnected))
	b.Publish(telemetryEvent(1))
	b.Publish(telemetry.NewSessionEvent(1, time.Now(), telemetry.Connected))

	require.NotNil(t, b.LastSession())
	assert.Equal(t, telemetry.Connected, b.LastSession().State)
	require.NotNil(t, b.LastStream())
	assert.Equal(t, telemetry.StreamStarted, b.LastStream().Stream)
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    OverrunPolicy
		wantErr bool
	}{
		{"", DropOldest, false},
		{"drop_oldest", DropOldest, false},
		{"Drop-Oldest", DropOldest, false},
		{"disconnect", Disconnect, false},
		{"block", DropOldest, true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestRegister_GreetsWithLatestState(t *testing.T) {
	b := New(Options{})
	b.Publish(telemetry.NewStreamEvent(0, time.Now(), telemetry.StreamStarted))
	b.Publish(telemetryEvent(1))
	b.Publish(telemetry.NewSessionEvent(1, time.Now(), telemetry.Live))
	b.Publish(telemetryEvent(2))

	s, err := b.Register()
	require.NoError(t, err)

	got := s.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, telemetry.EventStream, got[0].Type)
	assert.Equal(t, telemetry.EventSession, got[1].Type)
	assert.Equal(t, telemetry.Live, got[1].State)

	b.Publish(telemetryEvent(3))
	select {
	case <-s.Ready():
	default:
		t.Fatal("Ready not signalled after publish")
	}
	assert.Equal(t, []uint64{3}, seqs(s.Drain()))
}

func TestRegister_GreetingOrderedBySequence(t *testing.T) {
	b := New(Options{})
	b.Publish(telemetry.NewSessionEvent(7, time.Now(), telemetry.Connected))
	b.Publish(telemetry.NewStreamEvent(9, time.Now(), telemetry.StreamStopped))

	s, err := b.Register()
	require.NoError(t, err)
	assert.Equal(t, []uint64{7, 9}, seqs(s.Drain()))
}

func TestSetPolicy_AppliesToNewSubscribers(t *testing.T) {
	b := New(Options{QueueCapacity: 2, Policy: DropOldest})
	old, err := b.Register()
	require.NoError(t, err)

	b.SetPolicy(Disconnect)
	fresh, err := b.Register()
	require.NoError(t, err)

	for i := uint64(1); i <= 3; i++ {
		b.Publish(telemetryEvent(i))
	}

	assert.Equal(t, DropOldest, old.Policy())
	assert.NoError(t, old.Err(), "subscriber admitted under drop-oldest keeps its policy")
	assert.Equal(t, uint64(1), old.Dropped())
	assert.ErrorIs(t, fresh.Err(), ErrOverrun)
	assert.Equal(t, 1, b.Count())
}

func TestRegister_GreetingTrimmedToCapacity(t *testing.T) {
	b := New(Options{QueueCapacity: 1, Policy: Disconnect})
	b.Publish(telemetry.NewStreamEvent(0, time.Now(), telemetry.StreamStarted))
	b.Publish(telemetry.NewSessionEvent(0, time.Now(), telemetry.Live))

	s, err := b.Register()
	require.NoError(t, err)
	got := s.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, telemetry.EventSession, got[0].Type)
}
