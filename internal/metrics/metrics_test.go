package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordTick_TracksLateness(t *testing.T) {
	m := New()
	m.RecordTick(0)
	m.RecordTick(3 * time.Millisecond)
	m.RecordTick(time.Millisecond)

	s := m.Snapshot()
	assert.Equal(t, int64(3), s.Ticks)
	assert.Equal(t, int64(2), s.LateTicks)
	assert.InDelta(t, 3.0, s.MaxLatenessMillis, 1e-9)
}

func TestConnections(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.ConnectionOpened()
			m.ConnectionClosed()
		}()
	}
	wg.Wait()
	m.ConnectionOpened()
	m.ConnectionRejected()

	s := m.Snapshot()
	assert.Equal(t, int64(1), s.Connections)
	assert.Equal(t, int64(51), s.Accepted)
	assert.Equal(t, int64(1), s.Rejected)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordTick(time.Second)
	m.RecordReadError()
	m.RecordDrop()
	m.ConnectionOpened()
	assert.Equal(t, Snapshot{}, m.Snapshot())
	assert.Equal(t, int64(0), m.ReadErrors())
}
