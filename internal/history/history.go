// Package history keeps the most recent snapshots in memory so late
// callers can read the current value without subscribing.
package history

import (
	"sync"

	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/telemetry"
)

// DefaultSize is ten seconds at 60 Hz.
const DefaultSize = 600

// Buffer is a fixed-size ring of snapshots, safe for concurrent use.
type Buffer struct {
	mu   sync.RWMutex
	buf  []*telemetry.Snapshot
	head int // index of the oldest entry
	n    int
}

func New(size int) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Buffer{buf: make([]*telemetry.Snapshot, size)}
}

// Add stores s, overwriting the oldest entry when full.
func (b *Buffer) Add(s *telemetry.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.n < len(b.buf) {
		b.buf[(b.head+b.n)%len(b.buf)] = s
		b.n++
		return
	}
	b.buf[b.head] = s
	b.head = (b.head + 1) % len(b.buf)
}

func (b *Buffer) Latest() (*telemetry.Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.n == 0 {
		return nil, false
	}
	return b.buf[(b.head+b.n-1)%len(b.buf)], true
}

// Recent returns up to n snapshots, oldest first. n <= 0 returns all.
func (b *Buffer) Recent(n int) []*telemetry.Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n <= 0 || n > b.n {
		n = b.n
	}
	out := make([]*telemetry.Snapshot, n)
	start := b.head + b.n - n
	for i := range out {
		out[i] = b.buf[(start+i)%len(b.buf)]
	}
	return out
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.n
}

func (b *Buffer) Cap() int { return len(b.buf) }

// Reset forgets every stored snapshot.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.buf)
	b.head, b.n = 0, 0
}
