// Package source defines the boundary between the sampler and whatever
// provides raw simulator telemetry.
package source

import (
	"context"
	"errors"
)

// ErrNotConnected is returned by Open or Poll when the simulator is not
// running or has gone away. The sampler treats it as a connectivity signal,
// not a failure.
var ErrNotConnected = errors.New("source: simulator not connected")

// Source is a poll-style telemetry provider with an explicit lifecycle.
// The sampler owns the handle: it calls Open while idle, Poll once per tick
// while connected and Close on disconnect and on shutdown.
//
// Implementations are used from a single goroutine and do not need to be
// safe for concurrent use.
type Source interface {
	// Name returns a short lowercase identifier, e.g. "irsdk" or "mock".
	Name() string

	// Open attaches to the simulator. It returns ErrNotConnected if the
	// simulator is not available yet.
	Open(ctx context.Context) error

	// Poll returns the current reading as raw SDK-native values keyed by
	// field name. ErrNotConnected means the simulator went away; any other
	// error is a transient read failure for this tick only.
	Poll(ctx context.Context) (map[string]any, error)

	// Close releases the handle. It must be safe to call when not open.
	Close() error
}

// Probe reports whether the simulator process is alive even when its data
// is not readable yet.
type Probe interface {
	Alive(ctx context.Context) bool
}
