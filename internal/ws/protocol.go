package ws

import (
	"time"

	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/metrics"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/sampler"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/telemetry"
)

// MessageType names messages that are not bus events.
type MessageType string

const (
	MsgPing MessageType = "ping"
	MsgPong MessageType = "pong"
)

// ClientMessage is anything a dashboard sends. Only ping is understood.
type ClientMessage struct {
	Type MessageType `json:"type"`
}

// PongMessage answers a client ping with the current sequence number.
type PongMessage struct {
	Type      MessageType `json:"type"`
	Sequence  uint64      `json:"sequence"`
	Timestamp time.Time   `json:"timestamp"`
}

type HealthResponse struct {
	Status       string                 `json:"status"`
	Server       string                 `json:"server"`
	Port         int                    `json:"port"`
	StreamActive bool                   `json:"stream_active"`
	Session      telemetry.SessionState `json:"session"`
	Subscribers  int                    `json:"subscribers"`
	Sequence     uint64                 `json:"sequence"`
	Source       *sampler.Health        `json:"source,omitempty"`
}

// StreamResponse is returned by the stream start and stop routes.
type StreamResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type StreamStatusResponse struct {
	IsRunning bool                   `json:"is_running"`
	Status    string                 `json:"status"`
	Session   telemetry.SessionState `json:"session"`
	Sequence  uint64                 `json:"sequence"`
	Since     *time.Time             `json:"since,omitempty"`
}

type HistoryResponse struct {
	Count     int                   `json:"count"`
	Snapshots []*telemetry.Snapshot `json:"snapshots"`
}

type StatsResponse struct {
	metrics.Snapshot
	Subscribers int    `json:"subscribers"`
	Policy      string `json:"overrunPolicy"`
}
