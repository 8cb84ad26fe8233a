package telemetry

import (
	"encoding/json"
	"time"
)

// SessionState is the connectivity of the telemetry source as observed by
// the sampler.
type SessionState int

const (
	Disconnected SessionState = iota
	Connecting
	Connected
	Live
)

var stateNames = map[SessionState]string{
	Disconnected: "disconnected",
	Connecting:   "connecting",
	Connected:    "connected",
	Live:         "live",
}

var stateFromName = map[string]SessionState{
	"disconnected": Disconnected,
	"connecting":   Connecting,
	"connected":    Connected,
	"live":         Live,
}

func (s SessionState) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s SessionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *SessionState) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if v, ok := stateFromName[n]; ok {
		*s = v
	}
	return nil
}

// StreamStatus reports whether the sampler is running at all.
type StreamStatus string

const (
	StreamStarted StreamStatus = "started"
	StreamStopped StreamStatus = "stopped"
)

// Snapshot is one immutable capture of telemetry. It is built once per
// successful sampler tick and shared read-only afterwards.
type Snapshot struct {
	Seq    uint64    `json:"sequence"`
	Time   time.Time `json:"timestamp"`
	Fields Fields    `json:"fields"`
}
