package telemetry

import (
	"encoding/json"
	"sync"
	"time"
)

type EventType string

const (
	EventTelemetry EventType = "telemetry"
	EventSession   EventType = "session"
	EventStream    EventType = "stream"
)

// Event is the unit broadcast to subscribers. Events are shared between all
// subscriber queues, so they must not be modified after construction.
type Event struct {
	Type     EventType
	Seq      uint64
	Time     time.Time
	Snapshot *Snapshot
	State    SessionState
	Stream   StreamStatus

	once sync.Once
	wire []byte
	err  error
}

func NewTelemetryEvent(s *Snapshot) *Event {
	return &Event{Type: EventTelemetry, Seq: s.Seq, Time: s.Time, Snapshot: s}
}

// NewSessionEvent stamps a state transition with the sequence number of the
// most recent telemetry event, so subscribers never see the sequence go
// backwards.
func NewSessionEvent(seq uint64, at time.Time, state SessionState) *Event {
	return &Event{Type: EventSession, Seq: seq, Time: at, State: state}
}

func NewStreamEvent(seq uint64, at time.Time, status StreamStatus) *Event {
	return &Event{Type: EventStream, Seq: seq, Time: at, Stream: status}
}

// Message is the wire form of an Event.
type Message struct {
	Type      EventType `json:"type"`
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Envelope decodes a Message while leaving the payload for the caller.
type Envelope struct {
	Type      EventType       `json:"type"`
	Sequence  uint64          `json:"sequence"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type SessionPayload struct {
	State SessionState `json:"state"`
}

type StreamPayload struct {
	Status StreamStatus `json:"status"`
}

func (e *Event) Message() Message {
	msg := Message{Type: e.Type, Sequence: e.Seq, Timestamp: e.Time}
	switch e.Type {
	case EventTelemetry:
		if e.Snapshot != nil {
			msg.Payload = e.Snapshot.Fields
		} else {
			msg.Payload = Fields{}
		}
	case EventSession:
		msg.Payload = SessionPayload{State: e.State}
	case EventStream:
		msg.Payload = StreamPayload{Status: e.Stream}
	}
	return msg
}

// Encode returns the JSON wire form. The result is computed once and cached,
// so fanning one event out to many connections marshals it a single time.
func (e *Event) Encode() ([]byte, error) {
	e.once.Do(func() {
		e.wire, e.err = json.Marshal(e.Message())
	})
	return e.wire, e.err
}
