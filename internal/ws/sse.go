package ws

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/bus"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/telemetry"
)

const sseKeepAlive = 15 * time.Second

// handleEvents streams the same events as /ws using Server-Sent Events, for
// clients that cannot open a WebSocket.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	sub, ok := s.register(w, r)
	if !ok {
		return
	}
	defer s.bus.Unregister(sub.ID())

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.metrics.ConnectionOpened()
	defer s.metrics.ConnectionClosed()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			reason := "closed"
			if errors.Is(sub.Err(), bus.ErrOverrun) {
				reason = "overrun"
			}
			fmt.Fprintf(w, "event: close\ndata: {\"reason\":%q}\n\n", reason)
			flusher.Flush()
			return
		case <-sub.Ready():
			for _, ev := range sub.Drain() {
				if err := writeSSE(w, ev); err != nil {
					log.Printf("sse write error to %s: %v", r.RemoteAddr, err)
					return
				}
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev *telemetry.Event) error {
	data, err := ev.Encode()
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Type, data)
	return err
}
