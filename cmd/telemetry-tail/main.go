// Command telemetry-tail subscribes to a running server and prints every
// event it receives, reconnecting when the connection drops.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/telemetry"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
)

type tailer struct {
	url     string
	types   map[telemetry.EventType]bool
	out     io.Writer
	dialer  *websocket.Dialer
	backoff *backoff.Backoff

	lastSeq uint64
	gaps    uint64
}

func main() {
	url := flag.String("url", "ws://localhost:5000/ws", "WebSocket endpoint")
	types := flag.String("types", "", "Comma separated event types to print (default all)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	t := newTailer(*url, *types, os.Stdout)
	t.run(ctx)
	log.Printf("tail: %d sequence gaps observed", t.gaps)
}

func newTailer(url, types string, out io.Writer) *tailer {
	t := &tailer{
		url:    url,
		out:    out,
		dialer: websocket.DefaultDialer,
		backoff: &backoff.Backoff{
			Min:    500 * time.Millisecond,
			Max:    10 * time.Second,
			Factor: 2,
			Jitter: true,
		},
	}
	if types != "" {
		t.types = make(map[telemetry.EventType]bool)
		for _, name := range strings.Split(types, ",") {
			t.types[telemetry.EventType(strings.TrimSpace(name))] = true
		}
	}
	return t
}

// run keeps a connection open until ctx is done.
func (t *tailer) run(ctx context.Context) {
	for ctx.Err() == nil {
		err := t.session(ctx)
		if ctx.Err() != nil {
			return
		}
		wait := t.backoff.Duration()
		log.Printf("tail: %v, reconnecting in %s", err, wait.Round(time.Millisecond))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// session reads one connection to completion.
func (t *tailer) session(ctx context.Context) error {
	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.url, err)
	}
	defer conn.Close()
	log.Printf("tail: connected to %s", t.url)

	stop := context.AfterFunc(ctx, func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	// The server greets with the current state, so sequence tracking
	// restarts with every connection.
	t.lastSeq = 0
	first := true
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseTryAgainLater {
				return fmt.Errorf("server dropped us for reading too slowly: %w", err)
			}
			return err
		}
		if first {
			t.backoff.Reset()
			first = false
		}
		t.handle(data)
	}
}

func (t *tailer) handle(data []byte) {
	var env telemetry.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("tail: bad message: %v", err)
		return
	}
	if env.Type == telemetry.EventTelemetry {
		if t.lastSeq != 0 && env.Sequence > t.lastSeq+1 {
			t.gaps++
			fmt.Fprintf(t.out, "# gap: %d events missed\n", env.Sequence-t.lastSeq-1)
		}
		t.lastSeq = env.Sequence
	}
	if t.types != nil && !t.types[env.Type] {
		return
	}
	fmt.Fprintf(t.out, "%s %-9s #%d %s\n", env.Timestamp.Format("15:04:05.000"), env.Type, env.Sequence, env.Payload)
}
