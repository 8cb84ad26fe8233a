package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/bus"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 512                 // Maximum message size allowed from peer.
)

// client is one dashboard connection. writePump is the only writer on conn;
// readPump is the only reader.
type client struct {
	conn    *websocket.Conn
	sub     *bus.Subscriber
	seq     func() uint64
	control chan []byte
	addr    string
}

func newClient(conn *websocket.Conn, sub *bus.Subscriber, seq func() uint64, addr string) *client {
	return &client{
		conn:    conn,
		sub:     sub,
		seq:     seq,
		control: make(chan []byte, 4),
		addr:    addr,
	}
}

// serve runs both pumps until either side fails or ctx is done.
func (c *client) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump(ctx, cancel)
	}()
	c.readPump(ctx, cancel)
	<-done
}

func (c *client) readPump(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && ctx.Err() == nil {
				log.Printf("ws read error from %s: %v", c.addr, err)
			}
			return
		}
		var msg ClientMessage
		if json.Unmarshal(data, &msg) != nil || msg.Type != MsgPing {
			continue
		}
		pong, err := json.Marshal(PongMessage{Type: MsgPong, Sequence: c.seq(), Timestamp: time.Now()})
		if err != nil {
			continue
		}
		select {
		case c.control <- pong:
		default:
			// A client flooding pings gets fewer answers.
		}
	}
}

func (c *client) writePump(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			c.closeWith(websocket.CloseGoingAway, "server shutting down")
			return
		case <-c.sub.Done():
			if errors.Is(c.sub.Err(), bus.ErrOverrun) {
				c.closeWith(websocket.CloseTryAgainLater, "too slow")
			} else {
				c.closeWith(websocket.CloseNormalClosure, "")
			}
			return
		case <-c.sub.Ready():
			for _, ev := range c.sub.Drain() {
				data, err := ev.Encode()
				if err != nil {
					log.Printf("ws encode error: %v", err)
					continue
				}
				if err := c.write(websocket.TextMessage, data); err != nil {
					return
				}
			}
		case msg := <-c.control:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) write(messageType int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

// closeWith sends a best-effort close frame.
func (c *client) closeWith(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
