package socket

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a frame.
	writeWait = 10 * time.Second

	// Time allowed between reads before the server is considered gone.
	pongWait = 60 * time.Second

	// Ping period; must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Largest inbound frame accepted.
	maxMessageSize = 512 * 1024

	sendBuffer = 256
)

var (
	// ErrNotConnected is returned when no live connection exists.
	ErrNotConnected = errors.New("socket not connected")

	// ErrSendBufferFull is returned when the outbound queue is saturated.
	ErrSendBufferFull = errors.New("socket send buffer full")
)

// frame is the wire envelope: one JSON text frame per event.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Conn is an established connection handle. It is created only by Manager.
type Conn struct {
	ws       *websocket.Conn
	identity string
	bus      *Bus
	send     chan []byte
	done     chan struct{}
	logger   *slog.Logger

	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, identity string, logger *slog.Logger) *Conn {
	return &Conn{
		ws:       ws,
		identity: identity,
		bus:      NewBus(),
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		logger:   logger,
	}
}

// Identity returns the user the connection was opened for.
func (c *Conn) Identity() string {
	return c.identity
}

// Subscribe registers a handler for an inbound event.
func (c *Conn) Subscribe(event string, h Handler) func() {
	return c.bus.Subscribe(event, h)
}

// Emit queues an outbound event.
func (c *Conn) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	msg, err := json.Marshal(frame{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}

	select {
	case c.send <- msg:
		c.logger.Debug("event emitted", "event", event, "bytes", len(msg))
		return nil
	case <-c.done:
		return ErrNotConnected
	default:
		return ErrSendBufferFull
	}
}

// Done is closed once the connection is torn down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close tears the connection down. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = c.ws.Close()
	})
	return err
}

// run starts the write pump and blocks in the read pump until the
// connection ends.
func (c *Conn) run() {
	go c.writePump()
	c.readPump()
}

func (c *Conn) readPump() {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					c.logger.Warn("socket closed unexpectedly", "user", c.identity, "error", err)
				} else {
					c.logger.Info("socket closed", "user", c.identity)
				}
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		var f frame
		if err := json.Unmarshal(data, &f); err != nil || f.Event == "" {
			c.logger.Debug("dropping undecodable frame", "bytes", len(data), "error", err)
			continue
		}

		if n := c.bus.Dispatch(f.Event, f.Data); n == 0 {
			c.logger.Debug("no handler for event", "event", f.Event)
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Warn("socket write failed", "user", c.identity, "error", err)
				c.Close()
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Warn("socket ping failed", "user", c.identity, "error", err)
				c.Close()
				return
			}

		case <-c.done:
			return
		}
	}
}
