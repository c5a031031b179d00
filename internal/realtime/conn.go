package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/nfrund/relay/internal/chat"
	"github.com/nfrund/relay/internal/domain"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write one frame to the peer.
	writeWait = 10 * time.Second
	// Largest inbound frame accepted.
	maxFrameSize = 64 << 10
)

// envelope is the inbound wire format.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Conn is one live, authenticated websocket connection.
type Conn struct {
	id      string
	user    domain.User
	ws      *websocket.Conn
	limiter *rate.Limiter
	logger  *slog.Logger

	// mu guards send against a close racing a delivery.
	mu     sync.RWMutex
	send   chan []byte
	closed bool
}

func newConn(id string, user domain.User, ws *websocket.Conn, buffer int, limiter *rate.Limiter, logger *slog.Logger) *Conn {
	return &Conn{
		id:      id,
		user:    user,
		ws:      ws,
		limiter: limiter,
		logger:  logger.With("connID", id, "userID", user.ID),
		send:    make(chan []byte, buffer),
	}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Session() chat.Session {
	return chat.Session{ConnID: c.id, User: c.user}
}

// enqueue hands a frame to the write loop without blocking. It reports
// false when the connection is closed or its queue is full.
func (c *Conn) enqueue(frame []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// closeSend stops the write loop once the queue drains.
func (c *Conn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump drains the send queue onto the socket.
func (c *Conn) writePump() {
	for frame := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		err := c.ws.Write(ctx, websocket.MessageText, frame)
		cancel()
		if err != nil {
			c.logger.Warn("WebSocket write failed", "error", err)
			_ = c.ws.Close(websocket.StatusInternalError, "write failed")
			return
		}
	}
}

// readPump reads frames until the peer goes away, passing each to handle
// in arrival order.
func (c *Conn) readPump(ctx context.Context, handle func(env envelope), reject func(err error), limited func()) {
	c.ws.SetReadLimit(maxFrameSize)
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			switch {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				c.logger.Info("WebSocket closed by client")
			case errors.Is(err, io.EOF) || errors.Is(err, context.Canceled):
				c.logger.Debug("WebSocket read ended", "error", err)
			default:
				c.logger.Warn("WebSocket read error", "error", err)
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			limited()
			continue
		}
		if typ != websocket.MessageText {
			reject(fmt.Errorf("%w: binary frames are not supported", domain.ErrInvalidPayload))
			continue
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			reject(fmt.Errorf("%w: frame must be {\"event\", \"data\"}", domain.ErrInvalidPayload))
			continue
		}
		handle(env)
	}
}
