// Package realtime owns the websocket connections: it authenticates the
// upgrade, runs each connection's read and write loops, and delivers
// encoded frames to sockets by connection id.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/relay/internal/chat"
	"github.com/nfrund/relay/internal/domain"
	"github.com/nfrund/relay/internal/metrics"
	"github.com/nfrund/relay/internal/pubsub"
	"golang.org/x/time/rate"
)

// Authenticator resolves the credential on an upgrade request.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*domain.User, error)
}

// Lifecycle is told when a connection opens and closes.
type Lifecycle interface {
	Connect(ctx context.Context, userID, connID string)
	Disconnect(ctx context.Context, userID, connID string)
}

// EventHandler processes inbound events. chat.Router implements it.
type EventHandler interface {
	Handle(ctx context.Context, sess chat.Session, event string, data json.RawMessage)
	Reject(ctx context.Context, sess chat.Session, event string, err error)
}

// RoomDropper forgets a closed connection's room memberships.
type RoomDropper interface {
	Drop(connID string) []string
}

// Hub tracks live connections by id.
type Hub struct {
	auth      Authenticator
	lifecycle Lifecycle
	events    EventHandler
	rooms     RoomDropper
	logger    *slog.Logger
	metrics   *metrics.Metrics

	sendBuffer     int
	eventsPerSec   float64
	eventBurst     int
	handlerTimeout time.Duration
	closeGrace     time.Duration
	origins        []string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	conns   map[string]*Conn
	closing bool
}

// Option configures a Hub.
type Option func(*Hub)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) { h.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithSendBuffer sets the per-connection outbound queue length.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithRateLimit caps inbound events per connection. A non-positive rate disables the limit.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(h *Hub) {
		h.eventsPerSec = perSecond
		h.eventBurst = burst
	}
}

// WithHandlerTimeout bounds each inbound event's processing.
func WithHandlerTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.handlerTimeout = d
		}
	}
}

// WithCloseGrace bounds how long Close waits for peers to answer the close
// handshake before dropping their sockets.
func WithCloseGrace(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.closeGrace = d
		}
	}
}

// WithOriginPatterns restricts cross-origin upgrades to the given host
// patterns. With none, any origin is accepted.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Hub) { h.origins = patterns }
}

func NewHub(auth Authenticator, lifecycle Lifecycle, events EventHandler, rooms RoomDropper, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		auth:           auth,
		lifecycle:      lifecycle,
		events:         events,
		rooms:          rooms,
		logger:         slog.Default(),
		sendBuffer:     256,
		handlerTimeout: 10 * time.Second,
		closeGrace:     2 * time.Second,
		ctx:            ctx,
		cancel:         cancel,
		conns:          make(map[string]*Conn),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("service", "realtime")
	return h
}

// Handler upgrades authenticated requests. Rejected credentials get a
// 401 with a JSON error body and never touch presence.
func (h *Hub) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		r := c.Request()
		if h.isClosing() {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "server shutting down"})
		}

		user, err := h.auth.Authenticate(r.Context(), r)
		if err != nil {
			code := domain.ErrorCode(err)
			h.metrics.AuthRejected(string(code))
			h.logger.WarnContext(r.Context(), "WebSocket upgrade rejected", "code", code, "remote", c.RealIP(), "error", err)
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": authMessage(code), "code": string(code)})
		}

		ws, err := websocket.Accept(c.Response(), r, &websocket.AcceptOptions{
			OriginPatterns:     h.origins,
			InsecureSkipVerify: len(h.origins) == 0,
		})
		if err != nil {
			// Accept has already written the response.
			h.logger.WarnContext(r.Context(), "Failed to upgrade connection to WebSocket", "userID", user.ID, "error", err)
			return nil
		}

		h.serve(newConn(uuid.NewString(), *user, ws, h.sendBuffer, h.newLimiter(), h.logger))
		return nil
	}
}

func (h *Hub) newLimiter() *rate.Limiter {
	if h.eventsPerSec <= 0 {
		return nil
	}
	burst := h.eventBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(h.eventsPerSec), burst)
}

// serve runs the connection until it closes.
func (h *Hub) serve(conn *Conn) {
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		_ = conn.ws.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	h.wg.Add(1)
	h.conns[conn.id] = conn
	h.mu.Unlock()
	defer h.wg.Done()

	sess := conn.Session()
	conn.logger.Info("WebSocket connected")
	go conn.writePump()
	h.lifecycle.Connect(h.ctx, sess.UserID(), sess.ConnID)

	conn.readPump(h.ctx,
		func(env envelope) {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(h.ctx), h.handlerTimeout)
			defer cancel()
			h.events.Handle(ctx, sess, env.Event, env.Data)
		},
		func(err error) {
			h.events.Reject(h.ctx, sess, "", err)
		},
		func() {
			h.metrics.RateLimited()
			conn.logger.Warn("Inbound event rate limited")
		},
	)

	h.remove(conn)
	rooms := h.rooms.Drop(conn.id)
	h.lifecycle.Disconnect(context.WithoutCancel(h.ctx), sess.UserID(), sess.ConnID)
	conn.closeSend()
	if !h.isClosing() {
		// during Close the socket is owned by the GoingAway handshake
		_ = conn.ws.Close(websocket.StatusNormalClosure, "")
	}
	conn.logger.Info("WebSocket disconnected", "rooms", len(rooms))
}

func (h *Hub) remove(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[conn.id] == conn {
		delete(h.conns, conn.id)
	}
}

func (h *Hub) isClosing() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closing
}

// Send queues frame on each listed connection. Unknown ids are skipped
// and full queues drop the frame for that connection only.
func (h *Hub) Send(ctx context.Context, connIDs []string, frame []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, id := range connIDs {
		conn, ok := h.conns[id]
		if !ok {
			continue
		}
		if !conn.enqueue(frame) {
			h.metrics.FrameDropped()
			conn.logger.WarnContext(ctx, "Client send queue full, dropping frame")
		}
	}
	return nil
}

// Deliver handles a Delivery received from the bus.
func (h *Hub) Deliver(ctx context.Context, d Delivery) error {
	return h.Send(ctx, d.ConnIDs, d.Frame)
}

// Subscribe attaches the hub to DeliveryEvent on sub.
func (h *Hub) Subscribe(ctx context.Context, sub pubsub.Subscriber) error {
	return pubsub.Subscribe(ctx, sub, DeliveryEvent, h.Deliver)
}

// ConnectionCount returns the number of open connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close stops accepting upgrades, closes every connection with
// StatusGoingAway and waits for their cleanup or ctx. Peers that have not
// finished the handshake after the close grace period have their reads
// cancelled, which drops the socket.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		go func() { _ = c.ws.Close(websocket.StatusGoingAway, "server shutting down") }()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	grace := time.NewTimer(h.closeGrace)
	defer grace.Stop()
	select {
	case <-done:
	case <-grace.C:
		h.logger.Warn("Close handshake grace expired, dropping connections", "remaining", h.ConnectionCount())
		h.cancel()
		select {
		case <-done:
		case <-ctx.Done():
			h.logger.Warn("Timed out waiting for connections to close", "remaining", h.ConnectionCount())
		}
	case <-ctx.Done():
		h.logger.Warn("Timed out waiting for connections to close", "remaining", h.ConnectionCount())
	}
	h.cancel()
	return ctx.Err()
}

func authMessage(code domain.Code) string {
	if code == domain.CodeAuthMissing {
		return domain.ErrAuthMissing.Error()
	}
	return domain.ErrAuthInvalid.Error()
}
