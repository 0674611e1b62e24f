package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hearthbeat/hearthbeat/internal/authz"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // mobile clients connect cross-origin
}

// Client is one live WebSocket connection. identity is set once during
// the connect handshake, before the pumps start, and never written again;
// all later authorization checks read it without locking.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	connID   string
	identity *int64
	topics   map[string]bool
	limiter  *rate.Limiter
	logger   *zap.Logger

	mu     sync.Mutex // guards send against close
	closed bool
}

// enqueue queues a frame for the write pump without blocking. Reports
// false when the buffer is full or the outbound queue is already closed;
// in both cases the frame is dropped.
func (c *Client) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
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

// closeSend closes the outbound queue exactly once. Every producer goes
// through enqueue, so the close cannot race a send.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// detach hands the connection back to the hub for cleanup. Does not
// block once the hub has shut down.
func (c *Client) detach() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
}

// HandleWS upgrades a connection and attaches it to the hub. The bearer
// credential is an optional "token" query parameter; a missing or invalid
// credential degrades to an unauthenticated connection, it never refuses
// the connect.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	var identity *int64
	if token := r.URL.Query().Get("token"); token != "" {
		userID, err := h.resolver.Resolve(token)
		if err != nil {
			h.logger.Warn("credential rejected, continuing unauthenticated", zap.Error(err))
		} else {
			identity = &userID
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	limit := rate.Inf
	if h.cfg.PublishRate > 0 {
		limit = rate.Limit(h.cfg.PublishRate)
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, h.cfg.SendBuffer),
		connID:   uuid.New().String(),
		identity: identity,
		topics:   make(map[string]bool),
		limiter:  rate.NewLimiter(limit, h.cfg.PublishBurst),
		logger:   h.logger,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}
	client.enqueue(buildConnectedMessage(client.connID, client.identity))

	go client.writePump()
	go client.readPump()
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.detach()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error",
					zap.String("connID", c.connID),
					zap.Error(err),
				)
			}
			break
		}
		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed, send close message.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("websocket write error",
					zap.String("connID", c.connID),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes one inbound frame. Each connection's frames
// arrive sequentially on its own readPump goroutine, so a slow
// membership lookup here only ever blocks this connection.
func (c *Client) handleMessage(data []byte) {
	msg, err := parseUpstreamMessage(data)
	if err != nil {
		c.logger.Debug("failed to parse upstream message",
			zap.String("connID", c.connID),
			zap.Error(err),
		)
		return
	}

	switch m := msg.(type) {
	case *subscribeRequest:
		c.handleSubscribe(m)

	case *unsubscribeRequest:
		c.hub.Unsubscribe(c, m.topic)
		if m.ackID != nil {
			c.enqueue(buildAckMessage(*m.ackID, true, "", ""))
		}

	case *publishRequest:
		if !c.limiter.Allow() {
			c.logger.Debug("publish rate exceeded, dropping report", zap.String("connID", c.connID))
			return
		}
		c.hub.inbound.HandleRaw(context.Background(), m.data)

	case *pingRequest:
		c.enqueue(buildPongMessage())
	}
}

// handleSubscribe runs the subscribe through the authorizer before it
// takes effect. A rejection fails only this subscribe; the connection
// stays open.
func (c *Client) handleSubscribe(m *subscribeRequest) {
	decision := c.hub.authorizer.Authorize(context.Background(), c.identity, m.topic)
	if !decision.Allowed {
		c.logger.Debug("subscribe rejected",
			zap.String("connID", c.connID),
			zap.String("topic", m.topic),
			zap.String("reason", decision.Reason),
		)
		if m.ackID != nil {
			c.enqueue(buildAckMessage(*m.ackID, false, errorName(decision.Reason), decision.Reason))
		}
		return
	}

	c.hub.Subscribe(c, m.topic)
	if m.ackID != nil {
		c.enqueue(buildAckMessage(*m.ackID, true, "", ""))
	}
}

func errorName(reason string) string {
	switch reason {
	case authz.ReasonUnauthenticated:
		return "Unauthorized"
	case authz.ReasonNotMember:
		return "Forbidden"
	default:
		return "InternalServerError"
	}
}
