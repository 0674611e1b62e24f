// Package ws hosts the real-time gateway: the connection registry, the
// per-connection pumps and the topic fan-out.
package ws

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/hearthbeat/hearthbeat/internal/authz"
	"github.com/hearthbeat/hearthbeat/internal/metrics"
)

// IdentityResolver validates the connect credential. Implemented by
// auth.Resolver.
type IdentityResolver interface {
	Resolve(token string) (int64, error)
}

// SubscriptionAuthorizer is consulted before any subscribe takes effect.
// Implemented by authz.Authorizer.
type SubscriptionAuthorizer interface {
	Authorize(ctx context.Context, identity *int64, topic string) authz.Decision
}

// InboundHandler receives raw position reports published by clients.
// Implemented by location.Ingest.
type InboundHandler interface {
	HandleRaw(ctx context.Context, data []byte)
}

// Config tunes per-connection behavior.
type Config struct {
	// SendBuffer is the outbound queue length per connection; a client
	// that falls this far behind is disconnected.
	SendBuffer int
	// MaxMessageSize bounds inbound frames.
	MaxMessageSize int64
	// PublishRate and PublishBurst limit inbound position reports per
	// connection. Zero rate disables the limit.
	PublishRate  float64
	PublishBurst int
}

// Hub is the connection registry and fan-out core. Connections register
// on connect and are removed on disconnect; topic subscriptions only
// exist while the owning connection lives.
type Hub struct {
	cfg        Config
	conns      map[string]*Client          // connID -> connection
	topics     map[string]map[*Client]bool // topic -> subscribers
	register   chan *Client
	unregister chan *Client
	broadcast  chan *topicMessage
	done       chan struct{}
	mu         sync.RWMutex

	resolver   IdentityResolver
	authorizer SubscriptionAuthorizer
	inbound    InboundHandler
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

type topicMessage struct {
	topic   string
	payload []byte
}

func NewHub(cfg Config, resolver IdentityResolver, authorizer SubscriptionAuthorizer, inbound InboundHandler, m *metrics.Metrics, logger *zap.Logger) *Hub {
	return &Hub{
		cfg:        cfg,
		conns:      make(map[string]*Client),
		topics:     make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *topicMessage, 256),
		done:       make(chan struct{}),
		resolver:   resolver,
		authorizer: authorizer,
		inbound:    inbound,
		metrics:    m,
		logger:     logger,
	}
}

// Run processes hub events. Call this in a goroutine. Returns when the
// context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("hub shutting down")
			h.shutdown()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.conns[client.connID] = client
			h.mu.Unlock()
			h.metrics.ActiveConnections.Inc()
			h.logger.Debug("connection registered",
				zap.String("connID", client.connID),
				zap.Bool("authenticated", client.identity != nil),
			)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.conns[client.connID]; ok {
				delete(h.conns, client.connID)
				for topic := range client.topics {
					if subs, ok := h.topics[topic]; ok {
						delete(subs, client)
						if len(subs) == 0 {
							delete(h.topics, topic)
						}
					}
				}
				client.closeSend()
				h.metrics.ActiveConnections.Dec()
			}
			h.mu.Unlock()
			h.logger.Debug("connection unregistered", zap.String("connID", client.connID))

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg *topicMessage) {
	frame := buildDataMessage(msg.topic, msg.payload)

	h.mu.RLock()
	subs, ok := h.topics[msg.topic]
	if !ok {
		h.mu.RUnlock()
		return
	}
	// Copy subscribers to avoid holding the lock during sends.
	targets := make([]*Client, 0, len(subs))
	for client := range subs {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if client.enqueue(frame) {
			continue
		}
		// Slow consumer: close the socket so the pumps wind the
		// connection down, and queue the unregister ourselves in case
		// the pumps are already gone. Later frames from this client are
		// dropped by enqueue, never sent on a closed channel.
		if client.conn != nil {
			client.conn.Close()
		}
		go client.detach()
	}
}

// shutdown closes all live connections and releases any goroutine still
// trying to hand a connection back through register or unregister.
func (h *Hub) shutdown() {
	h.mu.Lock()
	for connID, client := range h.conns {
		client.closeSend()
		delete(h.conns, connID)
		h.metrics.ActiveConnections.Dec()
	}
	h.topics = make(map[string]map[*Client]bool)
	h.mu.Unlock()

	close(h.done)
}

// Subscribe attaches an authorized connection to a topic.
func (h *Hub) Subscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Client]bool)
	}
	h.topics[topic][client] = true
	client.topics[topic] = true

	h.logger.Debug("subscribed",
		zap.String("connID", client.connID),
		zap.String("topic", topic),
	)
}

// Unsubscribe detaches a connection from a topic.
func (h *Hub) Unsubscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.topics[topic]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	delete(client.topics, topic)

	h.logger.Debug("unsubscribed",
		zap.String("connID", client.connID),
		zap.String("topic", topic),
	)
}

// Publish queues a payload for delivery to all current subscribers of a
// topic. Fire-and-forget: no retries and no buffering beyond the
// broadcast queue.
func (h *Hub) Publish(topic string, payload []byte) {
	select {
	case h.broadcast <- &topicMessage{topic: topic, payload: payload}:
	case <-h.done:
	}
}

// ActiveTopics returns the topics that currently have subscribers.
func (h *Hub) ActiveTopics() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var topics []string
	for topic, subs := range h.topics {
		if len(subs) > 0 {
			topics = append(topics, topic)
		}
	}
	return topics
}
