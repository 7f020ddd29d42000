// Package feed broadcasts sale events to websocket subscribers.
package feed

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"token-launchpad/internal/observability"
)

// HubConfig configures subscriber connection behavior.
type HubConfig struct {
	// SendBuffer is the per-subscriber outgoing message buffer. A subscriber
	// that falls this far behind starts dropping messages.
	SendBuffer int
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultHubConfig returns default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SendBuffer:   256,
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Hub upgrades HTTP requests to websocket connections and fans events out
// to every connected subscriber. Slow subscribers drop messages rather than
// stall the publisher.
type Hub struct {
	logger  *log.Logger
	config  HubConfig
	metrics *observability.Metrics

	upgrader websocket.Upgrader

	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}

	closed atomic.Bool
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// NewHub creates a new Hub.
func NewHub(logger *log.Logger, config *HubConfig) *Hub {
	cfg := DefaultHubConfig()
	if config != nil {
		cfg = *config
	}

	return &Hub{
		logger:  logger,
		config:  cfg,
		metrics: observability.DefaultMetrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		subscribers: make(map[*subscriber]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the connection as a subscriber.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.closed.Load() {
		http.Error(w, "feed closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("feed upgrade failed: %v", err)
		return
	}

	sub := &subscriber{
		conn: conn,
		send: make(chan []byte, h.config.SendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	n := len(h.subscribers)
	h.mu.Unlock()
	h.metrics.FeedSubscribers.Set(float64(n))

	go h.writeLoop(sub)
	go h.readLoop(sub)
}

// Publish marshals v once and broadcasts it to all subscribers.
func (h *Hub) Publish(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Printf("feed marshal failed: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers {
		select {
		case sub.send <- data:
			h.metrics.FeedEventsSent.Inc()
		default:
			// Subscriber buffer full, drop the message
			h.metrics.FeedSendErrors.Inc()
		}
	}
}

// SubscriberCount returns the current number of subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close disconnects all subscribers. The hub accepts no new connections after.
func (h *Hub) Close() {
	if h.closed.Swap(true) {
		return
	}

	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		h.remove(sub)
	}
}

// remove unregisters a subscriber and closes its connection.
func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[sub]
	if ok {
		delete(h.subscribers, sub)
	}
	n := len(h.subscribers)
	h.mu.Unlock()

	if !ok {
		return
	}
	h.metrics.FeedSubscribers.Set(float64(n))

	sub.once.Do(func() { close(sub.done) })
	sub.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	sub.conn.Close()
}

// writeLoop delivers queued messages and periodic pings to one subscriber.
func (h *Hub) writeLoop(sub *subscriber) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sub.done:
			return
		case data := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.remove(sub)
				return
			}
		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(sub)
				return
			}
		}
	}
}

// readLoop discards inbound messages and detects disconnects.
func (h *Hub) readLoop(sub *subscriber) {
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			h.remove(sub)
			return
		}
	}
}
