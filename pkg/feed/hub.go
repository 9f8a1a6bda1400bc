package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"urbanmove/pkg/metrics"
	"urbanmove/pkg/types"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
)

// Hub is a WebSocket endpoint that fans GPS_UPDATE envelopes out to every
// connected subscriber.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
}

type subscriber struct {
	conn     *websocket.Conn
	ticketID string
	send     chan []byte
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			// Development feed; browsers on any origin may subscribe.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:      logger.With("component", "feed"),
		subscribers: make(map[*subscriber]struct{}),
	}
}

// ServeHTTP upgrades the request and blocks until the subscriber leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	sub := &subscriber{
		conn:     conn,
		ticketID: r.URL.Query().Get("ticketId"),
		send:     make(chan []byte, sendBuffer),
	}
	h.add(r.Context(), sub)
	defer h.remove(context.Background(), sub)

	go h.writePump(sub)
	h.readPump(sub)
}

func (h *Hub) add(ctx context.Context, sub *subscriber) {
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	n := len(h.subscribers)
	h.mu.Unlock()

	metrics.RecordFeedSubscriber(ctx, 1)
	h.logger.Info("Subscriber connected", "ticket_id", sub.ticketID, "subscribers", n)
}

func (h *Hub) remove(ctx context.Context, sub *subscriber) {
	h.mu.Lock()
	if _, ok := h.subscribers[sub]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.subscribers, sub)
	close(sub.send)
	n := len(h.subscribers)
	h.mu.Unlock()

	sub.conn.Close()
	metrics.RecordFeedSubscriber(ctx, -1)
	h.logger.Info("Subscriber disconnected", "ticket_id", sub.ticketID, "subscribers", n)
}

// readPump drains inbound frames so control messages are processed.
func (h *Hub) readPump(sub *subscriber) {
	for {
		_, data, err := sub.conn.ReadMessage()
		if err != nil {
			return
		}
		h.logger.Debug("Subscriber message", "ticket_id", sub.ticketID, "bytes", len(data))
	}
}

func (h *Hub) writePump(sub *subscriber) {
	for msg := range sub.send {
		sub.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debug("Write to subscriber failed", "ticket_id", sub.ticketID, "error", err)
			sub.conn.Close()
			return
		}
	}
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
	sub.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// Broadcast sends one GPS_UPDATE envelope per position to every subscriber.
// A subscriber whose buffer is full misses the message. It returns the number
// of envelopes queued.
func (h *Hub) Broadcast(ctx context.Context, positions []types.PositionEvent) (int, error) {
	messages := make([][]byte, 0, len(positions))
	for _, p := range positions {
		env, err := types.NewGPSUpdate(p)
		if err != nil {
			return 0, err
		}
		data, err := json.Marshal(env)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal envelope: %w", err)
		}
		messages = append(messages, data)
	}

	queued := 0
	h.mu.RLock()
	for sub := range h.subscribers {
		for _, msg := range messages {
			select {
			case sub.send <- msg:
				queued++
			default:
				h.logger.Warn("Subscriber too slow, dropping update", "ticket_id", sub.ticketID)
			}
		}
	}
	h.mu.RUnlock()

	metrics.RecordFeedBroadcast(ctx, queued)
	return queued, nil
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		h.remove(context.Background(), sub)
	}
}
