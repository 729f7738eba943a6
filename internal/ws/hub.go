package ws

import (
	"context"
	"log/slog"
	"sync"

	"chat-gateway/internal/observability"
)

// Hub tracks live clients and their conversation rooms.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[*Client]struct{}
	joined  map[*Client]map[string]struct{}

	// emitMu serialises emissions so every room member observes the same order.
	emitMu sync.Mutex

	events *observability.Events
	log    *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(events *observability.Events, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[*Client]struct{}),
		joined:  make(map[*Client]map[string]struct{}),
		events:  events,
		log:     log,
	}
}

// Register adds a client so it can receive personal and global events.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.info.ConnID] = c
	h.joined[c] = make(map[string]struct{})
}

// Unregister removes the client from every room and returns how many rooms it left.
func (h *Hub) Unregister(c *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	rooms := h.joined[c]
	for conversationID := range rooms {
		h.leaveLocked(conversationID, c)
	}
	delete(h.joined, c)
	delete(h.clients, c.info.ConnID)
	return len(rooms)
}

// Join subscribes the client to a conversation room.
func (h *Hub) Join(conversationID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.info.ConnID]; !ok {
		return
	}
	members, ok := h.rooms[conversationID]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[conversationID] = members
	}
	members[c] = struct{}{}
	h.joined[c][conversationID] = struct{}{}
}

// Leave unsubscribes the client from a conversation room.
func (h *Hub) Leave(conversationID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(conversationID, c)
}

func (h *Hub) leaveLocked(conversationID string, c *Client) {
	if members, ok := h.rooms[conversationID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, conversationID)
		}
	}
	if rooms, ok := h.joined[c]; ok {
		delete(rooms, conversationID)
	}
}

// InRoom reports whether the client has joined the conversation room.
func (h *Hub) InRoom(conversationID string, c *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[conversationID][c]
	return ok
}

// RoomSize returns the number of clients joined to a room.
func (h *Hub) RoomSize(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// Client returns the live client with connID.
func (h *Hub) Client(connID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[connID]
	return c, ok
}

// EmitToRoom sends an event to every client in the room except skip.
func (h *Hub) EmitToRoom(conversationID, event string, data any, skip *Client) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[conversationID]))
	for c := range h.rooms[conversationID] {
		if c != skip {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	h.emit(targets, event, nil, data)
}

// EmitToConns sends an event to the named connections.
func (h *Hub) EmitToConns(connIDs []string, event string, data any) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(connIDs))
	for _, id := range connIDs {
		if c, ok := h.clients[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	h.emit(targets, event, nil, data)
}

// EmitAll sends an event to every live client.
func (h *Hub) EmitAll(event string, data any) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	h.emit(targets, event, nil, data)
}

// EmitTo sends an event, optionally acknowledging a request, to a single client.
func (h *Hub) EmitTo(c *Client, event string, ack *int64, data any) {
	h.emit([]*Client{c}, event, ack, data)
}

func (h *Hub) emit(targets []*Client, event string, ack *int64, data any) {
	if len(targets) == 0 {
		return
	}
	payload, err := encodeFrame(event, ack, data)
	if err != nil {
		h.log.Error("encode frame failed", "event", event, "error", err)
		return
	}

	h.emitMu.Lock()
	var slow []*Client
	for _, c := range targets {
		if !c.enqueue(payload) && !c.closed() {
			slow = append(slow, c)
		}
	}
	h.emitMu.Unlock()

	observability.IncWSEvent("out", event)
	for _, c := range slow {
		h.log.Warn("closing slow websocket client", "conn_id", c.info.ConnID, "user_id", c.info.UserID, "event", event)
		h.publishLifecycle(context.Background(), c, "ws_error", "send queue full")
		c.close()
	}
}

func (h *Hub) publishLifecycle(ctx context.Context, c *Client, event, reason string) {
	h.mu.RLock()
	rooms := len(h.joined[c])
	h.mu.RUnlock()

	if c.info.RequestID != "" {
		ctx = observability.WithRequestID(ctx, c.info.RequestID)
	}
	h.events.Emit(ctx, observability.RoutingWSLifecycle, "ws_events", event, c.info.lifecyclePayload(event, reason, rooms))
	observability.IncWSEvent("lifecycle", event)
}
