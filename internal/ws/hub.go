package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Hub fans detection events out to the websocket clients watching a call.
type Hub struct {
	clients    map[*Client]bool
	calls      map[string]map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	// done is closed once Run has returned.
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		calls:      make(map[string]map[*Client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is done, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.stopOnce.Do(func() { close(h.done) })
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case event := <-h.broadcast:
			h.broadcastToCall(event)
		}
	}
}

// Register subscribes client. It reports false when the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes client. After the hub stopped every client is already
// gone, so it returns immediately.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true

	if h.calls[client.callID] == nil {
		h.calls[client.callID] = make(map[*Client]bool)
	}
	h.calls[client.callID][client] = true
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dropLocked(client)
}

func (h *Hub) dropLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	delete(h.calls[client.callID], client)

	if len(h.calls[client.callID]) == 0 {
		delete(h.calls, client.callID)
	}

	close(client.send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		h.dropLocked(client)
	}
}

func (h *Hub) broadcastToCall(event Event) {
	message, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.calls[event.CallID] {
		select {
		case client.send <- message:
		default:
			// Slow consumer; drop it rather than block the hub.
			h.dropLocked(client)
		}
	}
}

// BroadcastToCall queues an event for every client subscribed to callID.
// It never blocks; events are dropped when the queue is full.
func (h *Hub) BroadcastToCall(callID string, eventType EventType, data interface{}) {
	event := Event{
		CallID:    callID,
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- event:
	default:
	}
}

func (h *Hub) GetConnectedClients(callID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.calls[callID])
}
