// Package realtime pushes order events to dashboard WebSocket connections.
// Connections subscribe to one tenant's room; events fan out room by room.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chowline/internal/model"
)

// OrderEvent is the wire shape pushed to dashboards.
type OrderEvent struct {
	TenantID string            `json:"tenant_id"`
	OrderID  string            `json:"order_id"`
	Previous model.OrderStatus `json:"previous_status"`
	Status   model.OrderStatus `json:"status"`
	At       time.Time         `json:"at"`
}

// Subscription attaches a connection to a tenant's room.
type Subscription struct {
	TenantID string
	Conn     *websocket.Conn
}

// Hub manages WebSocket clients and broadcasts order events to the owning
// tenant's room.
type Hub struct {
	rooms      map[string]map[*websocket.Conn]struct{}
	tenantOf   map[*websocket.Conn]string
	Register   chan Subscription
	Unregister chan *websocket.Conn
	Events     chan OrderEvent
	mu         sync.Mutex
}

// NewHub constructs a Hub.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*websocket.Conn]struct{}),
		tenantOf:   make(map[*websocket.Conn]string),
		Register:   make(chan Subscription),
		Unregister: make(chan *websocket.Conn),
		Events:     make(chan OrderEvent),
	}
}

// Run processes register/unregister/event messages until the process exits.
func (h *Hub) Run() {
	for {
		select {
		case sub := <-h.Register:
			h.mu.Lock()
			room, ok := h.rooms[sub.TenantID]
			if !ok {
				room = make(map[*websocket.Conn]struct{})
				h.rooms[sub.TenantID] = room
			}
			room[sub.Conn] = struct{}{}
			h.tenantOf[sub.Conn] = sub.TenantID
			h.mu.Unlock()
		case conn := <-h.Unregister:
			h.mu.Lock()
			h.drop(conn)
			h.mu.Unlock()
			conn.Close()
		case ev := <-h.Events:
			msg, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			h.mu.Lock()
			for conn := range h.rooms[ev.TenantID] {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					h.drop(conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop removes a connection from its room. Caller holds the lock.
func (h *Hub) drop(conn *websocket.Conn) {
	tenantID, ok := h.tenantOf[conn]
	if !ok {
		return
	}
	delete(h.tenantOf, conn)
	room := h.rooms[tenantID]
	delete(room, conn)
	if len(room) == 0 {
		delete(h.rooms, tenantID)
	}
}
