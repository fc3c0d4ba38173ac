package services

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"mega/chat-service/models"
	"mega/chat-service/utils"
)

// UserRoom names the private per-user notification room.
func UserRoom(userID uint) string {
	return fmt.Sprintf("user-%d", userID)
}

// ConversationRoom names the fan-out room for a conversation.
func ConversationRoom(conversationID uint) string {
	return fmt.Sprintf("conversation-%d", conversationID)
}

// Hub is the connection registry: it maps live connections to the
// rooms they joined and provides the broadcast primitives. Several
// connections may carry the same user (multi-tab); each joins rooms
// independently.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
	rooms   map[string]map[uuid.UUID]*Client
	logger  *utils.Logger
}

func NewHub(logger *utils.Logger) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]*Client),
		rooms:   make(map[string]map[uuid.UUID]*Client),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	h.logger.Info("Client registered", "client_id", client.ID, "user_id", client.UserID, "total", len(h.clients))
}

// Unregister removes a client from the hub and from every room it
// joined, then closes its send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}

	for room := range client.rooms {
		h.leaveRoomLocked(room, client)
	}
	delete(h.clients, client.ID)
	close(client.Send)

	h.logger.Info("Client unregistered", "client_id", client.ID, "user_id", client.UserID, "total", len(h.clients))
}

// JoinRoom adds a client to a named room. Idempotent.
func (h *Hub) JoinRoom(room string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[uuid.UUID]*Client)
		h.rooms[room] = members
	}
	members[client.ID] = client
	client.rooms[room] = struct{}{}

	h.logger.Debug("Client joined room", "client_id", client.ID, "room", room)
}

func (h *Hub) leaveRoomLocked(room string, client *Client) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, client.ID)
	delete(client.rooms, room)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// InRoom reports whether the client currently belongs to the room.
func (h *Hub) InRoom(room string, client *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members, ok := h.rooms[room]
	if !ok {
		return false
	}
	_, ok = members[client.ID]
	return ok
}

// RoomSize returns the number of connections in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// BroadcastAll sends an event to every connected client.
func (h *Hub) BroadcastAll(event models.ServerEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		h.deliver(client, event)
	}
}

// BroadcastRoom sends an event to every client in a room.
func (h *Hub) BroadcastRoom(room string, event models.ServerEvent) {
	h.BroadcastRoomExcept(room, event, uuid.Nil)
}

// BroadcastRoomExcept sends an event to every client in a room except
// the one identified by excludeID.
func (h *Hub) BroadcastRoomExcept(room string, event models.ServerEvent, excludeID uuid.UUID) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, client := range h.rooms[room] {
		if id == excludeID {
			continue
		}
		h.deliver(client, event)
	}
}

// deliver is a non-blocking send; a client whose buffer is full drops
// the event rather than stalling the broadcaster.
func (h *Hub) deliver(client *Client, event models.ServerEvent) {
	select {
	case client.Send <- event:
	default:
		h.logger.Warn("Dropping event, send buffer full", "client_id", client.ID, "event", event.Event)
	}
}
