// Package ws is the realtime engine: it tracks the connection set per
// room, dispatches the session protocol, and fans accepted edits out to
// the room. A single Run goroutine serves every room, which is what
// makes last-write-wins deterministic: edits are applied and broadcast
// in the exact order they arrive here.
package ws

import (
	"sync"
	"time"

	"github.com/pairpad/pairpad/internal/logging"
	"github.com/pairpad/pairpad/internal/persist"
	"github.com/pairpad/pairpad/internal/registry"
)

// editEvent is an accepted code_update travelling from a client's read
// pump to the dispatch loop.
type editEvent struct {
	RoomID string
	Code   string
	Sender *Client
}

type Hub struct {
	registry *registry.Registry
	writer   *persist.Writer

	// Registered clients by room
	rooms map[string]map[*Client]bool

	// Inbound edits from clients
	broadcast chan *editEvent

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Server-initiated teardown of one room
	closeRoom chan string

	// Server-initiated teardown of everything
	shutdown chan chan struct{}

	mu sync.RWMutex
}

func NewHub(reg *registry.Registry, writer *persist.Writer) *Hub {
	return &Hub{
		registry:   reg,
		writer:     writer,
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan *editEvent),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		closeRoom:  make(chan string),
		shutdown:   make(chan chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case event := <-h.broadcast:
			h.handleEdit(event)

		case roomID := <-h.closeRoom:
			h.handleCloseRoom(roomID)

		case done := <-h.shutdown:
			h.mu.Lock()
			for roomID := range h.rooms {
				h.teardownRoomLocked(roomID)
			}
			h.mu.Unlock()
			close(done)
			// Keep serving unregister requests from read pumps that
			// are still winding down.
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	h.mu.Lock()
	if _, ok := h.rooms[client.roomID]; !ok {
		h.rooms[client.roomID] = make(map[*Client]bool)
	}
	h.rooms[client.roomID][client] = true
	count := len(h.rooms[client.roomID])
	h.mu.Unlock()

	// The joiner gets the current buffer before any live traffic.
	room, err := h.registry.Get(client.roomID)
	if err != nil {
		// Room vanished between the join check and registration.
		logging.Warn().Err(err).Str("room", client.roomID).Msg("room gone at register time")
		h.handleUnregister(client)
		return
	}
	client.trySend(snapshotMessage(room.Code, room.Language))

	h.broadcastToRoom(client.roomID, userCountMessage(count), nil)

	logging.Info().Str("room", client.roomID).Int("connections", count).Msg("client joined room")
}

func (h *Hub) handleUnregister(client *Client) {
	h.mu.Lock()
	clients, ok := h.rooms[client.roomID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(clients, client)
	close(client.send)

	remaining := len(clients)
	if remaining == 0 {
		delete(h.rooms, client.roomID)
	}
	h.mu.Unlock()

	if remaining == 0 {
		h.registry.ScheduleEvict(client.roomID)
		logging.Info().Str("room", client.roomID).Msg("room empty, eviction scheduled")
	} else {
		h.broadcastToRoom(client.roomID, userCountMessage(remaining), nil)
		logging.Info().Str("room", client.roomID).Int("remaining", remaining).Msg("client left room")
	}
}

func (h *Hub) handleEdit(event *editEvent) {
	appliedAt, err := h.registry.ApplyEdit(event.RoomID, event.Code)
	if err != nil {
		logging.Warn().Err(err).Str("room", event.RoomID).Msg("dropping edit for unknown room")
		return
	}

	// The sender already has the authoritative text locally.
	h.broadcastToRoom(event.RoomID, codeUpdateMessage(event.Code), event.Sender)

	// Durability is fire-and-forget off the broadcast path.
	h.writer.Enqueue(event.RoomID, event.Code, appliedAt)

	logging.Debug().Str("room", event.RoomID).Time("applied_at", appliedAt).Msg("edit broadcast")
}

// broadcastToRoom delivers a message to every connection in a room
// except exclude. It iterates a point-in-time copy of the set; a dead
// channel is flagged and removed afterwards rather than in-place.
func (h *Hub) broadcastToRoom(roomID string, message []byte, exclude *Client) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[roomID]))
	for client := range h.rooms[roomID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	var failed []*Client
	for _, client := range clients {
		if client == exclude {
			continue
		}
		if !client.trySend(message) {
			failed = append(failed, client)
		}
	}

	for _, client := range failed {
		logging.Warn().Str("room", roomID).Str("client", client.clientID).Msg("send failed, removing connection")
		h.handleUnregister(client)
	}
}

func (h *Hub) handleCloseRoom(roomID string) {
	h.mu.Lock()
	h.teardownRoomLocked(roomID)
	h.mu.Unlock()
}

// teardownRoomLocked closes every connection in a room. Callers hold h.mu.
func (h *Hub) teardownRoomLocked(roomID string) {
	clients, ok := h.rooms[roomID]
	if !ok {
		return
	}
	for client := range clients {
		close(client.send)
	}
	delete(h.rooms, roomID)
	logging.Info().Str("room", roomID).Int("connections", len(clients)).Msg("room closed by server")
}

// CloseRoom tears down every connection in a room (room deletion path).
func (h *Hub) CloseRoom(roomID string) {
	h.closeRoom <- roomID
}

// Shutdown closes all connections and returns once the dispatch loop
// has processed the teardown.
func (h *Hub) Shutdown(timeout time.Duration) {
	done := make(chan struct{})
	select {
	case h.shutdown <- done:
		select {
		case <-done:
		case <-time.After(timeout):
		}
	case <-time.After(timeout):
	}
}

// ConnCount reports the live connection count for a room.
func (h *Hub) ConnCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// GetRoomCount returns the number of rooms with at least one connection.
func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// GetClientCount returns the total number of live connections.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, clients := range h.rooms {
		total += len(clients)
	}
	return total
}

// GetActiveRooms returns connection counts keyed by room id.
func (h *Hub) GetActiveRooms() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	active := make(map[string]int, len(h.rooms))
	for roomID, clients := range h.rooms {
		active[roomID] = len(clients)
	}
	return active
}
