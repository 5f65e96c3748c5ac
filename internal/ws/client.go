package ws

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/pairpad/pairpad/internal/logging"
	"github.com/pairpad/pairpad/internal/ratelimit"
	"github.com/pairpad/pairpad/internal/registry"
	"github.com/pairpad/pairpad/internal/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	roomID      string
	rateLimiter *ratelimit.Limiter
	clientID    string
}

// ServeWS upgrades the connection and joins the client to the room in
// the request path. A join to an unknown room is refused with a
// room-not-found close frame and never registers a connection.
func ServeWS(hub *Hub, reg *registry.Registry, msgRate float64, msgBurst int, w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if roomID == "" {
		http.Error(w, "room id required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	// Verify the room exists (and hydrate it) before joining.
	if _, err := reg.Get(roomID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logging.Warn().Str("room", roomID).Msg("connection rejected, room not found")
			msg := websocket.FormatCloseMessage(CloseRoomNotFound, "room not found")
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		} else {
			logging.Error().Err(err).Str("room", roomID).Msg("room lookup failed")
		}
		conn.Close()
		return
	}

	client := &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 512),
		roomID:      roomID,
		rateLimiter: ratelimit.NewLimiter(msgRate, msgBurst),
		clientID:    fmt.Sprintf("%s-%d", conn.RemoteAddr().String(), time.Now().UnixNano()),
	}

	hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Str("room", c.roomID).Msg("websocket read error")
			}
			break
		}

		if !c.rateLimiter.Allow() {
			logging.Warn().Str("client", c.clientID).Str("room", c.roomID).Msg("rate limit exceeded, dropping message")
			continue
		}

		msg, err := parseClientMessage(data)
		if err != nil {
			// Malformed messages never close the connection.
			logging.Warn().Err(err).Str("client", c.clientID).Str("room", c.roomID).Msg("ignoring malformed message")
			continue
		}

		switch msg.Type {
		case TypeCodeUpdate:
			c.hub.broadcast <- &editEvent{
				RoomID: c.roomID,
				Code:   msg.Code,
				Sender: c,
			}
		default:
			logging.Debug().Str("type", msg.Type).Str("room", c.roomID).Msg("ignoring unrecognized message type")
		}
	}
}

// trySend queues a message without blocking. Returns false when the
// client's buffer is full, which flags the connection as dead.
func (c *Client) trySend(message []byte) bool {
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
