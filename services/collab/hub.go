// Package collabsvc relays collaboration messages between the websocket
// clients of a project room.
package collabsvc

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/parlemonde/clap-sub002/core"
	"github.com/parlemonde/clap-sub002/core/collab"
	"github.com/parlemonde/clap-sub002/core/project"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

type client struct {
	id   string
	room string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// Hub holds the rooms of connected clients.
type Hub struct {
	secret   string
	logger   core.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	rooms  map[string]map[string]*client
	closed bool
}

var _ project.Notifier = (*Hub)(nil)

func NewHub(conf *core.Config, logger core.Logger) *Hub {
	return &Hub{
		secret: conf.SecretKey,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		rooms: make(map[string]map[string]*client),
	}
}

// ServeHTTP upgrades a signed request (?room=&date=&signature=) and relays
// the client messages until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	room := q.Get("room")
	if room == "" || !collab.VerifyRoom(h.secret, room, q.Get("date"), q.Get("signature")) {
		http.Error(w, "invalid room signature", http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("collab: upgrade failed", err)
		return
	}
	c := &client{
		id:   uuid.New().String(),
		room: room,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	if !h.join(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
	<-c.done
}

func (h *Hub) join(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	clients, ok := h.rooms[c.room]
	if !ok {
		clients = make(map[string]*client)
		h.rooms[c.room] = clients
	}
	clients[c.id] = c
	return true
}

// leave removes the client and closes its send channel. Caller holds h.mu.
func (h *Hub) leave(c *client) {
	clients, ok := h.rooms[c.room]
	if !ok {
		return
	}
	if _, ok = clients[c.id]; !ok {
		return
	}
	delete(clients, c.id)
	close(c.send)
	if len(clients) == 0 {
		delete(h.rooms, c.room)
	}
}

// send queues msg for every client of room except the one with id skip.
// Clients too slow to keep up are disconnected.
func (h *Hub) send(room, skip string, msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.rooms[room] {
		if id == skip {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.leave(c)
		}
	}
}

// Broadcast pushes a server message to every client of the room.
func (h *Hub) Broadcast(room, msg string) {
	h.send(room, "", []byte(msg))
}

// Clients returns the number of clients connected to the room.
func (h *Hub) Clients(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, clients := range h.rooms {
		for _, c := range clients {
			h.leave(c)
		}
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		h.leave(c)
		h.mu.Unlock()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		kind, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("collab: read failed", err, map[string]interface{}{"room": c.room, "client": c.id})
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		h.send(c.room, c.id, msg)
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.drain(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drain(c)
				return
			}
		}
	}
}

// drain unregisters a client whose connection is broken.
func (h *Hub) drain(c *client) {
	h.mu.Lock()
	h.leave(c)
	h.mu.Unlock()
	_ = c.conn.Close()
}
