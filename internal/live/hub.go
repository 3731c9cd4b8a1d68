// Package live pushes workspace change events to connected websocket
// clients of the same user.
package live

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 32
	readLimit  = 4096
)

var ErrHubClosed = errors.New("live hub closed")

// Event is one message on the feed.
type Event struct {
	Type string    `json:"type"`
	Data any       `json:"data,omitempty"`
	At   time.Time `json:"at"`
}

type client struct {
	userID string
	conn   *gorilla.Conn
	send   chan []byte
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans events out to every connection of a user. A client whose buffer
// is full is disconnected rather than blocking the broadcaster.
type Hub struct {
	upgrader gorilla.Upgrader
	log      zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	clients map[string]map[*client]struct{}
	closed  bool
}

func NewHub(allowedOrigin string, log zerolog.Logger) *Hub {
	h := &Hub{
		log:     log.With().Str("component", "live").Logger(),
		now:     time.Now,
		clients: make(map[string]map[*client]struct{}),
	}
	h.upgrader = gorilla.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowedOrigin == "*" || origin == allowedOrigin
		},
	}
	return h
}

// ServeWS upgrades the request and registers the connection for userID.
// It returns once the connection is registered; pumps run in the background.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{userID: userID, conn: conn, send: make(chan []byte, sendBuffer)}
	if err := h.register(c); err != nil {
		_ = conn.WriteMessage(gorilla.CloseMessage, gorilla.FormatCloseMessage(gorilla.CloseGoingAway, ""))
		_ = conn.Close()
		return err
	}
	go h.writePump(c)
	go h.readPump(c)
	return nil
}

// Broadcast sends an event to every connection of the user.
func (h *Hub) Broadcast(userID, eventType string, data any) {
	payload, err := json.Marshal(Event{Type: eventType, Data: data, At: h.now().UTC()})
	if err != nil {
		h.log.Error().Err(err).Str("type", eventType).Msg("marshal live event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[userID] {
		select {
		case c.send <- payload:
		default:
			h.log.Warn().Str("user", userID).Msg("live client too slow, disconnecting")
			h.removeLocked(c)
		}
	}
}

// Count returns the number of open connections of a user.
func (h *Hub) Count(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID])
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, set := range h.clients {
		for c := range set {
			h.removeLocked(c)
		}
	}
}

func (h *Hub) register(c *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.log.Debug().Str("user", c.userID).Int("connections", len(set)).Msg("live client connected")
	return nil
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	set := h.clients[c.userID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	c.close()
}

// readPump only watches for the peer going away; clients never send
// commands over the feed.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if gorilla.IsUnexpectedCloseError(err, gorilla.CloseGoingAway, gorilla.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("user", c.userID).Msg("live client read")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(gorilla.CloseMessage, gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(gorilla.TextMessage, payload); err != nil {
				h.unregister(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(gorilla.PingMessage, nil); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}
