package http

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"quizastrous-server/internal/domain"
)

// HubConfig holds the per-connection limits of the push channel.
type HubConfig struct {
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

// DefaultHubConfig returns the push channel defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		WriteTimeout:   5 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   25 * time.Second,
		MaxMessageSize: 512,
		SendBuffer:     16,
	}
}

type outboundMessage[T any] struct {
	Type string `json:"type"`
	Data T      `json:"data"`
}

// Hub keeps the set of open push connections and fans snapshots out to them. Publishing never
// blocks: a connection whose queue is full is disconnected.
type Hub struct {
	cfg     HubConfig
	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func NewHub(cfg HubConfig) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultHubConfig().SendBuffer
	}
	return &Hub{
		cfg:     cfg,
		clients: make(map[*client]struct{}),
	}
}

// Publish pushes a state snapshot to every connection.
func (h *Hub) Publish(snapshot domain.Snapshot) {
	payload, err := encodeState(snapshot)
	if err != nil {
		log.Error().Err(err).Msg("encode snapshot")
		return
	}
	h.broadcast(payload)
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register adds an upgraded connection. The initial snapshot is queued before the connection
// becomes visible to broadcasts, so it is always the first frame the client sees.
func (h *Hub) Register(conn *websocket.Conn, initial domain.Snapshot) error {
	payload, err := encodeState(initial)
	if err != nil {
		return err
	}
	c := &client{
		id:   uuid.New().String(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.cfg.SendBuffer),
	}
	c.send <- payload

	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	go c.writePump()
	go c.readPump()

	log.Info().Str("connection_id", c.id).Int("connections", total).Msg("observer connected")
	return nil
}

// Close disconnects every observer.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcast(payload []byte) {
	var slow []*client

	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Warn().Str("connection_id", c.id).Msg("observer too slow, disconnecting")
		h.unregister(c)
	}
}

// unregister removes c and closes its queue; the write pump then closes the socket.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	log.Info().Str("connection_id", c.id).Int("connections", len(h.clients)).Msg("observer disconnected")
}

func (c *client) writePump() {
	cfg := c.hub.cfg
	var ping <-chan time.Time
	if cfg.PingInterval > 0 {
		ticker := time.NewTicker(cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug().Err(err).Str("connection_id", c.id).Msg("ws write failed")
				return
			}
		case <-ping:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only watches for disconnects; clients send nothing meaningful on this channel.
func (c *client) readPump() {
	cfg := c.hub.cfg
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(cfg.MaxMessageSize)
	}
	extend := func() {
		if cfg.ReadTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		}
	}
	extend()
	c.conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("connection_id", c.id).Msg("unexpected ws close")
			}
			return
		}
		extend()
	}
}

func encodeState(snapshot domain.Snapshot) ([]byte, error) {
	return json.Marshal(outboundMessage[domain.Snapshot]{Type: "state", Data: snapshot})
}
