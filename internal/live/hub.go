// Package live streams per-tick intelligence snapshots to connected UI
// clients over WebSocket. One hub per process; clients are browsers or the
// companion app.
package live

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Message types on the wire.
const (
	MsgTypeInit  = "init"  // rider parameters + learned coefficients on connect
	MsgTypeState = "state" // per-tick intelligence snapshot
)

// Message is the envelope for every frame sent to a client.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Client is one connected WebSocket consumer.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans snapshot frames out to all connected clients. Slow clients are
// dropped rather than allowed to back up the tick loop.
type Hub struct {
	log        *zap.SugaredLogger
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	// getInitData supplies the snapshot a freshly connected client needs
	// before state frames make sense.
	getInitData func() interface{}
}

// NewHub creates an idle hub; call Run to start it.
func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		log:        log,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// SetInitDataProvider installs the callback that builds the init frame for
// new connections.
func (h *Hub) SetInitDataProvider(provider func() interface{}) {
	h.getInitData = provider
}

// Run services registration and broadcast until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Infow("live client connected", "clients", n)
			h.sendInitData(client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Infow("live client disconnected", "clients", n)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) sendInitData(client *Client) {
	if h.getInitData == nil {
		return
	}
	data, err := json.Marshal(Message{Type: MsgTypeInit, Data: h.getInitData()})
	if err != nil {
		h.log.Errorw("marshal init frame", "error", err)
		return
	}
	select {
	case client.send <- data:
	default:
		h.log.Warnw("init frame dropped, client buffer full")
	}
}

// BroadcastState sends one intelligence snapshot to every client.
func (h *Hub) BroadcastState(state interface{}) {
	data, err := json.Marshal(Message{Type: MsgTypeState, Data: state})
	if err != nil {
		h.log.Errorw("marshal state frame", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		// Broadcast queue full; skip this tick rather than block.
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The head unit serves its own UI; cross-origin access is expected
	// from the companion app.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades an HTTP request and attaches the client to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorw("websocket upgrade failed", "error", err)
		return
	}
	client := &Client{hub: h, conn: conn, send: make(chan []byte, 256)}
	h.register <- client
	go client.writePump()
	go client.readPump()
}

// readPump drains client messages to keep the connection alive; inbound
// frames are ignored.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}
