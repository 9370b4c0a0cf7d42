package web

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// hub tracks connected clients and fans broadcast messages out to them.
type hub struct {
	mu      sync.Mutex
	clients map[*client]bool

	broadcast  chan []byte
	register   chan *client
	unregister chan *client

	done     chan struct{}
	stopOnce sync.Once
}

func newHub() *hub {
	return &hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// stop shuts the hub down; run disconnects every client and returns.
func (h *hub) stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *hub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow client: drop it rather than stall the hub.
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

type client struct {
	hub       *hub
	conn      *websocket.Conn
	send      chan []byte
	onButtons func(ButtonState)
}

func newClient(h *hub, conn *websocket.Conn, onButtons func(ButtonState)) *client {
	return &client{hub: h, conn: conn, send: make(chan []byte, 256), onButtons: onButtons}
}

// readPump decodes JSON button messages until the connection drops.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var st ButtonState
		if err := json.Unmarshal(data, &st); err != nil {
			continue
		}
		if c.onButtons != nil {
			c.onButtons(st)
		}
	}
}

// writePump ships queued frames as binary messages.
func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
