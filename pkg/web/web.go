// Package web streams framebuffers to browsers over websockets and
// feeds button state back into the emulator core.
package web

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024 * 16,
	WriteBufferSize: 1024 * 16,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ButtonState mirrors the joypad as reported by a connected client.
type ButtonState struct {
	Right  bool `json:"right"`
	Left   bool `json:"left"`
	Up     bool `json:"up"`
	Down   bool `json:"down"`
	A      bool `json:"a"`
	B      bool `json:"b"`
	Select bool `json:"select"`
	Start  bool `json:"start"`
}

// Server owns the client hub. Frames pushed with PushFrame fan out to
// every connected client as binary RGBA messages; incoming JSON button
// messages invoke OnButtons.
type Server struct {
	hub *hub

	// OnButtons is called from client read goroutines. Set it before
	// serving; the emulator side must be safe to call concurrently.
	OnButtons func(ButtonState)

	lastHash uint64
	httpSrv  *http.Server
}

func NewServer() *Server {
	s := &Server{hub: newHub()}
	go s.hub.run()
	return s
}

// PushFrame broadcasts fb to all clients when the frame changed since
// the previous push. hash is the caller's fingerprint of fb.
func (s *Server) PushFrame(fb []byte, hash uint64) {
	if hash == s.lastHash {
		return
	}
	s.lastHash = hash
	msg := make([]byte, len(fb))
	copy(msg, fb)
	select {
	case s.hub.broadcast <- msg:
	case <-s.hub.done:
	default:
		// broadcast queue full: drop the frame, never stall the core
	}
}

// ClientCount reports the number of connected clients.
func (s *Server) ClientCount() int { return s.hub.count() }

// Handler returns the websocket upgrade endpoint.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := newClient(s.hub, conn, s.OnButtons)
		select {
		case s.hub.register <- c:
		case <-s.hub.done:
			conn.Close()
			return
		}
		go c.writePump()
		go c.readPump()
	})
}

// Close stops the hub goroutine, disconnects every client and shuts
// down the listener started by ListenAndServe, if any.
func (s *Server) Close() error {
	s.hub.stop()
	if s.httpSrv != nil {
		return s.httpSrv.Close()
	}
	return nil
}

// ListenAndServe serves the viewer page at / and the websocket at /ws.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(indexPage))
	})
	s.httpSrv = &http.Server{Addr: addr, Handler: mux}
	return s.httpSrv.ListenAndServe()
}
