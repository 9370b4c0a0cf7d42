package web

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialTest(t *testing.T, s *Server) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(s.Handler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func waitForClients(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("client count %d never reached %d", s.ClientCount(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestServer_BroadcastsChangedFrames(t *testing.T) {
	s := NewServer()
	conn, done := dialTest(t, s)
	defer done()
	waitForClients(t, s, 1)

	frame := bytes.Repeat([]byte{0x11, 0x22, 0x33, 0xFF}, 160*144)
	s.PushFrame(frame, 1)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if mt != websocket.BinaryMessage {
		t.Fatalf("message type %d, want binary", mt)
	}
	if !bytes.Equal(data, frame) {
		t.Fatal("broadcast bytes differ from pushed frame")
	}
}

func TestServer_SkipsUnchangedFrames(t *testing.T) {
	s := NewServer()
	conn, done := dialTest(t, s)
	defer done()
	waitForClients(t, s, 1)

	frame := make([]byte, 160*144*4)
	s.PushFrame(frame, 7)
	s.PushFrame(frame, 7) // same hash: no second message
	frame[0] = 0xFF
	s.PushFrame(frame, 8)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("first frame: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("second frame: %v", err)
	}
	if data[0] != 0xFF {
		t.Fatal("second message should be the changed frame, not the duplicate")
	}
}

func TestServer_ButtonMessages(t *testing.T) {
	s := NewServer()
	got := make(chan ButtonState, 1)
	s.OnButtons = func(b ButtonState) { got <- b }

	conn, done := dialTest(t, s)
	defer done()
	waitForClients(t, s, 1)

	msg := []byte(`{"right":true,"a":true,"start":true}`)
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case b := <-got:
		if !b.Right || !b.A || !b.Start || b.Left || b.B {
			t.Fatalf("button state %+v", b)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no button callback")
	}
}

func TestServer_DisconnectDropsClient(t *testing.T) {
	s := NewServer()
	conn, done := dialTest(t, s)
	defer done()
	waitForClients(t, s, 1)

	conn.Close()
	waitForClients(t, s, 0)
}

func TestServer_CloseDisconnectsClientsAndStopsHub(t *testing.T) {
	s := NewServer()
	conn, done := dialTest(t, s)
	defer done()
	waitForClients(t, s, 1)

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	waitForClients(t, s, 0)

	// The client sees a clean close from the server side.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) &&
				!strings.Contains(err.Error(), "close") {
				t.Fatalf("unexpected read error after Close: %v", err)
			}
			break
		}
	}

	// Pushing after Close must not block or panic.
	frame := make([]byte, 160*144*4)
	for i := 0; i < 64; i++ {
		s.PushFrame(frame, uint64(i+1))
	}
	if s.ClientCount() != 0 {
		t.Fatalf("clients after Close: %d", s.ClientCount())
	}
	// Close is idempotent.
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
