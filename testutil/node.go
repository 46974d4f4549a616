package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// NodeServer imitates a node's WebSocket API on /ws.
// Sockets require Basic auth with an empty user and the configured password.
type NodeServer struct {
	*httptest.Server

	password string
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    map[*websocket.Conn]struct{}
	accepted int
	rejected int
}

// NewNodeServer starts a server that is closed when the test ends
func NewNodeServer(t *testing.T, password string) *NodeServer {
	t.Helper()

	s := &NodeServer{
		password: password,
		conns:    make(map[*websocket.Conn]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handle)
	s.Server = httptest.NewServer(mux)

	t.Cleanup(func() {
		s.DropAll()
		s.Server.Close()
	})
	return s
}

func (s *NodeServer) handle(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != "" || pass != s.password {
		s.mu.Lock()
		s.rejected++
		s.mu.Unlock()
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.accepted++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	// Clients never send data frames; reading surfaces their close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Push writes a text frame to every open socket
func (s *NodeServer) Push(t *testing.T, frame string) {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			t.Errorf("push frame: %v", err)
		}
	}
}

// DropAll closes every open socket with a normal close frame
func (s *NodeServer) DropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	for conn := range s.conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), deadline)
		conn.Close()
		delete(s.conns, conn)
	}
}

// OpenCount returns the number of sockets currently open
func (s *NodeServer) OpenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Accepted returns how many sockets were upgraded so far
func (s *NodeServer) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Rejected returns how many handshakes failed authentication
func (s *NodeServer) Rejected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rejected
}
