package relay

import (
	"context"

	"github.com/c360/lnrelay/node"
)

// SocketState is the state of one connection attempt
type SocketState int

// Socket states
const (
	StateConnecting SocketState = iota
	StateOpen
	StateClosed
)

// String returns the state name
func (s SocketState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// socket is one connection attempt. It is never reused: a reconnect
// creates a new socket and discards the old one.
type socket struct {
	id        string
	nodeIndex int
	state     SocketState
	conn      Conn
	cancel    context.CancelFunc
}

// close discards the socket. Safe to call more than once.
func (s *socket) close() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.state = StateClosed
}

// entry is the supervisor's record for one node
type entry struct {
	node    *node.Descriptor
	desired bool
	socket  *socket

	// backoff is set in per-node mode
	backoff *backoffScope
}

func (e *entry) isOpen() bool {
	return e.socket != nil && e.socket.state == StateOpen
}
