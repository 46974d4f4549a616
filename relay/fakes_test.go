package relay

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/lnrelay/node"
)

type frame struct {
	messageType int
	data        []byte
	err         error
}

type fakeConn struct {
	frames chan frame
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan frame, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-c.frames:
		return f.messageType, f.data, f.err
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) sendText(s string) {
	c.frames <- frame{messageType: websocket.TextMessage, data: []byte(s)}
}

func (c *fakeConn) peerClose(code int) {
	c.frames <- frame{err: &websocket.CloseError{Code: code, Text: "bye"}}
}

func (c *fakeConn) fail(err error) {
	c.frames <- frame{err: err}
}

// fakeDialer records every dial. A non-nil err fails dials; a non-nil block
// holds dials until it is closed or the socket is discarded.
type fakeDialer struct {
	mu       sync.Mutex
	links    []string
	conns    []*fakeConn
	returned int
	err      error
	block    chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, link string) (Conn, error) {
	d.mu.Lock()
	d.links = append(d.links, link)
	block := d.block
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.returned++
		d.mu.Unlock()
	}()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) setErr(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.links)
}

func (d *fakeDialer) finished() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.returned
}

func (d *fakeDialer) dialedLinks() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.links...)
}

func (d *fakeDialer) connCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

// lateDialer completes each handshake only after the attempt is cancelled,
// so the conn arrives while the supervisor is shutting down
type lateDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (d *lateDialer) Dial(ctx context.Context, _ string) (Conn, error) {
	<-ctx.Done()
	c := newFakeConn()
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *lateDialer) all() []*fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeConn(nil), d.conns...)
}

// fakeClock captures scheduled retries so tests fire them by hand
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (c *fakeClock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *fakeClock) waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.timers))
	for i, t := range c.timers {
		out[i] = t.d
	}
	return out
}

func (c *fakeClock) stopped(i int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers[i].stopped
}

// fire runs timer i as if it expired, even if it was stopped
func (c *fakeClock) fire(i int) {
	c.mu.Lock()
	t := c.timers[i]
	t.fired = true
	c.mu.Unlock()
	t.f()
}

type sentEvent struct {
	payload []byte
	index   int
}

type sentError struct {
	err   error
	index int
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []sentEvent
	errs   []sentError
}

func (d *recordingDispatcher) SendEvent(_ context.Context, payload []byte, n *node.Descriptor) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, sentEvent{payload: payload, index: n.Index})
	return nil
}

func (d *recordingDispatcher) SendError(_ context.Context, err error, n *node.Descriptor) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs = append(d.errs, sentError{err: err, index: n.Index})
	return nil
}

func (d *recordingDispatcher) eventCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

func (d *recordingDispatcher) errorCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.errs)
}

func (d *recordingDispatcher) event(i int) sentEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.events[i]
}

func (d *recordingDispatcher) lastError() sentError {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.errs[len(d.errs)-1]
}

// mapResolver is a mutable node registry
type mapResolver struct {
	mu    sync.Mutex
	nodes map[int]node.Descriptor
}

func newMapResolver(nodes ...node.Descriptor) *mapResolver {
	r := &mapResolver{nodes: make(map[int]node.Descriptor)}
	for _, n := range nodes {
		r.nodes[n.Index] = n
	}
	return r
}

func (r *mapResolver) Find(index int) (*node.Descriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[index]
	if !ok {
		return nil, false
	}
	return &n, true
}

func (r *mapResolver) remove(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nodes, index)
}
