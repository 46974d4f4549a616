package relay

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/c360/lnrelay/control"
	"github.com/c360/lnrelay/errors"
	"github.com/c360/lnrelay/health"
	"github.com/c360/lnrelay/metric"
	"github.com/c360/lnrelay/node"
)

// NodeResolver resolves a node index to its descriptor
type NodeResolver interface {
	Find(index int) (*node.Descriptor, bool)
}

// NodeLister lists registry nodes; used by ConnectOnStart
type NodeLister interface {
	List() []node.Descriptor
}

// Dispatcher receives relayed events and errors
type Dispatcher interface {
	SendEvent(ctx context.Context, payload []byte, n *node.Descriptor) error
	SendError(ctx context.Context, err error, n *node.Descriptor) error
}

// Option configures a Supervisor
type Option func(*Supervisor) error

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// WithDialer replaces the WebSocket dialer
func WithDialer(d Dialer) Option {
	return func(s *Supervisor) error {
		s.dialer = d
		return nil
	}
}

// WithTLSConfig sets the TLS config of the default dialer
func WithTLSConfig(tlsConfig *tls.Config) Option {
	return func(s *Supervisor) error {
		s.tlsConfig = tlsConfig
		return nil
	}
}

// WithAfterFunc replaces the retry timer
func WithAfterFunc(fn AfterFunc) Option {
	return func(s *Supervisor) error {
		s.afterFunc = fn
		return nil
	}
}

// WithMetrics registers supervisor metrics with registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(s *Supervisor) error {
		m, err := newMetrics(registry)
		if err != nil {
			return err
		}
		s.metrics = m
		return nil
	}
}

// nodeHealth is the per-node view published for Health
type nodeHealth struct {
	state   SocketState
	pending bool
}

// Supervisor maintains one socket per node and reconnects with backoff.
// All entry state is owned by the event loop goroutine.
type Supervisor struct {
	cfg        Config
	source     string
	nodes      NodeResolver
	dispatcher Dispatcher
	dialer     Dialer
	tlsConfig  *tls.Config
	afterFunc  AfterFunc
	logger     *slog.Logger
	metrics    *Metrics

	events   chan func()
	loopDone chan struct{}
	loopCtx  context.Context

	// Owned by the event loop
	entries map[int]*entry
	global  *backoffScope

	healthMu sync.RWMutex
	snapshot map[int]nodeHealth

	lifecycleMu sync.Mutex
	started     atomic.Bool
	stopped     atomic.Bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New creates a Supervisor. Start must be called before Connect.
func New(cfg Config, nodes NodeResolver, dispatcher Dispatcher, opts ...Option) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if nodes == nil || dispatcher == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Supervisor", "New", "check collaborators")
	}
	// Validate has accepted the implementation name; keep its canonical form
	cfg.Implementation, _ = node.ParseImplementation(string(cfg.Implementation))
	if cfg.EventQueueSize == 0 {
		cfg.EventQueueSize = DefaultConfig().EventQueueSize
	}

	s := &Supervisor{
		cfg:        cfg,
		source:     string(cfg.Implementation),
		nodes:      nodes,
		dispatcher: dispatcher,
		afterFunc:  stdAfterFunc,
		logger:     slog.Default(),
		entries:    make(map[int]*entry),
		snapshot:   make(map[int]nodeHealth),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, errors.WrapInvalid(err, "Supervisor", "New", "apply option")
		}
	}

	if s.dialer == nil {
		s.dialer = NewWebsocketDialer(s.tlsConfig, cfg.HandshakeTimeout)
	}
	if !cfg.PerNodeBackoff {
		s.global = newBackoffScope(cfg.Backoff)
	}
	s.logger = s.logger.With("component", "relay", "source", s.source)

	return s, nil
}

// Start launches the event loop. With ConnectOnStart it then connects every
// registry node of the relay's implementation.
func (s *Supervisor) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.started.Load() {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Supervisor", "Start", "check started state")
	}
	if s.stopped.Load() {
		return errors.WrapFatal(errors.ErrShuttingDown, "Supervisor", "Start", "check stopped state")
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.loopCtx = loopCtx
	s.cancel = cancel
	s.events = make(chan func(), s.cfg.EventQueueSize)
	s.loopDone = make(chan struct{})

	s.wg.Add(1)
	go s.run()

	s.started.Store(true)
	s.logger.Info("Relay started",
		"per_node_backoff", s.cfg.PerNodeBackoff,
		"backoff_floor", s.cfg.Backoff.Floor,
		"backoff_ceiling", s.cfg.Backoff.Ceiling)

	if s.cfg.ConnectOnStart {
		s.connectRegistered(ctx)
	}
	return nil
}

func (s *Supervisor) connectRegistered(ctx context.Context) {
	lister, ok := s.nodes.(NodeLister)
	if !ok {
		s.logger.Warn("Node registry cannot list nodes; skipping connect on start")
		return
	}

	for _, d := range lister.List() {
		if d.Implementation != s.cfg.Implementation || !d.HasEndpoint() {
			continue
		}
		n, found := s.nodes.Find(d.Index)
		if !found {
			continue
		}
		if err := s.Connect(ctx, n); err != nil {
			s.logger.Error("Connect on start failed", append(n.LogAttrs(), "error", err)...)
		}
	}
}

// Stop closes every socket, cancels pending retries and waits for the
// event loop and socket goroutines to exit.
func (s *Supervisor) Stop(timeout time.Duration) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if !s.started.Load() {
		return nil
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("shutdown timeout after %v", timeout),
			"Supervisor", "Stop", "wait for goroutines")
	}

	s.started.Store(false)
	s.stopped.Store(true)
	s.logger.Info("Relay stopped")
	return nil
}

// run is the event loop
func (s *Supervisor) run() {
	defer s.wg.Done()
	defer close(s.loopDone)

	for {
		select {
		case <-s.loopCtx.Done():
			s.shutdown()
			return
		case fn := <-s.events:
			fn()
			s.publishHealth()
		}
	}
}

// shutdown tears down all entries on the loop
func (s *Supervisor) shutdown() {
	for index, e := range s.entries {
		e.desired = false
		if e.backoff != nil {
			e.backoff.cancel()
		}
		if e.socket != nil {
			e.socket.close()
		}
		delete(s.entries, index)
	}
	if s.global != nil {
		s.global.cancel()
	}
	s.publishHealth()
}

// post queues fn for the loop. It returns false once shutdown has begun.
func (s *Supervisor) post(fn func()) bool {
	select {
	case <-s.loopDone:
		return false
	case <-s.loopCtx.Done():
		return false
	default:
	}

	select {
	case s.events <- fn:
		return true
	case <-s.loopDone:
		return false
	}
}

// call runs fn on the loop and waits for it
func (s *Supervisor) call(ctx context.Context, fn func() error) error {
	if !s.started.Load() {
		return errors.WrapFatal(errors.ErrNotStarted, "Supervisor", "call", "check started state")
	}

	reply := make(chan error, 1)
	select {
	case s.events <- func() { reply <- fn() }:
	case <-s.loopDone:
		return errors.WrapFatal(errors.ErrShuttingDown, "Supervisor", "call", "queue request")
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-s.loopDone:
		return errors.WrapFatal(errors.ErrShuttingDown, "Supervisor", "call", "await request")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect asks the relay to establish and maintain a connection to n.
// It returns once the request is processed, before the handshake completes.
// Only setup errors, such as a malformed endpoint, are returned.
func (s *Supervisor) Connect(ctx context.Context, n *node.Descriptor) error {
	if n == nil {
		return errors.WrapInvalid(errors.ErrUnknownNode, "Supervisor", "Connect", "check node")
	}
	return s.call(ctx, func() error { return s.connect(n) })
}

// Disconnect tears down the connection to n if its socket is open.
// Otherwise it does nothing unless CancelPendingOnDisconnect is set.
func (s *Supervisor) Disconnect(ctx context.Context, n *node.Descriptor) error {
	if n == nil {
		return errors.WrapInvalid(errors.ErrUnknownNode, "Supervisor", "Disconnect", "check node")
	}
	return s.call(ctx, func() error {
		s.disconnect(n)
		return nil
	})
}

// HandleCommand resolves the command's node and connects or disconnects it
func (s *Supervisor) HandleCommand(ctx context.Context, cmd control.Command) error {
	n, ok := s.nodes.Find(cmd.NodeIndex)
	if !ok {
		s.logger.Warn("Control command for unknown node", "action", cmd.Action, "node_index", cmd.NodeIndex)
		return errors.WrapInvalid(
			fmt.Errorf("%w: index %d", errors.ErrUnknownNode, cmd.NodeIndex),
			"Supervisor", "HandleCommand", "resolve node")
	}

	switch cmd.Action {
	case control.Connect:
		return s.Connect(ctx, n)
	case control.Disconnect:
		return s.Disconnect(ctx, n)
	default:
		return errors.WrapInvalid(fmt.Errorf("%w: action %q", errors.ErrInvalidData, cmd.Action),
			"Supervisor", "HandleCommand", "dispatch command")
	}
}

// connect runs on the loop
func (s *Supervisor) connect(n *node.Descriptor) error {
	e, exists := s.entries[n.Index]

	if exists && e.isOpen() {
		return nil
	}
	if !n.HasEndpoint() {
		return nil
	}

	link, err := BuildLink(n.ServerURL, n.APIPassword)
	if err != nil {
		return errors.WrapInvalid(err, "Supervisor", "Connect", "build link for node "+label(n.Index))
	}

	s.logger.Info("Connecting to the websocket server", append(n.LogAttrs(), "endpoint", redact(link))...)

	if !exists {
		e = &entry{node: n}
		if s.cfg.PerNodeBackoff {
			e.backoff = newBackoffScope(s.cfg.Backoff)
		}
		s.entries[n.Index] = e
		s.metrics.recordEntries(len(s.entries))
	}

	// The descriptor is re-read on every new connection
	e.node = n
	e.desired = true
	s.open(e, link)
	return nil
}

// open replaces the entry's socket with a new connection attempt
func (s *Supervisor) open(e *entry, link string) {
	if e.socket != nil {
		e.socket.close()
	}

	ctx, cancel := context.WithCancel(s.loopCtx)
	sock := &socket{
		id:        uuid.NewString(),
		nodeIndex: e.node.Index,
		state:     StateConnecting,
		cancel:    cancel,
	}
	e.socket = sock
	s.metrics.recordAttempt(e.node.Index)

	s.wg.Add(1)
	go s.runSocket(ctx, sock, link)
}

// runSocket dials and reads one socket, posting its events to the loop
func (s *Supervisor) runSocket(ctx context.Context, sock *socket, link string) {
	defer s.wg.Done()

	conn, err := s.dialer.Dial(ctx, link)
	if err != nil {
		s.post(func() { s.handleError(sock, err) })
		return
	}

	// The loop may never run handleOpen if shutdown wins the race, so the
	// socket context owns the conn from here on
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if !s.post(func() { s.handleOpen(sock, conn) }) {
		_ = conn.Close()
		return
	}

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if isCloseError(err) {
				s.post(func() { s.handleClose(sock, err) })
			} else {
				s.post(func() { s.handleError(sock, err) })
			}
			return
		}
		if !s.post(func() { s.handleMessage(sock, messageType, data) }) {
			return
		}
	}
}

func isCloseError(err error) bool {
	var closeErr *websocket.CloseError
	return stderrors.As(err, &closeErr)
}

// current returns the entry owning sock, or nil when sock has been discarded
func (s *Supervisor) current(sock *socket) *entry {
	e, ok := s.entries[sock.nodeIndex]
	if !ok || e.socket != sock || sock.state == StateClosed {
		return nil
	}
	return e
}

func (s *Supervisor) handleOpen(sock *socket, conn Conn) {
	e := s.current(sock)
	if e == nil {
		_ = conn.Close()
		return
	}

	sock.conn = conn
	sock.state = StateOpen
	s.backoffFor(e).reset()
	s.metrics.recordOpen(e.node.Index)

	s.logger.Info("Connected to the websocket server", append(e.node.LogAttrs(), "socket_id", sock.id)...)
}

func (s *Supervisor) handleMessage(sock *socket, messageType int, data []byte) {
	e := s.current(sock)
	if e == nil {
		return
	}

	s.logger.Debug("Received message from the server", append(e.node.LogAttrs(), "bytes", len(data))...)

	// Text frames carry JSON text; anything else is taken as structured JSON
	var payload any = string(data)
	if messageType != websocket.TextMessage {
		payload = data
	}

	stamped, err := stampSource(payload, s.source)
	if err != nil {
		s.metrics.recordDecodeError(e.node.Index)
		s.logger.Warn("Dropping undecodable message", append(e.node.LogAttrs(), "error", err)...)
		return
	}

	if err := s.dispatcher.SendEvent(s.loopCtx, stamped, e.node); err != nil {
		s.logger.Warn("Event dispatch failed", append(e.node.LogAttrs(), "error", err)...)
		return
	}
	s.metrics.recordMessage(e.node.Index)
}

func (s *Supervisor) handleClose(sock *socket, err error) {
	e := s.current(sock)
	if e == nil {
		return
	}

	sock.close()
	s.metrics.recordState(e.node.Index, StateClosed)

	if e.node.Implementation != s.cfg.Implementation {
		s.logger.Debug("Socket closed for node of another implementation",
			append(e.node.LogAttrs(), "implementation", e.node.Implementation)...)
		return
	}

	s.logger.Info("Web socket disconnected, will reconnect again",
		append(e.node.LogAttrs(), "reason", err.Error())...)
	if e.desired {
		s.scheduleRetry(e)
	}
}

func (s *Supervisor) handleError(sock *socket, err error) {
	e := s.current(sock)
	if e == nil {
		return
	}

	s.logger.Error("Web socket error", append(e.node.LogAttrs(), "error", err)...)
	s.metrics.recordTransportError(e.node.Index)

	transportErr := errors.WrapTransient(err, "Supervisor", "socket", "node "+label(e.node.Index)+" transport")
	if sendErr := s.dispatcher.SendError(s.loopCtx, transportErr, e.node); sendErr != nil {
		s.logger.Warn("Error dispatch failed", append(e.node.LogAttrs(), "error", sendErr)...)
	}

	sock.close()
	s.metrics.recordState(e.node.Index, StateClosed)

	if e.desired {
		s.scheduleRetry(e)
	}
}

func (s *Supervisor) backoffFor(e *entry) *backoffScope {
	if e.backoff != nil {
		return e.backoff
	}
	return s.global
}

func (s *Supervisor) scopeName(e *entry) string {
	if e.backoff != nil {
		return label(e.node.Index)
	}
	return "global"
}

// scheduleRetry arms the entry's backoff scope unless a retry is already pending
func (s *Supervisor) scheduleRetry(e *entry) {
	scope := s.backoffFor(e)
	index := e.node.Index

	wait, gen, armed := scope.arm(index)
	if !armed {
		s.logger.Debug("Reconnect already pending", append(e.node.LogAttrs(), "pending_node_index", scope.target)...)
		return
	}

	s.metrics.recordReconnect(index, s.scopeName(e), wait.Seconds())
	s.logger.Debug("Reconnect scheduled", append(e.node.LogAttrs(), "wait", wait)...)

	scope.timer = s.afterFunc(wait, func() {
		s.post(func() { s.retry(scope, gen, index) })
	})
}

// retry runs on the loop when a backoff timer fires
func (s *Supervisor) retry(scope *backoffScope, gen uint64, index int) {
	if !scope.fired(gen) {
		return
	}

	e, ok := s.entries[index]
	if !ok || !e.desired {
		return
	}

	n, found := s.nodes.Find(index)
	if !found {
		s.logger.Warn("Node no longer registered; dropping connection", e.node.LogAttrs()...)
		s.remove(index, e)
		return
	}

	s.logger.Info("Reconnecting to the websocket server", n.LogAttrs()...)
	if err := s.connect(n); err != nil {
		s.logger.Error("Reconnect setup failed", append(n.LogAttrs(), "error", err)...)
	}
}

// disconnect runs on the loop
func (s *Supervisor) disconnect(n *node.Descriptor) {
	e, ok := s.entries[n.Index]
	if !ok {
		return
	}
	if !e.isOpen() && !s.cfg.CancelPendingOnDisconnect {
		return
	}

	s.logger.Info("Disconnecting from the websocket server", e.node.LogAttrs()...)
	s.remove(n.Index, e)
}

// remove tears down an entry and any retry pending for it
func (s *Supervisor) remove(index int, e *entry) {
	e.desired = false
	if e.socket != nil {
		e.socket.close()
	}

	if e.backoff != nil {
		e.backoff.cancel()
	} else if s.global != nil && s.global.pendingFor(index) {
		s.global.cancel()
	}

	delete(s.entries, index)
	s.metrics.recordRemoved(index)
	s.metrics.recordEntries(len(s.entries))
}

// publishHealth copies entry state for Health. Runs on the loop.
func (s *Supervisor) publishHealth() {
	snap := make(map[int]nodeHealth, len(s.entries))
	for index, e := range s.entries {
		h := nodeHealth{state: StateClosed}
		if e.socket != nil {
			h.state = e.socket.state
		}
		if scope := s.backoffFor(e); scope != nil {
			h.pending = scope.pendingFor(index)
		}
		snap[index] = h
	}

	s.healthMu.Lock()
	s.snapshot = snap
	s.healthMu.Unlock()
}

// Health reports per-node connection health aggregated under "relay"
func (s *Supervisor) Health() health.Status {
	if !s.started.Load() {
		return health.NewUnhealthy("relay", "relay not running")
	}

	s.healthMu.RLock()
	subs := make([]health.Status, 0, len(s.snapshot))
	for _, index := range slices.Sorted(maps.Keys(s.snapshot)) {
		h := s.snapshot[index]
		name := fmt.Sprintf("node-%d", index)
		switch {
		case h.state == StateOpen:
			subs = append(subs, health.NewHealthy(name, "connected"))
		case h.state == StateConnecting:
			subs = append(subs, health.NewDegraded(name, "connecting"))
		case h.pending:
			subs = append(subs, health.NewDegraded(name, "reconnect pending"))
		default:
			subs = append(subs, health.NewUnhealthy(name, "disconnected"))
		}
	}
	s.healthMu.RUnlock()

	return health.Aggregate("relay", subs)
}
