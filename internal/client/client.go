// Package client implements the connection lifecycle of a chat-protocol
// client: connecting, liveness detection, expected and unexpected
// disconnects, automatic reconnection on a delay schedule, and dispatch
// of inbound messages to per-command handlers.
//
// A Client's lifecycle state is guarded by a mutex, so its methods may
// be called from any goroutine.  Timers, inbound lines and reconnect
// results are processed as callbacks on the client's event loop, and
// hooks are always invoked without the lock held.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"ircc/config"
	ircerr "ircc/internal/errors"
	"ircc/internal/eventloop"
	"ircc/internal/metrics"
	"ircc/internal/protocol"
	"ircc/internal/retry"
	"ircc/internal/transport"
	"ircc/util"
)

// Options configures a Client.  Start from [DefaultOptions]; zero
// durations and a nil delay schedule fall back to the defaults in
// package config.
type Options struct {
	// PingTimeout is the longest silence tolerated on a connection.
	PingTimeout time.Duration

	// ReconnectOnError retries after an unexpected disconnect.
	ReconnectOnError bool
	// ReconnectDelayed waits per ReconnectDelays between attempts;
	// when false every attempt is immediate.
	ReconnectDelayed bool
	ReconnectDelays  []time.Duration
	// ReconnectMaxAttempts bounds consecutive automatic attempts; 0
	// means unlimited.
	ReconnectMaxAttempts int

	ConnTimeout  time.Duration
	WriteTimeout time.Duration
	TLSConfig    *tls.Config

	// Network names the chat network; it overrides the server tag.
	Network string

	// Dialer defaults to a plain TCP dialer.
	Dialer transport.Dialer
	// Loop defaults to an EventLoop owned and stopped by the client.
	Loop eventloop.Loop

	Logger  *util.Logger
	Metrics *metrics.Collector
}

// DefaultOptions returns the process-wide defaults.
func DefaultOptions() Options {
	return Options{
		PingTimeout:          config.DefaultPingTimeout,
		ReconnectOnError:     config.DefaultReconnectOnError,
		ReconnectDelayed:     config.DefaultReconnectDelayed,
		ReconnectDelays:      config.DefaultReconnectDelays(),
		ReconnectMaxAttempts: config.DefaultReconnectMaxAttempts,
		ConnTimeout:          config.DefaultConnTimeout,
		WriteTimeout:         config.DefaultWriteTimeout,
	}
}

// ConnectOptions selects the target of one Connect call.
type ConnectOptions struct {
	Host string
	Port int
	TLS  bool

	// Reconnect reuses the previous session's target for any field
	// left empty.
	Reconnect bool

	// Loop, when set, replaces the client's event loop from this
	// connection on.
	Loop eventloop.Loop
}

// Client owns one chat-protocol session at a time.
type Client struct {
	opts       Options
	policy     retry.Policy
	logger     *util.Logger
	dialer     transport.Dialer
	metrics    *metrics.Collector
	dispatcher *Dispatcher
	watchdog   *Watchdog
	ownLoop    *eventloop.EventLoop

	mu               sync.Mutex
	loop             eventloop.Loop
	state            State
	conn             transport.Conn
	gen              uint64
	target           *transport.Target
	network          string
	server           string
	port             int
	sessionID        string
	attempts         int
	pendingReconnect eventloop.Handle

	onConnect    func()
	onDisconnect func(DisconnectEvent)
	onDataError  func(error)
	onError      func(error)
}

// New creates a disconnected client.  A built-in PING handler answers
// with PONG; register another "PING" handler to replace it.
func New(opts Options) *Client {
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = config.DefaultPingTimeout
	}
	if opts.ConnTimeout <= 0 {
		opts.ConnTimeout = config.DefaultConnTimeout
	}
	if opts.ReconnectDelays == nil {
		opts.ReconnectDelays = config.DefaultReconnectDelays()
	}
	logger := opts.Logger.Named("client")
	if opts.Dialer == nil {
		opts.Dialer = &transport.TCPDialer{Timeout: opts.ConnTimeout}
	}

	c := &Client{
		opts: opts,
		policy: retry.Policy{
			Delayed:     opts.ReconnectDelayed,
			Schedule:    opts.ReconnectDelays,
			MaxAttempts: opts.ReconnectMaxAttempts,
		},
		logger:     logger,
		dialer:     opts.Dialer,
		metrics:    opts.Metrics,
		dispatcher: NewDispatcher(),
		loop:       opts.Loop,
		network:    opts.Network,
	}
	c.watchdog = NewWatchdog(opts.PingTimeout)

	if c.loop == nil {
		c.ownLoop = eventloop.New(opts.Logger.Named("loop"))
		c.loop = c.ownLoop
		go c.ownLoop.Run(context.Background()) //nolint:errcheck
	}

	c.dispatcher.Handle("PING", c.pong)
	return c
}

// ── Registration ─────────────────────────────────────────────────────

// Handle registers h for command.  See [Dispatcher.Handle].
func (c *Client) Handle(command string, h Handler) { c.dispatcher.Handle(command, h) }

// HandleUnknown sets the fallback for unregistered commands.
func (c *Client) HandleUnknown(h Handler) { c.dispatcher.HandleUnknown(h) }

// OnConnect is called after every successful connect or reconnect.
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

// OnDisconnect is called once each time an open session ends.
func (c *Client) OnDisconnect(fn func(DisconnectEvent)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

// OnDataError receives ping timeouts and undecodable lines.
func (c *Client) OnDataError(fn func(error)) {
	c.mu.Lock()
	c.onDataError = fn
	c.mu.Unlock()
}

// OnError receives errors returned by handlers.
func (c *Client) OnError(fn func(error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// ── Lifecycle ────────────────────────────────────────────────────────

// Connect opens a session to the target described by o.  An open
// session is disconnected first.  Missing or malformed targets fail
// with an *errors.ArgumentError; dial and handshake failures return an
// *errors.ConnectionError and are not retried automatically.
//
// Connect blocks until the connection is established or fails, so it
// should not be called from a loop callback.
func (c *Client) Connect(ctx context.Context, o ConnectOptions) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ircerr.ErrClientClosed
	}
	target, err := c.resolveLocked(o)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if o.Loop != nil {
		c.loop = o.Loop
	}

	var fire func()
	if c.state == StateConnected {
		fire = c.disconnectLocked(DisconnectEvent{Expected: true})
	} else {
		c.cancelReconnectLocked()
		c.gen++
	}
	c.state = StateConnecting
	gen := c.gen
	c.mu.Unlock()

	if fire != nil {
		fire()
	}

	c.logger.Verbose("connecting to %s (tls=%v)", target.Addr(), target.TLS)
	dctx, cancel := context.WithTimeout(ctx, c.opts.ConnTimeout)
	conn, err := transport.Open(dctx, c.dialer, target)
	cancel()

	c.mu.Lock()
	if gen != c.gen {
		closed := c.state == StateClosed
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		if closed {
			return ircerr.ErrClientClosed
		}
		return fmt.Errorf("connect to %s superseded: %w", target.Addr(), ircerr.ErrNotConnected)
	}
	if err != nil {
		c.state = StateDisconnected
		c.mu.Unlock()
		c.metrics.RecordError(err.Error())
		c.logger.Warn("connect to %s failed: %v", target.Addr(), err)
		return err
	}
	hook := c.establishLocked(conn, target)
	c.mu.Unlock()

	hook()
	return nil
}

// Disconnect ends the current session.  With expected false the end is
// treated like a lost connection and, if enabled, a reconnect is
// scheduled on the loop.
func (c *Client) Disconnect(expected bool) {
	c.mu.Lock()
	fire := c.disconnectLocked(DisconnectEvent{Expected: expected})
	c.mu.Unlock()
	fire()
}

// Close disconnects, cancels every pending callback and makes further
// Connect calls fail with ErrClientClosed.  An event loop created by
// New is stopped.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	fire := c.disconnectLocked(DisconnectEvent{Expected: true})
	c.state = StateClosed
	c.mu.Unlock()

	fire()
	if c.ownLoop != nil {
		c.ownLoop.Stop()
	}
	c.logger.Debug("closed")
	return nil
}

// ── Sending ──────────────────────────────────────────────────────────

// Send encodes msg and writes it to the open session.
func (c *Client) Send(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ircerr.ErrNotConnected
	}

	if err := conn.Send(data); err != nil {
		c.metrics.RecordError(err.Error())
		return err
	}
	c.metrics.MessageSent()
	c.metrics.BytesSent(int64(len(data)))
	c.logger.Debug(">> %s", msg)
	return nil
}

// Sendf formats a raw protocol line, validates it and sends it.
func (c *Client) Sendf(format string, args ...interface{}) error {
	msg, err := protocol.Decode(fmt.Sprintf(format, args...))
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// ── Accessors ────────────────────────────────────────────────────────

// Connected reports whether a session is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ServerTag returns a short lower-case label for the network, or ""
// before the first successful connect.
func (c *Client) ServerTag() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return serverTag(c.network, c.server)
}

// SetNetwork names the network; it takes precedence in ServerTag.
func (c *Client) SetNetwork(name string) {
	c.mu.Lock()
	c.network = name
	c.mu.Unlock()
}

// Network returns the configured network name.
func (c *Client) Network() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.network
}

// Server returns the host of the last established session.
func (c *Client) Server() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.server
}

// Port returns the port of the last established session.
func (c *Client) Port() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port
}

// ReconnectAttempts returns the number of automatic attempts scheduled
// since the last successful connect.
func (c *Client) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// SessionID identifies the current (or last) established session.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Loop returns the event loop the client schedules on.
func (c *Client) Loop() eventloop.Loop {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loop
}

// Metrics returns the collector passed in Options (may be nil).
func (c *Client) Metrics() *metrics.Collector { return c.metrics }

// ── Internals ────────────────────────────────────────────────────────

// resolveLocked turns o into a target, falling back to the cached one
// when o.Reconnect is set.
func (c *Client) resolveLocked(o ConnectOptions) (transport.Target, error) {
	t := transport.Target{
		Host:         o.Host,
		Port:         o.Port,
		TLS:          o.TLS,
		TLSConfig:    c.opts.TLSConfig,
		WriteTimeout: c.opts.WriteTimeout,
	}
	if o.Reconnect && c.target != nil {
		if t.Host == "" {
			t.Host = c.target.Host
			t.TLS = c.target.TLS
		}
		if t.Port == 0 {
			t.Port = c.target.Port
		}
	}

	switch {
	case t.Host == "" && t.Port == 0:
		return t, ircerr.InvalidArgument("host", nil, "no host or port given and no previous session to reuse")
	case t.Host == "":
		return t, ircerr.InvalidArgument("host", nil, "port given without a host")
	case t.Port == 0:
		return t, ircerr.InvalidArgument("port", nil, "host given without a port")
	case !util.ValidPort(t.Port):
		return t, ircerr.InvalidArgument("port", t.Port, "must be between 1 and 65535")
	}
	return t, nil
}

// establishLocked makes conn the active session.  It returns the
// connect hook to run once the lock is released.
func (c *Client) establishLocked(conn transport.Conn, target transport.Target) func() {
	c.gen++
	gen := c.gen
	c.conn = conn
	c.state = StateConnected
	c.attempts = 0
	c.pendingReconnect = nil
	c.target = &target
	c.server = target.Host
	c.port = target.Port
	c.sessionID = uuid.NewString()
	loop := c.loop

	c.metrics.ConnectionOpened()
	c.watchdog.Arm(loop, func() { c.pingTimeout(gen) })
	loop.RunInBackground(func() { c.readLoop(loop, conn, gen) })

	c.logger.Info("connected to %s (session %s)", target.Addr(), c.sessionID)

	hook := c.onConnect
	return func() {
		if hook != nil {
			hook()
		}
	}
}

// disconnectLocked tears down the session and applies the transition
// for ev.  It returns the disconnect hook to run once the lock is
// released.
func (c *Client) disconnectLocked(ev DisconnectEvent) func() {
	if !ev.Expected && !c.state.live() {
		// Nothing to lose; a booked reconnect stays booked.
		c.logger.Debug("unexpected disconnect while %v ignored", c.state)
		return func() {}
	}
	c.cancelReconnectLocked()
	c.watchdog.Disarm()
	c.gen++

	wasConnected := c.state == StateConnected
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.metrics.ConnectionClosed()
	}

	canRetry := c.opts.ReconnectOnError && c.target != nil && !c.policy.Exhausted(c.attempts)
	state, retryNow := next(c.state, ev, canRetry)
	c.state = state

	switch {
	case retryNow:
		c.scheduleReconnectLocked()
	case !ev.Expected && state == StateDisconnected:
		c.logger.Verbose("not reconnecting after unexpected disconnect")
	}

	if wasConnected {
		if ev.Expected {
			c.logger.Info("disconnected")
		} else {
			c.logger.Warn("connection lost: %v", ev.Cause)
		}
	}

	hook := c.onDisconnect
	return func() {
		if wasConnected && hook != nil {
			hook(ev)
		}
	}
}

func (c *Client) cancelReconnectLocked() {
	if c.pendingReconnect != nil {
		c.loop.Cancel(c.pendingReconnect)
		c.pendingReconnect = nil
	}
}

// scheduleReconnectLocked books the next attempt in the single pending
// slot.  The counter grows by one per scheduled attempt.
func (c *Client) scheduleReconnectLocked() {
	delay := c.policy.Delay(c.attempts)
	c.attempts++
	c.metrics.ReconnectAttempt()
	c.logger.Verbose("reconnect attempt %d in %v", c.attempts, delay)

	gen := c.gen
	c.pendingReconnect = c.loop.ScheduleAfter(delay, func() { c.reconnect(gen) })
}

// reconnect runs on the loop when a scheduled attempt is due.  The dial
// happens in the background and its result is posted back.
func (c *Client) reconnect(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.pendingReconnect = nil
	c.gen++
	gen = c.gen
	target := *c.target
	loop := c.loop
	c.mu.Unlock()

	c.logger.Verbose("reconnecting to %s", target.Addr())
	loop.RunInBackground(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.ConnTimeout)
		conn, err := transport.Open(ctx, c.dialer, target)
		cancel()
		loop.ScheduleAfter(0, func() { c.reconnectDone(gen, target, conn, err) })
	})
}

func (c *Client) reconnectDone(gen uint64, target transport.Target, conn transport.Conn, err error) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateReconnecting {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		c.metrics.RecordError(err.Error())
		c.logger.Warn("reconnect to %s failed: %v", target.Addr(), err)
		if c.policy.Exhausted(c.attempts) {
			c.state = StateDisconnected
			c.logger.Verbose("giving up after %d reconnect attempts", c.attempts)
		} else {
			c.scheduleReconnectLocked()
		}
		c.mu.Unlock()
		return
	}

	hook := c.establishLocked(conn, target)
	c.mu.Unlock()
	hook()
}

// readLoop runs in the background for one session and posts every line
// and the final error to the loop.
func (c *Client) readLoop(loop eventloop.Loop, conn transport.Conn, gen uint64) {
	for {
		line, err := conn.ReadLine()
		if err != nil {
			loop.ScheduleAfter(0, func() { c.connectionLost(gen, conn, err) })
			return
		}
		c.metrics.BytesReceived(int64(len(line) + 2))
		loop.ScheduleAfter(0, func() { c.handleLine(gen, line) })
	}
}

func (c *Client) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen && c.state == StateConnected
}

func (c *Client) handleLine(gen uint64, line string) {
	if !c.isCurrent(gen) {
		return
	}
	c.watchdog.Feed()
	c.logger.Debug("<< %s", line)

	msg, err := protocol.Decode(line)
	if err != nil {
		c.metrics.DecodeError()
		c.dataError(err)
		return
	}

	c.metrics.MessageDispatched()
	if !c.dispatcher.Handles(msg.Command) {
		c.metrics.UnknownCommand()
	}
	if err := c.dispatcher.Dispatch(msg); err != nil {
		c.handlerError(msg, err)
	}
}

func (c *Client) connectionLost(gen uint64, conn transport.Conn, err error) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	addr := ""
	if a := conn.RemoteAddr(); a != nil {
		addr = a.String()
	}
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	cause := ircerr.Wrap("read", addr, err)
	c.metrics.RecordError(cause.Error())
	fire := c.disconnectLocked(DisconnectEvent{Expected: false, Cause: cause})
	c.mu.Unlock()
	fire()
}

// pingTimeout is the watchdog callback for session gen.  A timeout
// that outlived its session does nothing.  Otherwise the data-error
// hook fires even when no reconnect follows, so the cause is never
// swallowed.
func (c *Client) pingTimeout(gen uint64) {
	c.mu.Lock()
	live := gen == c.gen && c.state == StateConnected
	c.mu.Unlock()
	if !live {
		return
	}

	err := &ircerr.TimeoutError{After: c.opts.PingTimeout}
	c.metrics.PingTimeout()
	c.dataError(err)

	// The hook may have replaced or closed the session.
	c.mu.Lock()
	if gen != c.gen || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	fire := c.disconnectLocked(DisconnectEvent{Expected: false, Cause: err})
	c.mu.Unlock()
	fire()
}

func (c *Client) dataError(err error) {
	c.mu.Lock()
	hook := c.onDataError
	c.mu.Unlock()

	c.logger.Warn("data error: %v", err)
	if hook != nil {
		hook(err)
	}
}

func (c *Client) handlerError(msg protocol.Message, err error) {
	c.mu.Lock()
	hook := c.onError
	c.mu.Unlock()

	c.metrics.RecordError(err.Error())
	c.logger.Error("handler %s: %v", msg.Command, err)
	if hook != nil {
		hook(err)
	}
}

func (c *Client) pong(msg protocol.Message) error {
	return c.Send(protocol.New("PONG", msg.Params...))
}
