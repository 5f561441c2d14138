package client

import (
	"bufio"
	"context"
	"errors"
	"net"
	"reflect"
	"sync"
	"testing"
	"time"

	ircerr "ircc/internal/errors"
	"ircc/internal/eventloop"
	"ircc/internal/metrics"
	"ircc/internal/protocol"
	"ircc/util"
)

// ── helpers ──────────────────────────────────────────────────────────

// pipeDialer hands out in-memory connections.  The server end of each
// one is queued on servers.
type pipeDialer struct {
	mu      sync.Mutex
	fail    error
	gate    chan struct{}
	addrs   []string
	servers chan net.Conn
}

func newPipeDialer(t *testing.T) *pipeDialer {
	d := &pipeDialer{servers: make(chan net.Conn, 64)}
	t.Cleanup(func() {
		for {
			select {
			case c := <-d.servers:
				c.Close()
			default:
				return
			}
		}
	})
	return d
}

func (d *pipeDialer) Dial(_ context.Context, _, address string) (net.Conn, error) {
	d.mu.Lock()
	d.addrs = append(d.addrs, address)
	fail, gate := d.fail, d.gate
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if fail != nil {
		return nil, fail
	}
	client, server := net.Pipe()
	d.servers <- server
	return client, nil
}

func (d *pipeDialer) Close() error { return nil }

func (d *pipeDialer) setFail(err error) {
	d.mu.Lock()
	d.fail = err
	d.mu.Unlock()
}

// hold makes subsequent dials block until the returned func is called.
func (d *pipeDialer) hold() (release func()) {
	gate := make(chan struct{})
	d.mu.Lock()
	d.gate = gate
	d.mu.Unlock()
	return func() { close(gate) }
}

func (d *pipeDialer) dials() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.addrs...)
}

// server returns the server end of the next dialled connection.
func (d *pipeDialer) server(t *testing.T) net.Conn {
	t.Helper()
	select {
	case c := <-d.servers:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection was dialled")
		return nil
	}
}

func newTestClient(t *testing.T, mutate func(*Options)) (*Client, *eventloop.Manual, *pipeDialer) {
	t.Helper()
	loop := eventloop.NewManual()
	d := newPipeDialer(t)

	opts := DefaultOptions()
	opts.Loop = loop
	opts.Dialer = d
	opts.Logger = util.NewLogger(0)
	opts.Metrics = metrics.New()
	if mutate != nil {
		mutate(&opts)
	}

	c := New(opts)
	t.Cleanup(func() { c.Close() })
	return c, loop, d
}

func mustConnect(t *testing.T, c *Client, d *pipeDialer, host string) net.Conn {
	t.Helper()
	if err := c.Connect(context.Background(), ConnectOptions{Host: host, Port: 1337}); err != nil {
		t.Fatalf("Connect(%s): %v", host, err)
	}
	if !c.Connected() {
		t.Fatal("Connected() = false after successful Connect")
	}
	return d.server(t)
}

// drive runs due loop callbacks until cond holds.  Background work
// (reads, dials) completes on real goroutines, so it polls.
func drive(t *testing.T, loop *eventloop.Manual, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		loop.RunDue()
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(time.Millisecond)
	}
}

// settle gives background readers time to post their final callbacks
// and runs whatever is due now.
func settle(loop *eventloop.Manual) {
	for i := 0; i < 5; i++ {
		time.Sleep(5 * time.Millisecond)
		loop.RunDue()
	}
}

func serverSend(t *testing.T, srv net.Conn, line string) {
	t.Helper()
	srv.SetWriteDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	if _, err := srv.Write([]byte(line + "\r\n")); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

// ── Connect / Disconnect ─────────────────────────────────────────────

func TestClient_DisconnectThenReconnect(t *testing.T) {
	c, loop, d := newTestClient(t, nil)
	mustConnect(t, c, d, "mock.local")

	c.Disconnect(true)
	if c.Connected() {
		t.Fatal("still connected after Disconnect")
	}
	settle(loop)
	if loop.Pending() != 0 {
		t.Errorf("pending = %d after expected disconnect, want 0", loop.Pending())
	}

	if err := c.Connect(context.Background(), ConnectOptions{Reconnect: true}); err != nil {
		t.Fatalf("Connect(reconnect): %v", err)
	}
	if !c.Connected() {
		t.Fatal("not connected after reconnect")
	}

	want := []string{"mock.local:1337", "mock.local:1337"}
	if got := d.dials(); !reflect.DeepEqual(got, want) {
		t.Errorf("dials = %v, want %v", got, want)
	}
}

func TestClient_ConnectInvalidArguments(t *testing.T) {
	c, _, d := newTestClient(t, nil)

	tests := []struct {
		name string
		opts ConnectOptions
	}{
		{"nothing", ConnectOptions{}},
		{"port only", ConnectOptions{Port: 1337}},
		{"host only", ConnectOptions{Host: "mock.local"}},
		{"port out of range", ConnectOptions{Host: "mock.local", Port: 70000}},
		{"reconnect without previous session", ConnectOptions{Reconnect: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Connect(context.Background(), tt.opts)
			if !errors.Is(err, ircerr.ErrInvalidArgument) {
				t.Fatalf("got %v, want ErrInvalidArgument", err)
			}
			var ae *ircerr.ArgumentError
			if !errors.As(err, &ae) {
				t.Errorf("got %T, want *ArgumentError", err)
			}
		})
	}

	if n := len(d.dials()); n != 0 {
		t.Errorf("invalid connects dialled %d times", n)
	}
	if c.Connected() {
		t.Error("client should stay disconnected")
	}
}

func TestClient_ConnectWhileConnectedDisconnectsFirst(t *testing.T) {
	c, _, d := newTestClient(t, nil)

	var events []string
	c.OnConnect(func() { events = append(events, "connect") })
	c.OnDisconnect(func(ev DisconnectEvent) {
		if !ev.Expected {
			t.Errorf("implicit disconnect should be expected, got %+v", ev)
		}
		events = append(events, "disconnect")
	})

	mustConnect(t, c, d, "mock.local")
	mustConnect(t, c, d, "irc.mock.local")

	want := []string{"connect", "disconnect", "connect"}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestClient_ConnectFailure(t *testing.T) {
	c, loop, d := newTestClient(t, nil)
	d.setFail(errors.New("connection refused"))

	err := c.Connect(context.Background(), ConnectOptions{Host: "mock.local", Port: 1337})
	var ce *ircerr.ConnectionError
	if !errors.As(err, &ce) || ce.Op != "dial" {
		t.Fatalf("got %v, want a dial ConnectionError", err)
	}
	if c.Connected() || c.State() != StateDisconnected {
		t.Errorf("state = %v after failed connect", c.State())
	}
	if loop.Pending() != 0 {
		t.Errorf("failed explicit connect scheduled %d callbacks", loop.Pending())
	}
	if c.ServerTag() != "" {
		t.Errorf("server tag = %q before any successful connect", c.ServerTag())
	}
}

func TestClient_PerConnectLoop(t *testing.T) {
	c, _, d := newTestClient(t, nil)
	other := eventloop.NewManual()

	if err := c.Connect(context.Background(), ConnectOptions{Host: "mock", Port: 1337, Loop: other}); err != nil {
		t.Fatal(err)
	}
	d.server(t)

	if c.Loop() != other {
		t.Error("Connect should adopt the supplied loop")
	}
	if other.Pending() != 1 {
		t.Errorf("watchdog should be armed on the new loop, pending = %d", other.Pending())
	}
}

// ── Reconnection ─────────────────────────────────────────────────────

func TestClient_UnexpectedDisconnectReconnects(t *testing.T) {
	c, loop, d := newTestClient(t, nil)
	mustConnect(t, c, d, "mock.local")

	var got []DisconnectEvent
	c.OnDisconnect(func(ev DisconnectEvent) { got = append(got, ev) })

	c.Disconnect(false)
	if c.Connected() {
		t.Fatal("still connected")
	}
	settle(loop)
	if c.State() != StateReconnecting {
		t.Fatalf("state = %v, want reconnecting", c.State())
	}
	if len(got) != 1 || got[0].Expected {
		t.Fatalf("disconnect events = %+v", got)
	}
	if due, ok := loop.NextDue(); !ok || due != 5*time.Second {
		t.Fatalf("next reconnect in %v (ok=%v), want 5s", due, ok)
	}

	loop.Advance(4 * time.Second)
	if c.Connected() || len(d.dials()) != 1 {
		t.Fatal("reconnected before the delay elapsed")
	}

	loop.Advance(time.Second)
	drive(t, loop, c.Connected)
	if c.ReconnectAttempts() != 0 {
		t.Errorf("attempts = %d after reconnect, want 0", c.ReconnectAttempts())
	}
	if n := len(d.dials()); n != 2 {
		t.Errorf("dials = %d, want 2", n)
	}
}

func TestClient_ReconnectImmediate(t *testing.T) {
	c, loop, d := newTestClient(t, func(o *Options) { o.ReconnectDelayed = false })
	mustConnect(t, c, d, "mock.local")

	c.Disconnect(false)
	if due, ok := loop.NextDue(); !ok || due != 0 {
		t.Fatalf("next reconnect in %v (ok=%v), want 0", due, ok)
	}
	drive(t, loop, c.Connected)
}

func TestClient_ExpectedDisconnectNeverReconnects(t *testing.T) {
	for _, reconnect := range []bool{true, false} {
		c, loop, d := newTestClient(t, func(o *Options) { o.ReconnectOnError = reconnect })
		mustConnect(t, c, d, "mock.local")

		c.Disconnect(true)
		settle(loop)
		if loop.Pending() != 0 {
			t.Errorf("reconnect=%v: pending = %d, want 0", reconnect, loop.Pending())
		}
		loop.Advance(time.Hour)
		if c.Connected() || len(d.dials()) != 1 {
			t.Errorf("reconnect=%v: client reconnected after expected disconnect", reconnect)
		}
	}
}

func TestClient_GiveUp(t *testing.T) {
	c, loop, d := newTestClient(t, func(o *Options) { o.ReconnectOnError = false })
	mustConnect(t, c, d, "mock.local")

	c.Disconnect(false)
	if c.Connected() {
		t.Fatal("still connected")
	}
	if c.State() != StateDisconnected {
		t.Errorf("state = %v, want disconnected", c.State())
	}
	settle(loop)
	if loop.Pending() != 0 {
		t.Errorf("pending = %d, want 0", loop.Pending())
	}

	loop.Advance(time.Hour)
	if c.Connected() || len(d.dials()) != 1 {
		t.Error("client reconnected after giving up")
	}
}

func TestClient_UnexpectedDisconnectWhileIdle(t *testing.T) {
	c, loop, d := newTestClient(t, nil)
	mustConnect(t, c, d, "mock.local")

	events := 0
	c.OnDisconnect(func(DisconnectEvent) { events++ })

	c.Disconnect(true)
	c.Disconnect(false)
	settle(loop)

	if c.State() != StateDisconnected {
		t.Errorf("state = %v, want disconnected", c.State())
	}
	if loop.Pending() != 0 {
		t.Errorf("pending = %d, want 0", loop.Pending())
	}
	loop.Advance(time.Hour)
	if c.Connected() || len(d.dials()) != 1 || events != 1 {
		t.Errorf("connected=%v dials=%d events=%d, want an idle client", c.Connected(), len(d.dials()), events)
	}
}

func TestClient_UnexpectedDisconnectKeepsPendingReconnect(t *testing.T) {
	c, loop, d := newTestClient(t, nil)
	mustConnect(t, c, d, "mock.local")

	c.Disconnect(false)
	settle(loop)
	attempts := c.ReconnectAttempts()
	due, _ := loop.NextDue()

	c.Disconnect(false)
	if c.ReconnectAttempts() != attempts {
		t.Errorf("attempts = %d, want %d", c.ReconnectAttempts(), attempts)
	}
	if got, ok := loop.NextDue(); !ok || got != due || loop.Pending() != 1 {
		t.Errorf("next due = %v (ok=%v, pending=%d), want the original %v", got, ok, loop.Pending(), due)
	}

	loop.Advance(due)
	drive(t, loop, c.Connected)
}

func TestClient_AttemptsResetAfterFailures(t *testing.T) {
	c, loop, d := newTestClient(t, nil)
	mustConnect(t, c, d, "mock.local")

	d.setFail(errors.New("connection refused"))
	c.Disconnect(false)
	settle(loop)
	if c.ReconnectAttempts() != 1 {
		t.Fatalf("attempts = %d, want 1", c.ReconnectAttempts())
	}

	loop.Advance(5 * time.Second)
	drive(t, loop, func() bool { return c.ReconnectAttempts() == 2 })
	if due, _ := loop.NextDue(); due != 5*time.Second {
		t.Errorf("second delay = %v, want 5s", due)
	}

	loop.Advance(5 * time.Second)
	drive(t, loop, func() bool { return c.ReconnectAttempts() == 3 })
	if due, _ := loop.NextDue(); due != 10*time.Second {
		t.Errorf("third delay = %v, want 10s", due)
	}
	if c.State() != StateReconnecting {
		t.Errorf("state = %v, want reconnecting", c.State())
	}

	d.setFail(nil)
	loop.Advance(10 * time.Second)
	drive(t, loop, c.Connected)
	if c.ReconnectAttempts() != 0 {
		t.Errorf("attempts = %d after success, want 0", c.ReconnectAttempts())
	}
}

func TestClient_MaxAttempts(t *testing.T) {
	c, loop, d := newTestClient(t, func(o *Options) { o.ReconnectMaxAttempts = 2 })
	mustConnect(t, c, d, "mock.local")

	d.setFail(errors.New("connection refused"))
	c.Disconnect(false)

	loop.Advance(5 * time.Second)
	drive(t, loop, func() bool { return c.ReconnectAttempts() == 2 })

	loop.Advance(5 * time.Second)
	drive(t, loop, func() bool { return c.State() == StateDisconnected })
	settle(loop)

	if loop.Pending() != 0 {
		t.Errorf("pending = %d after giving up, want 0", loop.Pending())
	}
	if n := len(d.dials()); n != 3 {
		t.Errorf("dials = %d, want 3", n)
	}
}

func TestClient_ConnectSupersedesPendingReconnect(t *testing.T) {
	c, loop, d := newTestClient(t, func(o *Options) { o.PingTimeout = 24 * time.Hour })
	mustConnect(t, c, d, "mock.local")

	connects := 0
	c.OnConnect(func() { connects++ })

	c.Disconnect(false)
	settle(loop)
	if loop.Pending() != 1 {
		t.Fatalf("pending = %d, want 1 reconnect", loop.Pending())
	}

	mustConnect(t, c, d, "irc.mock.local")
	loop.Advance(time.Hour)

	if connects != 1 {
		t.Errorf("connects = %d, want 1", connects)
	}
	if n := len(d.dials()); n != 2 {
		t.Errorf("dials = %d, want 2 (stale reconnect fired)", n)
	}
	if loop.Pending() != 1 {
		t.Errorf("pending = %d, want only the watchdog", loop.Pending())
	}
}

func TestClient_DisconnectDiscardsInFlightReconnect(t *testing.T) {
	c, loop, d := newTestClient(t, nil)
	mustConnect(t, c, d, "mock.local")

	connects := 0
	c.OnConnect(func() { connects++ })

	c.Disconnect(false)
	settle(loop)
	release := d.hold()
	loop.Advance(5 * time.Second) // attempt starts dialling in the background

	c.Disconnect(true)
	release()
	stale := d.server(t)

	// Wait for the dial result to be posted, then run it.
	deadline := time.Now().Add(2 * time.Second)
	for loop.Pending() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	settle(loop)

	if c.Connected() || connects != 0 {
		t.Fatal("stale reconnect result was applied")
	}
	stale.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	if _, err := stale.Read(make([]byte, 1)); err == nil {
		t.Error("stale connection should be closed")
	}
}

func TestClient_ConnectionLost(t *testing.T) {
	c, loop, d := newTestClient(t, nil)
	srv := mustConnect(t, c, d, "mock.local")

	var got []DisconnectEvent
	c.OnDisconnect(func(ev DisconnectEvent) { got = append(got, ev) })

	srv.Close()
	drive(t, loop, func() bool { return c.State() == StateReconnecting })

	if len(got) != 1 {
		t.Fatalf("disconnect events = %d, want 1", len(got))
	}
	var ce *ircerr.ConnectionError
	if got[0].Expected || !errors.As(got[0].Cause, &ce) || ce.Op != "read" {
		t.Errorf("event = %+v, want unexpected read ConnectionError", got[0])
	}
}

// ── Watchdog ─────────────────────────────────────────────────────────

func TestClient_PingTimeout(t *testing.T) {
	c, loop, d := newTestClient(t, func(o *Options) { o.PingTimeout = 10 * time.Second })
	mustConnect(t, c, d, "mock.local")

	var dataErrs []error
	c.OnDataError(func(err error) { dataErrs = append(dataErrs, err) })

	loop.Advance(10 * time.Second)

	if len(dataErrs) != 1 {
		t.Fatalf("data errors = %d, want 1", len(dataErrs))
	}
	var te *ircerr.TimeoutError
	if !errors.As(dataErrs[0], &te) {
		t.Errorf("data error = %T, want *TimeoutError", dataErrs[0])
	}
	if c.Connected() {
		t.Error("still connected after ping timeout")
	}
	if c.State() != StateReconnecting {
		t.Errorf("state = %v, want reconnecting", c.State())
	}
	if c.Metrics().PingTimeouts() != 1 {
		t.Errorf("ping timeouts = %d", c.Metrics().PingTimeouts())
	}
}

func TestClient_PingTimeoutGiveUpStillReports(t *testing.T) {
	c, loop, d := newTestClient(t, func(o *Options) {
		o.PingTimeout = 10 * time.Second
		o.ReconnectOnError = false
	})
	mustConnect(t, c, d, "mock.local")

	fired := 0
	c.OnDataError(func(err error) {
		if ircerr.IsTimeout(err) {
			fired++
		}
	})

	loop.Advance(time.Hour)
	settle(loop)

	if fired != 1 {
		t.Errorf("timeout reported %d times, want 1", fired)
	}
	if c.Connected() || loop.Pending() != 0 {
		t.Errorf("connected=%v pending=%d, want terminal disconnect", c.Connected(), loop.Pending())
	}
}

func TestClient_PingTimeoutSparesReplacementSession(t *testing.T) {
	c, loop, d := newTestClient(t, func(o *Options) { o.PingTimeout = 10 * time.Second })
	mustConnect(t, c, d, "mock.local")

	var events []DisconnectEvent
	c.OnDisconnect(func(ev DisconnectEvent) { events = append(events, ev) })
	replaced := false
	c.OnDataError(func(err error) {
		if replaced || !ircerr.IsTimeout(err) {
			return
		}
		replaced = true
		if err := c.Connect(context.Background(), ConnectOptions{Host: "irc.mock.local", Port: 1337}); err != nil {
			t.Errorf("Connect from data-error hook: %v", err)
		}
	})

	loop.Advance(10 * time.Second)
	d.server(t)

	if !replaced {
		t.Fatal("timeout was not reported")
	}
	if !c.Connected() || c.Server() != "irc.mock.local" {
		t.Fatalf("connected=%v server=%q, want the replacement session", c.Connected(), c.Server())
	}
	if len(events) != 1 || !events[0].Expected {
		t.Errorf("disconnect events = %+v, want only the replacement's expected one", events)
	}
	if c.Metrics().PingTimeouts() != 1 {
		t.Errorf("ping timeouts = %d, want 1", c.Metrics().PingTimeouts())
	}
}

func TestClient_StaleTimeoutIgnored(t *testing.T) {
	c, loop, d := newTestClient(t, func(o *Options) { o.PingTimeout = 10 * time.Second })
	mustConnect(t, c, d, "mock.local")
	c.mu.Lock()
	stale := c.gen
	c.mu.Unlock()

	mustConnect(t, c, d, "irc.mock.local")
	fired := 0
	c.OnDataError(func(error) { fired++ })

	c.pingTimeout(stale)
	settle(loop)

	if fired != 0 || !c.Connected() {
		t.Errorf("fired=%d connected=%v, want the live session untouched", fired, c.Connected())
	}
}

func TestClient_TrafficKeepsConnectionAlive(t *testing.T) {
	c, loop, d := newTestClient(t, func(o *Options) { o.PingTimeout = 10 * time.Second })
	srv := mustConnect(t, c, d, "mock.local")

	seen := 0
	c.HandleUnknown(func(protocol.Message) error { seen++; return nil })

	for i := 1; i <= 5; i++ {
		loop.Advance(8 * time.Second)
		serverSend(t, srv, ":irc.mock.local NOTICE * :still here")
		drive(t, loop, func() bool { return seen == i })
	}

	if !c.Connected() {
		t.Error("watchdog fired despite steady traffic")
	}
}

// ── Server tag ───────────────────────────────────────────────────────

func TestClient_ServerTag(t *testing.T) {
	c, _, d := newTestClient(t, nil)

	if tag := c.ServerTag(); tag != "" {
		t.Fatalf("tag before connect = %q, want empty", tag)
	}

	for _, tt := range []struct{ host, want string }{
		{"Mock.local", "mock"},
		{"irc.mock.local", "mock"},
		{"mock", "mock"},
		{"127.0.0.1", "127.0.0.1"},
	} {
		mustConnect(t, c, d, tt.host)
		if got := c.ServerTag(); got != tt.want {
			t.Errorf("host %q: tag = %q, want %q", tt.host, got, tt.want)
		}
		if tt.host != "127.0.0.1" {
			c.Disconnect(true)
		}
	}

	c.SetNetwork("MockNet")
	if got := c.ServerTag(); got != "mocknet" {
		t.Errorf("tag with network = %q, want mocknet", got)
	}
	c.Disconnect(true)
	if got := c.ServerTag(); got != "mocknet" {
		t.Errorf("tag after disconnect = %q, want mocknet", got)
	}
}

// ── Dispatch ─────────────────────────────────────────────────────────

func TestClient_Message(t *testing.T) {
	c, loop, d := newTestClient(t, nil)
	srv := mustConnect(t, c, d, "mock.local")

	var got []protocol.Message
	unknown := 0
	c.Handle("INSTALL", func(m protocol.Message) error { got = append(got, m); return nil })
	c.HandleUnknown(func(protocol.Message) error { unknown++; return nil })

	serverSend(t, srv, "INSTALL gentoo")
	drive(t, loop, func() bool { return len(got) > 0 })

	want := protocol.Message{Command: "INSTALL", Params: []string{"gentoo"}}
	if len(got) != 1 || !reflect.DeepEqual(got[0], want) {
		t.Errorf("handler got %+v, want [%+v]", got, want)
	}
	if unknown != 0 {
		t.Errorf("unknown handler called %d times", unknown)
	}
}

func TestClient_Unknown(t *testing.T) {
	c, loop, d := newTestClient(t, nil)
	srv := mustConnect(t, c, d, "mock.local")

	var got []protocol.Message
	c.HandleUnknown(func(m protocol.Message) error { got = append(got, m); return nil })

	serverSend(t, srv, "INSTALL gentoo")
	drive(t, loop, func() bool { return len(got) > 0 })

	if len(got) != 1 || got[0].Command != "INSTALL" || got[0].Param(0) != "gentoo" {
		t.Errorf("unknown handler got %+v", got)
	}
	if c.Metrics().UnknownCommands() != 1 {
		t.Errorf("unknown commands = %d, want 1", c.Metrics().UnknownCommands())
	}
}

func TestClient_PingPong(t *testing.T) {
	c, loop, d := newTestClient(t, nil)
	srv := mustConnect(t, c, d, "mock.local")

	reply := make(chan string, 1)
	go func() {
		line, err := bufio.NewReader(srv).ReadString('\n')
		if err == nil {
			reply <- line
		}
	}()

	serverSend(t, srv, "PING :irc.mock.local")
	var line string
	drive(t, loop, func() bool {
		select {
		case line = <-reply:
			return true
		default:
			return false
		}
	})

	msg, err := protocol.Decode(line[:len(line)-2])
	if err != nil {
		t.Fatalf("decode %q: %v", line, err)
	}
	if msg.Command != "PONG" || msg.Param(0) != "irc.mock.local" {
		t.Errorf("reply = %q, want PONG irc.mock.local", line)
	}
}

func TestClient_DecodeErrorKeepsSession(t *testing.T) {
	c, loop, d := newTestClient(t, nil)
	srv := mustConnect(t, c, d, "mock.local")

	var dataErrs []error
	c.OnDataError(func(err error) { dataErrs = append(dataErrs, err) })

	serverSend(t, srv, "!!! not a command")
	drive(t, loop, func() bool { return len(dataErrs) > 0 })

	var de *ircerr.DecodeError
	if !errors.As(dataErrs[0], &de) {
		t.Errorf("data error = %T, want *DecodeError", dataErrs[0])
	}
	if !c.Connected() {
		t.Error("decode error should not end the session")
	}
}

func TestClient_HandlerErrorReported(t *testing.T) {
	c, loop, d := newTestClient(t, nil)
	srv := mustConnect(t, c, d, "mock.local")

	boom := errors.New("boom")
	c.Handle("INSTALL", func(protocol.Message) error { return boom })

	var errs []error
	c.OnError(func(err error) { errs = append(errs, err) })

	serverSend(t, srv, "INSTALL gentoo")
	drive(t, loop, func() bool { return len(errs) > 0 })

	if !errors.Is(errs[0], boom) {
		t.Errorf("error hook got %v, want %v", errs[0], boom)
	}
	if !c.Connected() {
		t.Error("handler error should not end the session")
	}
}

// ── Sending ──────────────────────────────────────────────────────────

func TestClient_Send(t *testing.T) {
	c, _, d := newTestClient(t, nil)

	if err := c.Send(protocol.New("PRIVMSG", "#ircc", "hi")); !errors.Is(err, ircerr.ErrNotConnected) {
		t.Fatalf("Send while disconnected: got %v, want ErrNotConnected", err)
	}

	srv := mustConnect(t, c, d, "mock.local")
	lines := make(chan string, 2)
	go func() {
		r := bufio.NewReader(srv)
		for i := 0; i < 2; i++ {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			lines <- line
		}
	}()

	if err := c.Send(protocol.New("PRIVMSG", "#ircc", "hi there")); err != nil {
		t.Fatal(err)
	}
	if err := c.Sendf("NOTICE %s :%s", "#ircc", "bye"); err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{"PRIVMSG #ircc :hi there\r\n", "NOTICE #ircc bye\r\n"} {
		select {
		case got := <-lines:
			if got != want {
				t.Errorf("server got %q, want %q", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("server received nothing")
		}
	}
	if c.Metrics().MessagesOut() != 2 {
		t.Errorf("messages out = %d, want 2", c.Metrics().MessagesOut())
	}
}

// ── Close ────────────────────────────────────────────────────────────

func TestClient_Close(t *testing.T) {
	c, loop, d := newTestClient(t, nil)
	mustConnect(t, c, d, "mock.local")
	c.Disconnect(false) // leaves a reconnect pending

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if c.State() != StateClosed {
		t.Errorf("state = %v, want closed", c.State())
	}
	settle(loop)
	if loop.Pending() != 0 {
		t.Errorf("pending = %d after Close, want 0", loop.Pending())
	}

	err := c.Connect(context.Background(), ConnectOptions{Host: "mock.local", Port: 1337})
	if !errors.Is(err, ircerr.ErrClientClosed) {
		t.Errorf("Connect after Close: got %v, want ErrClientClosed", err)
	}
}

func TestClient_SessionIDChangesPerSession(t *testing.T) {
	c, _, d := newTestClient(t, nil)
	if c.SessionID() != "" {
		t.Fatal("session ID set before connect")
	}

	mustConnect(t, c, d, "mock.local")
	first := c.SessionID()
	mustConnect(t, c, d, "mock.local")

	if first == "" || first == c.SessionID() {
		t.Errorf("session IDs %q and %q should differ", first, c.SessionID())
	}
}

// ── End to end ───────────────────────────────────────────────────────

// TestClient_EndToEnd runs the client on its own event loop against a
// TCP server that goes silent after greeting each connection.
func TestClient_EndToEnd(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Write([]byte("INSTALL gentoo\r\n")) //nolint:errcheck
			go func() {
				defer conn.Close()
				buf := make([]byte, 512)
				for {
					if _, err := conn.Read(buf); err != nil {
						return
					}
				}
			}()
		}
	}()

	opts := DefaultOptions()
	opts.PingTimeout = 100 * time.Millisecond
	opts.ReconnectDelays = []time.Duration{20 * time.Millisecond}
	opts.Logger = util.NewLogger(0)
	c := New(opts)
	defer c.Close()

	installs := make(chan protocol.Message, 8)
	timeouts := make(chan error, 8)
	connects := make(chan struct{}, 8)
	c.Handle("INSTALL", func(m protocol.Message) error { installs <- m; return nil })
	c.OnDataError(func(err error) { timeouts <- err })
	c.OnConnect(func() { connects <- struct{}{} })

	port := ln.Addr().(*net.TCPAddr).Port
	if err := c.Connect(context.Background(), ConnectOptions{Host: "127.0.0.1", Port: port}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	waitFor(t, "connect", connects)
	waitFor(t, "INSTALL", installs)
	if err := waitFor(t, "ping timeout", timeouts); !ircerr.IsTimeout(err) {
		t.Fatalf("data error = %v, want a ping timeout", err)
	}
	waitFor(t, "reconnect", connects)
	waitFor(t, "INSTALL after reconnect", installs)

	if c.ServerTag() != "127.0.0.1" {
		t.Errorf("tag = %q", c.ServerTag())
	}
}

func waitFor[T any](t *testing.T, what string, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}
