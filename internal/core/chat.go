package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"ircc/internal/client"
	ircerr "ircc/internal/errors"
	"ircc/internal/metrics"
	"ircc/internal/protocol"
	"ircc/internal/retry"
	"ircc/util"
)

// ChatMode connects a client to a chat server, prints conversation
// traffic and relays raw protocol lines typed on stdin.  The client's
// own reconnect policy keeps the session alive until ctx is cancelled.
type ChatMode struct {
	Client *client.Client
	Target client.ConnectOptions
	Nick   string // registers with NICK/USER on each connect when set

	// Backoff retries the first connect.  nil means a single attempt.
	Backoff *retry.Backoff
	Logger  *util.Logger

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	// Override in tests for deterministic I/O.
	Stdin  io.Reader
	Stdout io.Writer
}

func (m *ChatMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *ChatMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run connects, then blocks until ctx is done.  The client is closed
// when Run returns.
func (m *ChatMode) Run(ctx context.Context) error {
	defer m.Client.Close() //nolint:errcheck

	m.install()

	if err := m.connect(ctx); err != nil {
		return err
	}
	m.Logger.Info("connected to %s:%d as session %s",
		m.Client.Server(), m.Client.Port(), m.Client.SessionID())

	go m.relay(ctx)

	<-ctx.Done()
	m.Logger.Verbose("shutting down")
	return nil
}

// install registers output handlers and lifecycle hooks.
func (m *ChatMode) install() {
	out := m.stdout()
	show := func(msg protocol.Message) error {
		_, err := fmt.Fprintln(out, formatMessage(msg))
		return err
	}
	m.Client.Handle("PRIVMSG", show)
	m.Client.Handle("NOTICE", show)
	m.Client.HandleUnknown(func(msg protocol.Message) error {
		m.Logger.Debug("unhandled: %s", msg)
		return nil
	})

	m.Client.OnConnect(func() {
		if m.Nick == "" {
			return
		}
		if err := m.Client.Send(protocol.New("NICK", m.Nick)); err != nil {
			m.Logger.Warn("register: %v", err)
			return
		}
		if err := m.Client.Send(protocol.New("USER", m.Nick, "0", "*", m.Nick)); err != nil {
			m.Logger.Warn("register: %v", err)
		}
	})
	m.Client.OnDisconnect(func(ev client.DisconnectEvent) {
		if ev.Expected {
			m.Logger.Verbose("disconnected")
			return
		}
		m.Logger.Warn("connection lost: %v", ev.Cause)
	})
	m.Client.OnDataError(func(err error) {
		m.Logger.Warn("%v", err)
	})
}

func (m *ChatMode) connect(ctx context.Context) error {
	attempt := func(int) error {
		err := m.Client.Connect(ctx, m.Target)
		if ircerr.Is(err, ircerr.ErrInvalidArgument) || ircerr.Is(err, ircerr.ErrClientClosed) {
			return retry.Permanent(err)
		}
		return err
	}
	if m.Backoff == nil {
		return attempt(1)
	}

	b := *m.Backoff
	b.OnRetry = func(n int, wait time.Duration, err error) {
		m.Logger.Warn("attempt %d failed (%v), retrying in %s", n, err, wait)
	}
	return b.Do(ctx, attempt)
}

// relay sends each stdin line as a raw protocol line.  Malformed lines
// are reported and skipped.
func (m *ChatMode) relay(ctx context.Context) {
	sc := bufio.NewScanner(m.stdin())
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := m.Client.Sendf("%s", line); err != nil {
			m.Logger.Warn("send: %v", err)
		}
	}
}

// formatMessage renders PRIVMSG/NOTICE traffic for the terminal.
func formatMessage(msg protocol.Message) string {
	nick := msg.Source
	if i := strings.IndexByte(nick, '!'); i >= 0 {
		nick = nick[:i]
	}
	if nick == "" {
		nick = "*"
	}
	target := msg.Param(0)
	text := msg.Param(len(msg.Params) - 1)
	if msg.Command == "NOTICE" {
		return fmt.Sprintf("-%s/%s- %s", nick, target, text)
	}
	return fmt.Sprintf("[%s] <%s> %s", target, nick, text)
}

// Metrics exposes the client's counters for the exit report.
func (m *ChatMode) Metrics() *metrics.Collector { return m.Client.Metrics() }
