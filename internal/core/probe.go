package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"ircc/internal/client"
	ircerr "ircc/internal/errors"
	"ircc/internal/metrics"
	"ircc/internal/protocol"
	"ircc/util"
)

// ProbeMode checks that a chat server is reachable: it connects, prints
// the first line the server sends (other than PING) and disconnects.
type ProbeMode struct {
	Client  *client.Client
	Target  client.ConnectOptions
	Timeout time.Duration // how long to wait for the first line
	Logger  *util.Logger

	// Stdout defaults to os.Stdout when nil.
	Stdout io.Writer
}

func (m *ProbeMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run performs one probe.  It fails with *errors.TimeoutError if the
// server stays silent for Timeout, or with the disconnect cause if the
// connection drops first.
func (m *ProbeMode) Run(ctx context.Context) error {
	defer m.Client.Close() //nolint:errcheck

	first := make(chan protocol.Message, 1)
	lost := make(chan error, 1)
	m.Client.HandleUnknown(func(msg protocol.Message) error {
		select {
		case first <- msg:
		default:
		}
		return nil
	})
	m.Client.OnDisconnect(func(ev client.DisconnectEvent) {
		if !ev.Expected {
			select {
			case lost <- ev.Cause:
			default:
			}
		}
	})

	start := time.Now()
	if err := m.Client.Connect(ctx, m.Target); err != nil {
		return err
	}
	m.Logger.Verbose("connected to %s:%d in %s",
		m.Client.Server(), m.Client.Port(), time.Since(start).Round(time.Millisecond))

	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case msg := <-first:
		fmt.Fprintln(m.stdout(), msg) //nolint:errcheck
		m.Client.Disconnect(true)
		return nil
	case err := <-lost:
		return fmt.Errorf("probe %s: %w", m.Client.Server(), err)
	case <-t.C:
		return &ircerr.TimeoutError{After: timeout}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Metrics exposes the client's counters for the exit report.
func (m *ProbeMode) Metrics() *metrics.Collector { return m.Client.Metrics() }
