// Package metrics provides lightweight, lock-free counters for tracking
// runtime statistics of a client session.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for one client.
type Collector struct {
	connectionsActive atomic.Int64
	connectionsTotal  atomic.Int64
	reconnectAttempts atomic.Int64
	pingTimeouts      atomic.Int64
	messagesIn        atomic.Int64
	messagesOut       atomic.Int64
	unknownCommands   atomic.Int64
	decodeErrors      atomic.Int64
	bytesIn           atomic.Int64
	bytesOut          atomic.Int64
	errorsTotal       atomic.Int64

	mu            sync.RWMutex
	startTime     time.Time
	lastConnected time.Time
	lastError     time.Time
	lastErrorMsg  string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Connection metrics ───────────────────────────────────────────────

// ConnectionOpened increments both the active and total counters.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(1)
	c.connectionsTotal.Add(1)
	c.mu.Lock()
	c.lastConnected = time.Now()
	c.mu.Unlock()
}

// ConnectionClosed decrements the active connection counter.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(-1)
}

// ActiveConnections returns the current number of open connections.
func (c *Collector) ActiveConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsActive.Load()
}

// TotalConnections returns the lifetime connection count.
func (c *Collector) TotalConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsTotal.Load()
}

// ReconnectAttempt records one scheduled reconnect attempt.
func (c *Collector) ReconnectAttempt() {
	if c == nil {
		return
	}
	c.reconnectAttempts.Add(1)
}

// ReconnectAttempts returns the number of reconnect attempts made.
func (c *Collector) ReconnectAttempts() int64 {
	if c == nil {
		return 0
	}
	return c.reconnectAttempts.Load()
}

// PingTimeout records a watchdog expiry.
func (c *Collector) PingTimeout() {
	if c == nil {
		return
	}
	c.pingTimeouts.Add(1)
}

// PingTimeouts returns the number of watchdog expiries.
func (c *Collector) PingTimeouts() int64 {
	if c == nil {
		return 0
	}
	return c.pingTimeouts.Load()
}

// ── Message metrics ──────────────────────────────────────────────────

// MessageDispatched records an inbound message routed to the dispatcher.
func (c *Collector) MessageDispatched() {
	if c == nil {
		return
	}
	c.messagesIn.Add(1)
}

// MessageSent records an outbound message.
func (c *Collector) MessageSent() {
	if c == nil {
		return
	}
	c.messagesOut.Add(1)
}

// UnknownCommand records a message that no handler claimed.
func (c *Collector) UnknownCommand() {
	if c == nil {
		return
	}
	c.unknownCommands.Add(1)
}

// DecodeError records an inbound line that could not be parsed.
func (c *Collector) DecodeError() {
	if c == nil {
		return
	}
	c.decodeErrors.Add(1)
}

// MessagesIn returns the number of dispatched messages.
func (c *Collector) MessagesIn() int64 {
	if c == nil {
		return 0
	}
	return c.messagesIn.Load()
}

// MessagesOut returns the number of messages sent.
func (c *Collector) MessagesOut() int64 {
	if c == nil {
		return 0
	}
	return c.messagesOut.Load()
}

// UnknownCommands returns the number of unclaimed messages.
func (c *Collector) UnknownCommands() int64 {
	if c == nil {
		return 0
	}
	return c.unknownCommands.Load()
}

// DecodeErrors returns the number of unparseable lines.
func (c *Collector) DecodeErrors() int64 {
	if c == nil {
		return 0
	}
	return c.decodeErrors.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from the network.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes written to the network.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime            string `json:"uptime"`
	ConnectionsActive int64  `json:"connections_active"`
	ConnectionsTotal  int64  `json:"connections_total"`
	ReconnectAttempts int64  `json:"reconnect_attempts"`
	PingTimeouts      int64  `json:"ping_timeouts"`
	MessagesIn        int64  `json:"messages_in"`
	MessagesOut       int64  `json:"messages_out"`
	UnknownCommands   int64  `json:"unknown_commands"`
	DecodeErrors      int64  `json:"decode_errors"`
	BytesIn           int64  `json:"bytes_in"`
	BytesOut          int64  `json:"bytes_out"`
	ErrorsTotal       int64  `json:"errors_total"`
	LastConnected     string `json:"last_connected,omitempty"`
	LastError         string `json:"last_error,omitempty"`
	LastErrorMessage  string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:            time.Since(c.startTime).Truncate(time.Second).String(),
		ConnectionsActive: c.connectionsActive.Load(),
		ConnectionsTotal:  c.connectionsTotal.Load(),
		ReconnectAttempts: c.reconnectAttempts.Load(),
		PingTimeouts:      c.pingTimeouts.Load(),
		MessagesIn:        c.messagesIn.Load(),
		MessagesOut:       c.messagesOut.Load(),
		UnknownCommands:   c.unknownCommands.Load(),
		DecodeErrors:      c.decodeErrors.Load(),
		BytesIn:           c.bytesIn.Load(),
		BytesOut:          c.bytesOut.Load(),
		ErrorsTotal:       c.errorsTotal.Load(),
	}
	if !c.lastConnected.IsZero() {
		s.LastConnected = c.lastConnected.Format(time.RFC3339)
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
