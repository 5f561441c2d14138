// Package errors provides domain-specific error types for ircc.
//
// The client distinguishes four failure classes: bad connect arguments
// ([ArgumentError]), transport failures ([ConnectionError]), ping
// watchdog expiry ([TimeoutError]) and malformed inbound lines
// ([DecodeError]).  Each carries enough context for callers to decide
// whether to retry and to produce useful diagnostics.
package errors

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotConnected    = errors.New("not connected")
	ErrClientClosed    = errors.New("client is closed")
	ErrTimeout         = errors.New("operation timed out")
	ErrTunnelClosed    = errors.New("tunnel is closed")
	ErrAuthFailed      = errors.New("authentication failed")
)

// ── Structured error types ───────────────────────────────────────────

// ArgumentError reports connect parameters that cannot be resolved to a
// target.  It is fatal to the call that raised it and never retried.
type ArgumentError struct {
	Field   string      // parameter name
	Value   interface{} // the offending value (nil if missing)
	Message string
}

func (e *ArgumentError) Error() string {
	msg := "invalid argument " + e.Field
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	return msg + ": " + e.Message
}

// Unwrap lets errors.Is(err, ErrInvalidArgument) match.
func (e *ArgumentError) Unwrap() error { return ErrInvalidArgument }

// ConnectionError represents a failure in a transport operation.
type ConnectionError struct {
	Op        string // operation: "dial", "tls", "read", "write"
	Addr      string // network address involved
	Err       error  // underlying error
	Retryable bool   // whether the caller should retry
}

func (e *ConnectionError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError is raised by the ping watchdog when no data arrived
// within the configured window.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("ping timeout: no data received for %v", e.After)
}

// Is reports a match against [ErrTimeout].
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// Timeout satisfies the net.Error convention.
func (e *TimeoutError) Timeout() bool { return true }

// Temporary satisfies the net.Error convention.
func (e *TimeoutError) Temporary() bool { return true }

// DecodeError wraps a line that could not be parsed into a message.
// It is reported through the data-error hook and does not tear down
// the connection.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// SSHError represents an SSH-specific failure with host context.
type SSHError struct {
	Op   string // "handshake", "auth", "hostkey", "dial"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a ConnectionError, automatically detecting retryability
// from the underlying error.
func Wrap(op, addr string, err error) *ConnectionError {
	return &ConnectionError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// InvalidArgument creates an ArgumentError.
func InvalidArgument(field string, value interface{}, msg string) *ArgumentError {
	return &ArgumentError{Field: field, Value: value, Message: msg}
}

// ── Classification helpers ───────────────────────────────────────────

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidArgument) || errors.Is(err, ErrClientClosed) {
		return false
	}
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}
	return classifyRetryable(err)
}

// IsTimeout reports whether err is a ping-watchdog expiry.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	// net.OpError with Temporary() hint
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return true
		}
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	// DNS errors
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use ircc/internal/errors as a drop-in
// replacement for the standard library in common operations.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
