package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, environment variable loading
// and client construction.

const (
	// DefaultPort is the plaintext chat port.
	DefaultPort = 6667

	// DefaultTLSPort is the conventional TLS chat port.
	DefaultTLSPort = 6697

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultPingTimeout is how long the connection may stay silent
	// before the watchdog declares it dead.
	DefaultPingTimeout = 180 * time.Second

	// DefaultReconnectOnError enables automatic reconnection after an
	// unexpected disconnect.
	DefaultReconnectOnError = true

	// DefaultReconnectDelayed selects the delay schedule; when false
	// reconnects are immediate.
	DefaultReconnectDelayed = true

	// DefaultReconnectMaxAttempts bounds automatic reconnects in a row.
	// 0 means keep trying forever.
	DefaultReconnectMaxAttempts = 0

	// DefaultConnTimeout is the TCP/TLS/SSH connection timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultWriteTimeout bounds a single outbound write.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultKeepAliveInterval is the SSH keepalive interval.
	DefaultKeepAliveInterval = 30 * time.Second

	// DefaultInitialConnectAttempts is how often the CLI retries the
	// very first connection before giving up.
	DefaultInitialConnectAttempts = 5
)

// DefaultReconnectDelays returns the backoff schedule for reconnect
// attempts 0, 1, 2, ...  Attempts past the end reuse the last entry.
// A fresh slice is returned so callers may modify it.
func DefaultReconnectDelays() []time.Duration {
	return []time.Duration{
		5 * time.Second,
		5 * time.Second,
		10 * time.Second,
		30 * time.Second,
		120 * time.Second,
		600 * time.Second,
	}
}
