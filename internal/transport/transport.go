// Package transport provides the connection primitives the client
// opens sessions with.  A [Dialer] decides how bytes reach the server
// (direct TCP, a SOCKS5 proxy, or an SSH gateway); [Open] layers
// optional TLS and line framing on top and returns a [Conn].
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound stream connections.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session).  Stateless dialers return nil.
	Close() error
}

// Conn is one line-oriented transport session.
type Conn interface {
	// ReadLine blocks for the next inbound line, without its
	// terminator.  It returns io.EOF when the peer closed cleanly.
	ReadLine() (string, error)

	// Send writes data as-is; callers supply the line terminator.
	Send(data []byte) error

	// Close tears the session down.  It unblocks a pending ReadLine
	// and is safe to call more than once.
	Close() error

	// RemoteAddr returns the peer address.
	RemoteAddr() net.Addr
}
