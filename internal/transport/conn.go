package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	ircerr "ircc/internal/errors"
	"ircc/util"
)

// maxInboundLine bounds a single inbound line.  Servers that send
// message tags may exceed the classic 512-byte limit.
const maxInboundLine = 8 * 1024

// Target is the endpoint a session is opened against.
type Target struct {
	Host string
	Port int
	TLS  bool

	// TLSConfig overrides the default client config.  ServerName is
	// filled from Host when empty.
	TLSConfig *tls.Config

	// WriteTimeout bounds each Send; 0 means no deadline.
	WriteTimeout time.Duration
}

// Addr returns "host:port".
func (t Target) Addr() string { return util.FormatAddr(t.Host, t.Port) }

// Open dials t through d, performs the TLS handshake when requested,
// and returns a line-framed session.  Failures are reported as
// *errors.ConnectionError.
func Open(ctx context.Context, d Dialer, t Target) (Conn, error) {
	addr := t.Addr()

	raw, err := d.Dial(ctx, "tcp", addr)
	if err != nil {
		return nil, ircerr.Wrap("dial", addr, err)
	}

	if t.TLS {
		cfg := &tls.Config{MinVersion: tls.VersionTLS12}
		if t.TLSConfig != nil {
			cfg = t.TLSConfig.Clone()
		}
		if cfg.ServerName == "" {
			cfg.ServerName = t.Host
		}
		tc := tls.Client(raw, cfg)
		if err := tc.HandshakeContext(ctx); err != nil {
			raw.Close()
			return nil, ircerr.Wrap("tls", addr, err)
		}
		raw = tc
	}

	return NewConn(raw, t.WriteTimeout), nil
}

// lineConn frames a net.Conn into CRLF/LF-terminated lines.
type lineConn struct {
	conn         net.Conn
	scanner      *bufio.Scanner
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an established connection.  It is exported so tests
// and custom dialers can feed in net.Pipe or pre-negotiated streams.
func NewConn(c net.Conn, writeTimeout time.Duration) Conn {
	s := bufio.NewScanner(c)
	s.Buffer(make([]byte, 0, 1024), maxInboundLine)
	return &lineConn{conn: c, scanner: s, writeTimeout: writeTimeout}
}

func (c *lineConn) ReadLine() (string, error) {
	if !c.scanner.Scan() {
		err := c.scanner.Err()
		if err == nil {
			return "", io.EOF
		}
		if errors.Is(err, bufio.ErrTooLong) {
			return "", ircerr.Wrap("read", c.addr(), err)
		}
		return "", err
	}
	return strings.TrimSuffix(c.scanner.Text(), "\r"), nil
}

func (c *lineConn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)) //nolint:errcheck
	}
	if _, err := c.conn.Write(data); err != nil {
		return ircerr.Wrap("write", c.addr(), err)
	}
	return nil
}

func (c *lineConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *lineConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *lineConn) addr() string {
	if a := c.conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}

// IsClosed reports whether err is the expected result of reading from
// or writing to a session that was closed locally.
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}
