package core

import (
	"bufio"
	"bytes"
	"net"
	"sync"
	"testing"
	"time"

	"ircc/internal/client"
	"ircc/internal/transport"
	"ircc/util"
)

// syncBuffer is a bytes.Buffer safe for a writer on the loop goroutine
// and a reader in the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// chatServer accepts one connection and hands it to serve.
func chatServer(t *testing.T, serve func(conn net.Conn, r *bufio.Reader)) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn, bufio.NewReader(conn))
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func testClient(t *testing.T, reconnect bool) *client.Client {
	t.Helper()
	opts := client.DefaultOptions()
	opts.ConnTimeout = 2 * time.Second
	opts.ReconnectOnError = reconnect
	opts.Dialer = &transport.TCPDialer{Timeout: 2 * time.Second}
	opts.Logger = util.NewLogger(0)
	c := client.New(opts)
	t.Cleanup(func() { c.Close() })
	return c
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
