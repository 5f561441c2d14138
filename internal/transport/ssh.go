package transport

import (
	"context"
	"net"

	"ircc/tunnel"
	"ircc/util"
)

// SSHDialer routes connections through an SSH gateway.  The gateway is
// connected lazily on the first Dial and re-established on a later Dial
// if it died in between, so reconnect attempts heal a dropped gateway.
type SSHDialer struct {
	tunnel tunnel.Tunnel
	logger *util.Logger
}

// NewSSHDialer creates a dialer that forwards through the gateway
// described by cfg.
func NewSSHDialer(cfg *tunnel.SSHConfig, logger *util.Logger) *SSHDialer {
	return &SSHDialer{
		tunnel: tunnel.NewSSHTunnel(cfg, logger),
		logger: logger.Named("transport"),
	}
}

// Dial connects to address through the gateway.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if !d.tunnel.IsAlive() {
		d.logger.Verbose("establishing SSH gateway")
	}
	if err := d.tunnel.Connect(ctx); err != nil {
		return nil, err
	}
	return d.tunnel.Dial(ctx, network, address)
}

// Close tears down the gateway.
func (d *SSHDialer) Close() error {
	return d.tunnel.Close()
}
