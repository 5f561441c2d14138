// Package core is the orchestration layer.  It composes a transport
// dialer, an event loop and a client into complete operational modes
// and provides a builder that selects the right mode from a Config.
//
// Architecture layers (bottom → top):
//
//	transport  →  client  →  core  →  cmd (CLI)
//
// The builder in this package is the single dispatch point between the
// parsed configuration and the running session.
package core

import "context"

// Mode represents a complete operational mode of ircc (interactive
// chat or a one-shot probe).  Each mode owns its full lifecycle from
// connection establishment to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
