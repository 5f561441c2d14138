package client

import (
	"strings"
	"sync"

	"ircc/internal/protocol"
)

// Handler processes one inbound message.  A returned error is reported
// through the client's error hook; it does not end the session.
type Handler func(msg protocol.Message) error

// Dispatcher routes messages to handlers keyed by command.  Command
// names are case-insensitive.  Messages that match no handler go to the
// unknown handler, if one is set.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	unknown  Handler
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Handle registers h for command, replacing any previous handler.  A
// nil h removes the registration.
func (d *Dispatcher) Handle(command string, h Handler) {
	key := strings.ToUpper(command)
	d.mu.Lock()
	defer d.mu.Unlock()
	if h == nil {
		delete(d.handlers, key)
		return
	}
	d.handlers[key] = h
}

// HandleUnknown sets the fallback for unregistered commands.
func (d *Dispatcher) HandleUnknown(h Handler) {
	d.mu.Lock()
	d.unknown = h
	d.mu.Unlock()
}

// Handles reports whether command has a registered handler.
func (d *Dispatcher) Handles(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[strings.ToUpper(command)]
	return ok
}

// Dispatch invokes exactly one handler for msg: the registered one, or
// the unknown handler on a miss.  The handler's error is returned
// unchanged.
func (d *Dispatcher) Dispatch(msg protocol.Message) error {
	d.mu.RLock()
	h, ok := d.handlers[strings.ToUpper(msg.Command)]
	if !ok {
		h = d.unknown
	}
	d.mu.RUnlock()

	if h == nil {
		return nil
	}
	return h(msg)
}
