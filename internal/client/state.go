package client

// State is the lifecycle position of a [Client].
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DisconnectEvent describes why a session ended.  Expected is true for
// caller-initiated disconnects; Cause is nil for those and carries the
// transport or watchdog error otherwise.
type DisconnectEvent struct {
	Expected bool
	Cause    error
}

// live reports whether s has a session open or a dial in progress.
func (s State) live() bool {
	return s == StateConnecting || s == StateConnected
}

// next is the single transition for a disconnect: it returns the state
// that follows ev and whether a reconnect attempt must be scheduled.
// canRetry folds in the reconnect-on-error setting, the attempt budget
// and the presence of a target to reconnect to.  An unexpected
// disconnect with nothing live leaves cur unchanged.
func next(cur State, ev DisconnectEvent, canRetry bool) (State, bool) {
	switch {
	case cur == StateClosed:
		return StateClosed, false
	case ev.Expected:
		return StateDisconnected, false
	case !cur.live():
		return cur, false
	case !canRetry:
		return StateDisconnected, false
	}
	return StateReconnecting, true
}
