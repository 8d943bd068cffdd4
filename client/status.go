// Package client implements the per-server connection engine (C4) and the
// multi-server connection manager (C5): the hard part of spec.md — a
// finite-state connection lifecycle with multiple concurrent entry points,
// request/response correlation under arbitrary interleaving, and a blocking
// facade bridging the asynchronous engine to synchronous callers.
package client

// Status is a connection's position in the state machine of spec §4.4.
// Disconnected is the initial state; Closed and Error are terminal — no
// event of the ended attempt moves the status out of them; only a new
// ConnectAsync call starts a fresh attempt from there (spec §8 invariant 3).
type Status int

const (
	Disconnected Status = iota
	Connecting
	Handshaking
	Ready
	Closing
	Closed
	Error
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Handshaking:
		return "handshaking"
	case Ready:
		return "ready"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is Closed or Error, the two states that end a
// connection attempt; only ConnectAsync leaves them.
func (s Status) Terminal() bool {
	return s == Closed || s == Error
}

// canConnect reports whether ConnectAsync may be invoked from s (spec
// §4.4: Disconnected, Closed, or Error).
func canConnect(s Status) bool {
	return s == Disconnected || s == Closed || s == Error
}
