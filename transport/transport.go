// Package transport defines the narrow collaborator interface the
// connection engine drives a server connection through (spec §4.3). The
// core never implements a transport itself; see the stdio and httptransport
// subpackages for concrete wire transports, and mcptest for an in-memory
// fake used by the engine's own tests.
package transport

import (
	"context"

	"github.com/mcpcore/client-go/jsonrpc"
)

// Transport is a duplex, message-framed channel bound to one server. It
// guarantees sequential delivery of inbound messages and at-most-once
// delivery of each lifecycle signal per connection attempt.
type Transport interface {
	// Connect establishes the channel. It must not return until the
	// channel is usable for Send/Recv, or fail with an error describing
	// why it isn't.
	Connect(ctx context.Context) error

	// Send hands one encoded message to the channel. A nil error means
	// "accepted for transmission," not "delivered."
	Send(ctx context.Context, msg jsonrpc.Message) error

	// Close initiates shutdown. It is idempotent and must eventually
	// cause Events to deliver a Closed signal.
	Close() error

	// Events returns the channel of lifecycle and inbound-message signals
	// for this transport instance. It is valid to call Events before
	// Connect; the channel is closed after a Closed signal has been sent.
	Events() <-chan Event
}

// EventKind tags the variant carried by an Event.
type EventKind int

const (
	// EventMessage carries one fully decoded inbound message.
	EventMessage EventKind = iota
	// EventError carries a non-recoverable transport fault. A Closed
	// event always follows.
	EventError
	// EventClosed reports that the channel is no longer usable.
	EventClosed
	// EventStderr carries out-of-band diagnostic text (stdio transports
	// only); purely advisory.
	EventStderr
)

// Event is one signal emitted by a Transport on its Events channel.
type Event struct {
	Kind    EventKind
	Message jsonrpc.Message // set when Kind == EventMessage
	Err     error           // set when Kind == EventError
	Reason  string          // set when Kind == EventClosed, may be empty
	Stderr  []byte          // set when Kind == EventStderr
}
