// Package mcptest provides an in-memory transport.Transport and a
// recording events.Sink for exercising the connection engine and manager
// without a real server process.
package mcptest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mcpcore/client-go/events"
	"github.com/mcpcore/client-go/jsonrpc"
	"github.com/mcpcore/client-go/transport"
)

// Transport is a fake transport.Transport driven entirely by test code: the
// test calls Push to deliver an inbound message, Sent to observe what the
// client wrote, and Fail/CloseFromServer to simulate lifecycle signals.
type Transport struct {
	mu        sync.Mutex
	events    chan transport.Event
	sent      []jsonrpc.Message
	connected bool
	closed    bool

	// ConnectErr, if set, is returned by Connect instead of succeeding.
	ConnectErr error
	// SendErr, if set, is returned by every Send call instead of succeeding.
	SendErr error

	// OnInitialize, if set, is invoked with the decoded initialize request
	// and its return value is pushed back as the response — the common
	// case of a test that wants to script the handshake reply.
	OnInitialize func(req *jsonrpc.Request) *jsonrpc.Response
}

// New returns an unconnected fake transport.
func New() *Transport {
	return &Transport{events: make(chan transport.Event, 64)}
}

// Connect marks the transport connected, or fails with ConnectErr.
func (t *Transport) Connect(ctx context.Context) error {
	if t.ConnectErr != nil {
		return t.ConnectErr
	}
	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	return nil
}

// Send records msg and, for an initialize request with OnInitialize set,
// synthesizes the scripted response.
func (t *Transport) Send(ctx context.Context, msg jsonrpc.Message) error {
	if t.SendErr != nil {
		return t.SendErr
	}
	t.mu.Lock()
	t.sent = append(t.sent, msg)
	onInit := t.OnInitialize
	t.mu.Unlock()

	if req, ok := msg.(*jsonrpc.Request); ok && req.Method == "initialize" && onInit != nil {
		if resp := onInit(req); resp != nil {
			t.Push(resp)
		}
	}
	return nil
}

// Close marks the transport closed and emits an EventClosed signal, like a
// real transport would after its peer hangs up.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	t.events <- transport.Event{Kind: transport.EventClosed, Reason: "closed by test"}
	return nil
}

// Events returns the fake transport's event channel.
func (t *Transport) Events() <-chan transport.Event {
	return t.events
}

// Push delivers msg to the connection as an inbound EventMessage.
func (t *Transport) Push(msg jsonrpc.Message) {
	t.events <- transport.Event{Kind: transport.EventMessage, Message: msg}
}

// Fail delivers err to the connection as an EventError signal.
func (t *Transport) Fail(err error) {
	t.events <- transport.Event{Kind: transport.EventError, Err: err}
}

// CloseFromServer simulates the server closing the channel unexpectedly
// (not in response to a client-initiated Close).
func (t *Transport) CloseFromServer(reason string) {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.events <- transport.Event{Kind: transport.EventClosed, Reason: reason}
}

// Sent returns every message the connection has sent so far, in order.
func (t *Transport) Sent() []jsonrpc.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]jsonrpc.Message(nil), t.sent...)
}

// RespondOK pushes a successful Response for the given request id with
// result marshaled from v.
func (t *Transport) RespondOK(id jsonrpc.ID, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("mcptest: marshaling response result: %v", err))
	}
	t.Push(&jsonrpc.Response{ID: id, Result: raw})
}

// RespondErr pushes an error Response for the given request id.
func (t *Transport) RespondErr(id jsonrpc.ID, code int, message string) {
	t.Push(&jsonrpc.Response{ID: id, Err: &jsonrpc.WireError{Code: code, Message: message}})
}

// Sink records every event dispatched to it, safe for concurrent use by the
// connection engine's reader goroutine and inspection from a test
// goroutine.
type Sink struct {
	mu     sync.Mutex
	events []events.Event

	// DispatchErr, if set, is returned from every Dispatch call.
	DispatchErr error
}

// NewSink returns an empty recording Sink.
func NewSink() *Sink { return &Sink{} }

// Dispatch records ev and returns DispatchErr.
func (s *Sink) Dispatch(ev events.Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return s.DispatchErr
}

// Events returns every event recorded so far, in order.
func (s *Sink) Events() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Event(nil), s.events...)
}
