package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mcpcore/client-go/definitioncache"
	"github.com/mcpcore/client-go/events"
	"github.com/mcpcore/client-go/idgen"
	"github.com/mcpcore/client-go/internal/awaitutil"
	"github.com/mcpcore/client-go/jsonrpc"
	"github.com/mcpcore/client-go/mcperrors"
	"github.com/mcpcore/client-go/transport"
)

// closeWatchdog is the magic 5s number from spec §4.4/§9 open question 3:
// how long DisconnectAsync waits for a graceful close signal before forcing
// cleanup. A future revision may want this configurable per ClientConfig.
const closeWatchdog = 5 * time.Second

// TransportFactory builds the transport for one server connection attempt.
// A factory is invoked at most once per ConnectAsync attempt.
type TransportFactory func() (transport.Transport, error)

// Identity is the local client's name/version, reused across every
// Connection a Manager creates.
type Identity = Implementation

// Connection drives one server through the state machine of spec §4.4. It
// multiplexes concurrent SendAsync callers over a single transport,
// correlates replies by id, and routes notifications to an event sink. A
// Connection is safe for concurrent use from any number of goroutines.
type Connection struct {
	name             string
	identity         Identity
	capabilities     *clientCapabilitiesWire
	transportFactory TransportFactory
	logger           *slog.Logger
	ids              *idgen.Generator
	sink             events.Sink
	cache            *definitioncache.Cache

	mu         sync.Mutex
	status     Status
	tr         transport.Transport
	pending    map[string]*awaitutil.Completion[*jsonrpc.Response]
	negotiated *NegotiatedState

	connectCompletion    *awaitutil.Completion[*Connection]
	disconnectCompletion *awaitutil.Completion[struct{}]
	closeSettled         bool
	transportClosed      bool
}

// Options carries the pieces of ClientConfig a Connection needs, so a
// Connection can be built without a full mcpconfig.ClientConfig.
type Options struct {
	Identity     Identity
	Roots        *RootCapabilities
	Experimental map[string]any
	Logger       *slog.Logger
	IDPrefix     string
	Sink         events.Sink
	Cache        *definitioncache.Cache
}

// RootCapabilities mirrors mcpconfig.RootCapabilities for use in Options.
type RootCapabilities struct {
	ListChanged bool
}

// New constructs a Connection for the named server. factory builds a fresh
// transport each time ConnectAsync starts a new attempt.
func New(name string, factory TransportFactory, opts Options) *Connection {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var caps *clientCapabilitiesWire
	if opts.Roots != nil || opts.Experimental != nil {
		caps = &clientCapabilitiesWire{Experimental: opts.Experimental}
		if opts.Roots != nil {
			caps.Roots = &rootsCapabilityWire{ListChanged: opts.Roots.ListChanged}
		}
	}
	return &Connection{
		name:             name,
		identity:         opts.Identity,
		capabilities:     caps,
		transportFactory: factory,
		logger:           logger,
		ids:              idgen.New(opts.IDPrefix),
		sink:             opts.Sink,
		cache:            opts.Cache,
		status:           Disconnected,
		pending:          make(map[string]*awaitutil.Completion[*jsonrpc.Response]),
	}
}

// Name returns the server name this connection was constructed for.
func (c *Connection) Name() string { return c.name }

// Status returns the connection's current state.
func (c *Connection) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Negotiated returns the session state populated after a successful
// handshake, and whether the handshake has completed.
func (c *Connection) Negotiated() (NegotiatedState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.negotiated == nil {
		return NegotiatedState{}, false
	}
	return *c.negotiated, true
}

// ConnectAsync drives the connection to Ready (or Error). It is idempotent:
// a call while a connect attempt is already in flight returns a completion
// observing that same attempt (spec §4.4). Called from a state other than
// Disconnected, Closed, or Error, it returns an already-rejected completion
// carrying a ConnectionError ("bad state").
func (c *Connection) ConnectAsync(ctx context.Context) *awaitutil.Completion[*Connection] {
	c.mu.Lock()
	if c.status == Connecting || c.status == Handshaking {
		existing := c.connectCompletion
		c.mu.Unlock()
		return existing
	}
	if !canConnect(c.status) {
		c.mu.Unlock()
		bad := awaitutil.NewCompletion[*Connection]()
		bad.Reject(&mcperrors.ConnectionError{Server: c.name, Reason: "bad state: " + c.status.String()})
		return bad
	}
	completion := awaitutil.NewCompletion[*Connection]()
	c.connectCompletion = completion
	c.status = Connecting
	c.closeSettled = false
	c.transportClosed = false
	c.mu.Unlock()

	go c.runConnect(ctx, completion)
	return completion
}

func (c *Connection) runConnect(ctx context.Context, completion *awaitutil.Completion[*Connection]) {
	tr, err := c.transportFactory()
	if err != nil {
		c.failConnect(completion, &mcperrors.ConnectionError{
			Server: c.name, Reason: "creating transport", Cause: &mcperrors.TransportError{Op: "create", Cause: err},
		})
		return
	}

	c.mu.Lock()
	c.tr = tr
	c.mu.Unlock()

	go c.readLoop(tr)

	if err := tr.Connect(ctx); err != nil {
		c.failConnect(completion, &mcperrors.ConnectionError{
			Server: c.name, Reason: "connecting transport", Cause: &mcperrors.TransportError{Op: "connect", Cause: err},
		})
		return
	}

	select {
	case <-ctx.Done():
		c.failConnect(completion, &mcperrors.ConnectionError{Server: c.name, Reason: "cancelled", Cause: ctx.Err()})
		return
	default:
	}

	c.mu.Lock()
	c.status = Handshaking
	c.mu.Unlock()

	result, err := c.handshake(ctx)
	if err != nil {
		c.failConnect(completion, err)
		return
	}

	c.mu.Lock()
	c.negotiated = result
	c.status = Ready
	c.mu.Unlock()

	completion.Resolve(c)
}

// handshake sends initialize, validates the response, and sends
// notifications/initialized, returning the negotiated session state (spec
// §4.4 "Handshake protocol").
func (c *Connection) handshake(ctx context.Context) (*NegotiatedState, error) {
	params := &initializeParams{
		ProtocolVersion: preferredProtocolVersion,
		Capabilities:    c.capabilities,
		ClientInfo:      &Implementation{Name: c.identity.Name, Version: c.identity.Version},
	}
	if params.Capabilities == nil {
		params.Capabilities = &clientCapabilitiesWire{}
	}

	req := &jsonrpc.Request{ID: c.ids.Next(), Method: "initialize", Params: params}
	completion, err := c.send(req)
	if err != nil {
		return nil, &mcperrors.ConnectionError{Server: c.name, Reason: "sending initialize", Cause: err}
	}

	resp, err := awaitutil.Await(ctx, completion, 0, "initialize")
	if err != nil {
		return nil, &mcperrors.ConnectionError{Server: c.name, Reason: "awaiting initialize", Cause: err}
	}
	if resp.Err != nil {
		return nil, &mcperrors.ConnectionError{
			Server: c.name, Reason: "server rejected initialize",
			Cause: &mcperrors.RequestError{Code: resp.Err.Code, Message: resp.Err.Message, Data: resp.Err.Data},
		}
	}

	var result initializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, &mcperrors.ConnectionError{Server: c.name, Reason: "malformed initialize result", Cause: err}
	}
	if result.ProtocolVersion == "" {
		return nil, &mcperrors.ConnectionError{Server: c.name, Reason: "server returned empty protocolVersion"}
	}
	if result.ProtocolVersion != preferredProtocolVersion {
		c.logger.Warn("server negotiated a different protocol version",
			"server", c.name, "client_version", preferredProtocolVersion, "server_version", result.ProtocolVersion)
	}

	notif := &jsonrpc.Notification{Method: "notifications/initialized", Params: struct{}{}}
	if err := c.transportSend(ctx, notif); err != nil {
		return nil, &mcperrors.ConnectionError{Server: c.name, Reason: "sending notifications/initialized",
			Cause: &mcperrors.TransportError{Op: "send", Cause: err}}
	}

	info := normalizeServerInfo(result.ServerInfo)
	return &NegotiatedState{ProtocolVersion: result.ProtocolVersion, ServerInfo: info, Capabilities: result.Capabilities}, nil
}

func (c *Connection) failConnect(completion *awaitutil.Completion[*Connection], cause error) {
	c.mu.Lock()
	if c.status.Terminal() {
		c.mu.Unlock()
		return
	}
	c.status = Error
	c.rejectAllPendingLocked(cause)
	tr := c.tr
	closed := c.transportClosed
	c.transportClosed = true
	c.mu.Unlock()

	if tr != nil && !closed {
		if err := tr.Close(); err != nil {
			c.logger.Debug("transport close after failed connect", "server", c.name, "error", err)
		}
	}
	completion.Reject(cause)
}

// SendAsync submits req and returns a completion resolving with the
// server's Response. It accepts only *jsonrpc.Request, so a notification
// cannot be passed to it; notifications go through Manager.Notify. With
// checkStatus set, it fails with ClientError unless the connection is Ready.
func (c *Connection) SendAsync(req *jsonrpc.Request, checkStatus bool) (*awaitutil.Completion[*jsonrpc.Response], error) {
	if checkStatus {
		c.mu.Lock()
		ready := c.status == Ready
		c.mu.Unlock()
		if !ready {
			return nil, &mcperrors.ClientError{Reason: fmt.Sprintf("server %q is not ready", c.name)}
		}
	}
	return c.send(req)
}

// send is the shared implementation for both ordinary SendAsync calls and
// the handshake's internal initialize call (which must bypass the Ready
// check). Pending-map insertion strictly precedes transport.Send (spec §5
// ordering guarantee 3).
func (c *Connection) send(req *jsonrpc.Request) (*awaitutil.Completion[*jsonrpc.Response], error) {
	if req.ID.IsZero() {
		req.ID = c.ids.Next()
	}
	completion := awaitutil.NewCompletion[*jsonrpc.Response]()

	c.mu.Lock()
	c.pending[req.ID.String()] = completion
	c.mu.Unlock()

	if err := c.transportSend(context.Background(), req); err != nil {
		c.mu.Lock()
		delete(c.pending, req.ID.String())
		c.mu.Unlock()
		wrapped := &mcperrors.TransportError{Op: "send", Cause: err}
		completion.Reject(wrapped)
		return nil, wrapped
	}
	return completion, nil
}

func (c *Connection) transportSend(ctx context.Context, msg jsonrpc.Message) error {
	c.mu.Lock()
	tr := c.tr
	c.mu.Unlock()
	if tr == nil {
		return fmt.Errorf("no transport")
	}
	return tr.Send(ctx, msg)
}

// CancelRequest tells the server the client is giving up on a pending
// request: it sends notifications/cancelled (a supplemented feature; spec
// §4.4 only specifies the local-cleanup half of cancellation) and performs
// the same local bookkeeping as a SendAsync completion-cancellation. A
// reply that arrives after this call is dropped as unmatched.
func (c *Connection) CancelRequest(id jsonrpc.ID, reason string) {
	c.mu.Lock()
	completion, ok := c.pending[id.String()]
	if ok {
		delete(c.pending, id.String())
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	completion.Reject(&mcperrors.ClientError{Reason: "cancelled"})

	notif := &jsonrpc.Notification{Method: "notifications/cancelled", Params: cancelledParams{RequestID: id.String(), Reason: reason}}
	if err := c.transportSend(context.Background(), notif); err != nil {
		c.logger.Debug("failed to send notifications/cancelled", "server", c.name, "error", err)
	}
}

type cancelledParams struct {
	RequestID string `json:"requestId"`
	Reason    string `json:"reason,omitempty"`
}

// Ping is a thin convenience over SendAsync with method "ping" and empty
// params (a supplemented feature grounded in common MCP client helpers; it
// is not part of the handshake).
func (c *Connection) Ping(ctx context.Context, timeout time.Duration) error {
	req := &jsonrpc.Request{Method: "ping", Params: struct{}{}}
	completion, err := c.SendAsync(req, true)
	if err != nil {
		return err
	}
	resp, err := awaitutil.Await(ctx, completion, timeout, "ping")
	if err != nil {
		return err
	}
	if resp.Err != nil {
		return &mcperrors.RequestError{Code: resp.Err.Code, Message: resp.Err.Message, Data: resp.Err.Data}
	}
	return nil
}

// DisconnectAsync is idempotent: it rejects all outstanding pending
// requests with ConnectionError("closing"), asks the transport to close,
// and waits at most closeWatchdog for the close signal before forcing
// cleanup (spec §4.4, §5).
func (c *Connection) DisconnectAsync(ctx context.Context) *awaitutil.Completion[struct{}] {
	c.mu.Lock()
	if c.status == Closed || c.status == Error {
		c.mu.Unlock()
		done := awaitutil.NewCompletion[struct{}]()
		done.Resolve(struct{}{})
		return done
	}
	if c.status == Closing {
		existing := c.disconnectCompletion
		c.mu.Unlock()
		return existing
	}

	c.status = Closing
	completion := awaitutil.NewCompletion[struct{}]()
	c.disconnectCompletion = completion
	c.rejectAllPendingLocked(&mcperrors.ConnectionError{Server: c.name, Reason: "closing"})
	tr := c.tr
	c.mu.Unlock()

	if tr != nil {
		if err := tr.Close(); err != nil {
			c.logger.Debug("transport close during disconnect", "server", c.name, "error", err)
		}
	}

	go c.watchClose(completion)
	return completion
}

func (c *Connection) watchClose(completion *awaitutil.Completion[struct{}]) {
	timer := time.NewTimer(closeWatchdog)
	defer timer.Stop()
	<-timer.C

	c.mu.Lock()
	if c.closeSettled || c.status != Closing || c.disconnectCompletion != completion {
		c.mu.Unlock()
		return
	}
	c.closeSettled = true
	c.status = Closed
	c.mu.Unlock()

	c.logger.Warn("close watchdog fired; transport is dangling", "server", c.name)
	completion.Resolve(struct{}{})
}

// readLoop is the single goroutine that serializes every inbound event for
// this connection: no two events for the same connection are ever
// processed concurrently (spec §5).
func (c *Connection) readLoop(tr transport.Transport) {
	for ev := range tr.Events() {
		switch ev.Kind {
		case transport.EventMessage:
			c.handleMessage(ev.Message)
		case transport.EventError:
			c.logger.Warn("transport error", "server", c.name, "error", ev.Err)
			c.handleTransportGone(&mcperrors.ConnectionError{Server: c.name, Reason: "transport error",
				Cause: &mcperrors.TransportError{Op: "recv", Cause: ev.Err}})
		case transport.EventClosed:
			c.handleClosedSignal(ev.Reason)
		case transport.EventStderr:
			c.logger.Debug("transport stderr", "server", c.name, "text", string(ev.Stderr))
		}
	}
}

func (c *Connection) handleMessage(msg jsonrpc.Message) {
	switch m := msg.(type) {
	case *jsonrpc.Response:
		c.mu.Lock()
		completion, ok := c.pending[m.ID.String()]
		if ok {
			delete(c.pending, m.ID.String())
		}
		c.mu.Unlock()
		if !ok {
			c.logger.Warn("dropping response for unknown id", "server", c.name, "id", m.ID.String())
			return
		}
		completion.Resolve(m)
	case *jsonrpc.Notification:
		c.dispatchNotification(m.Method, toRawParams(m.Params))
	case *jsonrpc.Request:
		// The only inbound server-to-client request the notification
		// table names is sampling/createMessage; route it the same way
		// as a notification (spec §4.4 table). Replying is a host
		// concern, out of the core's scope.
		c.dispatchNotification(m.Method, toRawParams(m.Params))
	}
}

func toRawParams(p any) json.RawMessage {
	switch v := p.(type) {
	case json.RawMessage:
		return v
	case nil:
		return nil
	default:
		b, _ := json.Marshal(v)
		return b
	}
}

func (c *Connection) dispatchNotification(method string, params json.RawMessage) {
	var ev events.Event
	switch method {
	case "notifications/tools/listChanged":
		ev = events.NewToolsListChanged(c.name)
		c.invalidateCache()
	case "notifications/resources/listChanged":
		ev = events.NewResourcesListChanged(c.name)
		c.invalidateCache()
	case "notifications/prompts/listChanged":
		ev = events.NewPromptsListChanged(c.name)
		c.invalidateCache()
	case "notifications/resources/didChange":
		var p struct {
			URI string `json:"uri"`
		}
		_ = json.Unmarshal(params, &p)
		ev = events.NewResourceChanged(c.name, p.URI)
	case "notifications/logging/log":
		var p struct {
			Level  events.LoggingLevel `json:"level"`
			Logger string              `json:"logger"`
			Data   json.RawMessage     `json:"data"`
		}
		_ = json.Unmarshal(params, &p)
		ev = events.NewLogReceived(c.name, p.Level, p.Logger, p.Data)
	case "sampling/createMessage":
		ev = events.NewSamplingRequestReceived(c.name, params)
	default:
		c.logger.Warn("unknown notification method", "server", c.name, "method", method)
		return
	}

	if c.sink == nil {
		c.logger.Debug("dropping notification; no sink configured", "server", c.name, "method", method)
		return
	}
	c.safeDispatch(ev)
}

func (c *Connection) safeDispatch(ev events.Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("event sink panicked", "server", c.name, "recovered", r)
		}
	}()
	if err := c.sink.Dispatch(ev); err != nil {
		c.logger.Error("event sink failed", "server", c.name, "error", err)
	}
}

func (c *Connection) invalidateCache() {
	if c.cache != nil {
		c.cache.Invalidate(c.name)
	}
}

func (c *Connection) handleTransportGone(cause error) {
	c.mu.Lock()
	if c.status.Terminal() {
		c.mu.Unlock()
		return
	}
	if c.status == Closing {
		// The close signal (or the watchdog) settles a disconnect in progress.
		c.mu.Unlock()
		c.logger.Debug("transport reported error while closing", "server", c.name, "error", cause)
		return
	}
	c.status = Error
	c.rejectAllPendingLocked(cause)
	connectCompletion := c.connectCompletion
	c.transportClosed = true
	c.mu.Unlock()

	if connectCompletion != nil {
		connectCompletion.Reject(cause)
	}
}

func (c *Connection) handleClosedSignal(reason string) {
	c.mu.Lock()
	if c.closeSettled {
		c.mu.Unlock()
		return
	}
	wasClosing := c.status == Closing
	c.closeSettled = true
	if wasClosing {
		c.status = Closed
	} else if !c.status.Terminal() {
		c.status = Error
		c.rejectAllPendingLocked(&mcperrors.ConnectionError{Server: c.name, Reason: "transport closed unexpectedly: " + reason})
	}
	disconnectCompletion := c.disconnectCompletion
	connectCompletion := c.connectCompletion
	c.mu.Unlock()

	if wasClosing && disconnectCompletion != nil {
		disconnectCompletion.Resolve(struct{}{})
	}
	if !wasClosing && connectCompletion != nil {
		connectCompletion.Reject(&mcperrors.ConnectionError{Server: c.name, Reason: "transport closed unexpectedly: " + reason})
	}
}

// rejectAllPendingLocked fails every outstanding request exactly once and
// clears the pending map (spec §5 resource policy). Caller must hold c.mu.
func (c *Connection) rejectAllPendingLocked(cause error) {
	for id, completion := range c.pending {
		completion.Reject(cause)
		delete(c.pending, id)
	}
}
