package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mcpcore/client-go/internal/awaitutil"
	"github.com/mcpcore/client-go/jsonrpc"
	"github.com/mcpcore/client-go/mcperrors"
	"github.com/mcpcore/client-go/mcpconfig"
	"github.com/mcpcore/client-go/transport"
	"github.com/mcpcore/client-go/transport/httptransport"
	"github.com/mcpcore/client-go/transport/stdio"
)

// disconnectGrace bounds how long Disconnect/DisconnectAll wait for the
// close watchdog on top of closeWatchdog itself, so a caller-supplied ctx
// without its own deadline still gets a bounded wait.
const disconnectGrace = closeWatchdog + 2*time.Second

// Manager is the multi-server connection manager (C5): a blocking facade
// over the asynchronous Connection engine. It owns one Connection per
// registered server, created lazily on first use. When
// ClientConfig.ConnectRate is set, new connection attempts are throttled
// through a per-server rate.Limiter so a storm of concurrent callers can't
// hammer a flaky server (spec §4.5, §6).
type Manager struct {
	clientCfg *mcpconfig.ClientConfig
	logger    *slog.Logger

	mu       sync.Mutex
	servers  map[string]*mcpconfig.ServerConfig
	conns    map[string]*Connection
	limiters map[string]*rate.Limiter

	// buildTransport constructs the concrete transport for a ServerConfig.
	// It defaults to dispatching on Kind() between stdio and httptransport;
	// tests substitute it to return an mcptest.Transport instead.
	buildTransport func(*mcpconfig.ServerConfig) (transport.Transport, error)
}

// NewManager returns a Manager using cfg for every connection it creates.
func NewManager(cfg *mcpconfig.ClientConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		clientCfg: cfg,
		logger:    logger,
		servers:   make(map[string]*mcpconfig.ServerConfig),
		conns:     make(map[string]*Connection),
		limiters:  make(map[string]*rate.Limiter),
	}
	m.buildTransport = m.defaultTransportBuilder
	return m
}

// RegisterServer makes cfg available to EnsureConnected under cfg.Name().
// Registering a name a second time replaces its ServerConfig but does not
// disturb an already-running Connection.
func (m *Manager) RegisterServer(cfg *mcpconfig.ServerConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servers[cfg.Name()] = cfg
	if m.clientCfg.ConnectRate > 0 {
		if _, ok := m.limiters[cfg.Name()]; !ok {
			m.limiters[cfg.Name()] = rate.NewLimiter(rate.Every(m.clientCfg.ConnectRate), 1)
		}
	}
}

// EnsureConnected returns a Ready Connection for name, connecting it (or
// joining an already in-flight attempt) as needed. It blocks until the
// connection is Ready, fails terminally, or ctx/timeout elapses — this is
// the await bridge described in spec §4.5.
func (m *Manager) EnsureConnected(ctx context.Context, name string) (*Connection, error) {
	serverCfg, conn, _, err := m.connectionFor(name)
	if err != nil {
		return nil, err
	}

	status := conn.Status()
	if status == Ready {
		return conn, nil
	}

	// Joins of an in-flight attempt are not throttled; every new attempt is.
	if status != Connecting && status != Handshaking {
		if limiter := m.limiterFor(name); limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, &mcperrors.ConnectionError{Server: name, Reason: "rate limited", Cause: err}
			}
		}
	}

	completion := conn.ConnectAsync(ctx)
	if _, err := awaitutil.Await(ctx, completion, serverCfg.Timeout(), "connect:"+name); err != nil {
		return nil, err
	}
	return conn, nil
}

// connectionFor returns the Connection for name, creating it (and its
// ServerConfig lookup) under the manager lock if this is the first call for
// that name. fresh reports whether the Connection was just created.
func (m *Manager) connectionFor(name string) (*mcpconfig.ServerConfig, *Connection, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	serverCfg, ok := m.servers[name]
	if !ok {
		return nil, nil, false, &mcperrors.ConfigurationError{Reason: fmt.Sprintf("server %q is not registered", name)}
	}
	if conn, ok := m.conns[name]; ok {
		return serverCfg, conn, false, nil
	}

	conn := New(name, m.transportFactory(serverCfg), Options{
		Identity:     Identity(m.clientCfg.Identity),
		Roots:        toClientRoots(m.clientCfg.Capabilities.Roots),
		Experimental: m.clientCfg.Capabilities.Experimental,
		Logger:       m.logger,
		IDPrefix:     m.clientCfg.IDPrefix,
		Sink:         m.clientCfg.Sink,
		Cache:        m.clientCfg.Cache,
	})
	m.conns[name] = conn
	return serverCfg, conn, true, nil
}

func toClientRoots(r *mcpconfig.RootCapabilities) *RootCapabilities {
	if r == nil {
		return nil
	}
	return &RootCapabilities{ListChanged: r.ListChanged}
}

func (m *Manager) limiterFor(name string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limiters[name]
}

// transportFactory returns a TransportFactory building the concrete
// transport for serverCfg via m.buildTransport.
func (m *Manager) transportFactory(serverCfg *mcpconfig.ServerConfig) TransportFactory {
	return func() (transport.Transport, error) { return m.buildTransport(serverCfg) }
}

// defaultTransportBuilder dispatches on serverCfg.Kind() to the stdio or
// httptransport package.
func (m *Manager) defaultTransportBuilder(serverCfg *mcpconfig.ServerConfig) (transport.Transport, error) {
	switch serverCfg.Kind() {
	case mcpconfig.Stdio:
		return stdio.New(serverCfg.Command(), serverCfg.Args(), serverCfg.Env(), m.clientCfg.Codec, m.logger), nil
	case mcpconfig.HTTP:
		return httptransport.New(serverCfg.URL(), serverCfg.Headers(), m.clientCfg.Codec, m.logger), nil
	default:
		return nil, &mcperrors.ConfigurationError{Reason: fmt.Sprintf("server %q: unknown transport kind", serverCfg.Name())}
	}
}

// SendRequestAndWait sends method/params to name and blocks for the
// response, applying timeout (or the server's configured default timeout
// if timeout is zero). It connects the server first if necessary.
func (m *Manager) SendRequestAndWait(ctx context.Context, name, method string, params any, timeout time.Duration) (*jsonrpc.Response, error) {
	conn, err := m.EnsureConnected(ctx, name)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	serverCfg := m.servers[name]
	m.mu.Unlock()
	if timeout <= 0 {
		timeout = serverCfg.Timeout()
	}

	req := &jsonrpc.Request{Method: method, Params: params}
	completion, err := conn.SendAsync(req, true)
	if err != nil {
		return nil, err
	}
	return awaitutil.Await(ctx, completion, timeout, method)
}

// Notify sends a fire-and-forget notification to name, connecting it first
// if necessary. There is no response to await.
func (m *Manager) Notify(ctx context.Context, name, method string, params any) error {
	conn, err := m.EnsureConnected(ctx, name)
	if err != nil {
		return err
	}
	return conn.transportSend(ctx, &jsonrpc.Notification{Method: method, Params: params})
}

// Disconnect closes the named connection and waits for it to settle.
// Disconnecting a server with no Connection yet is a no-op.
func (m *Manager) Disconnect(ctx context.Context, name string) error {
	m.mu.Lock()
	conn, ok := m.conns[name]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	completion := conn.DisconnectAsync(ctx)
	_, err := awaitutil.Await(ctx, completion, disconnectGrace, "disconnect:"+name)
	return err
}

// DisconnectAll closes every Connection the manager has created, waiting
// for each to settle. It returns the first error encountered, if any, but
// always attempts every connection.
func (m *Manager) DisconnectAll(ctx context.Context) error {
	m.mu.Lock()
	names := make([]string, 0, len(m.conns))
	for name := range m.conns {
		names = append(names, name)
	}
	m.mu.Unlock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		firstErr error
	)
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := m.Disconnect(ctx, name); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(name)
	}
	wg.Wait()
	return firstErr
}

// Status returns the current status of name's connection, or Disconnected
// if no Connection has been created for it yet.
func (m *Manager) Status(name string) Status {
	m.mu.Lock()
	conn, ok := m.conns[name]
	m.mu.Unlock()
	if !ok {
		return Disconnected
	}
	return conn.Status()
}

// Connection returns the named server's Connection and whether it exists
// yet, for callers that need direct access (e.g. Ping or CancelRequest)
// without going through the blocking facade.
func (m *Manager) Connection(name string) (*Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[name]
	return conn, ok
}
