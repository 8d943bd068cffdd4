package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mcpcore/client-go/jsonrpc"
	"github.com/mcpcore/client-go/mcperrors"
	"github.com/mcpcore/client-go/mcpconfig"
	"github.com/mcpcore/client-go/mcptest"
	"github.com/mcpcore/client-go/transport"
)

// newFakeManager returns a Manager whose transports are all mcptest.Transport
// fakes, plus a way to fetch the fake backing a given server name.
func newFakeManager(t *testing.T, cfg *mcpconfig.ClientConfig) (*Manager, *fakeRegistry) {
	t.Helper()
	reg := &fakeRegistry{fakes: make(map[string]*mcptest.Transport)}
	m := NewManager(cfg)
	m.buildTransport = func(serverCfg *mcpconfig.ServerConfig) (transport.Transport, error) {
		fake := mcptest.New()
		fake.OnInitialize = acceptingInitialize(preferredProtocolVersion)
		reg.put(serverCfg.Name(), fake)
		return fake, nil
	}
	return m, reg
}

// fakeRegistry records the fake transport built for each server name,
// guarded by a mutex since buildTransport runs on the engine's connect
// goroutine while tests observe it from the test goroutine.
type fakeRegistry struct {
	mu    sync.Mutex
	fakes map[string]*mcptest.Transport
}

func (r *fakeRegistry) put(name string, f *mcptest.Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fakes[name] = f
}

func (r *fakeRegistry) get(name string) (*mcptest.Transport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.fakes[name]
	return f, ok
}

func (r *fakeRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fakes)
}

func mustServerConfig(t *testing.T, name string) *mcpconfig.ServerConfig {
	t.Helper()
	cfg, err := mcpconfig.NewStdioServer(name, "fixture-binary").WithTimeout(2 * time.Second).Build()
	if err != nil {
		t.Fatalf("building server config: %v", err)
	}
	return cfg
}

func TestManagerEnsureConnectedUnregisteredServer(t *testing.T) {
	m, _ := newFakeManager(t, mcpconfig.NewClient("test", "0.0.1").Build())
	_, err := m.EnsureConnected(context.Background(), "nope")
	var cfgErr *mcperrors.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error = %v, want *mcperrors.ConfigurationError", err)
	}
}

func TestManagerEnsureConnectedReusesConnection(t *testing.T) {
	m, fakes := newFakeManager(t, mcpconfig.NewClient("test", "0.0.1").Build())
	m.RegisterServer(mustServerConfig(t, "alpha"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	first, err := m.EnsureConnected(ctx, "alpha")
	if err != nil {
		t.Fatalf("first EnsureConnected: %v", err)
	}
	second, err := m.EnsureConnected(ctx, "alpha")
	if err != nil {
		t.Fatalf("second EnsureConnected: %v", err)
	}
	if first != second {
		t.Fatal("EnsureConnected built a second Connection for the same server")
	}
	if fakes.len() != 1 {
		t.Fatalf("fakes.len() = %d, want 1 (one transport built)", fakes.len())
	}
}

func TestManagerSendRequestAndWait(t *testing.T) {
	m, fakes := newFakeManager(t, mcpconfig.NewClient("test", "0.0.1").Build())
	m.RegisterServer(mustServerConfig(t, "alpha"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	var resp *jsonrpc.Response
	var sendErr error
	go func() {
		resp, sendErr = m.SendRequestAndWait(ctx, "alpha", "tools/list", nil, time.Second)
		close(done)
	}()

	fake := waitForFake(t, fakes, "alpha", time.Second)
	req := waitForLastRequest(t, fake, "tools/list", time.Second)
	fake.RespondOK(req.ID, map[string]any{"tools": []any{}})

	<-done
	if sendErr != nil {
		t.Fatalf("SendRequestAndWait: %v", sendErr)
	}
	if resp.Err != nil {
		t.Fatalf("unexpected error response: %v", resp.Err)
	}
}

func TestManagerDisconnectAllSettlesEveryConnection(t *testing.T) {
	m, _ := newFakeManager(t, mcpconfig.NewClient("test", "0.0.1").Build())
	m.RegisterServer(mustServerConfig(t, "alpha"))
	m.RegisterServer(mustServerConfig(t, "beta"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := m.EnsureConnected(ctx, "alpha"); err != nil {
		t.Fatalf("connecting alpha: %v", err)
	}
	if _, err := m.EnsureConnected(ctx, "beta"); err != nil {
		t.Fatalf("connecting beta: %v", err)
	}

	if err := m.DisconnectAll(ctx); err != nil {
		t.Fatalf("DisconnectAll: %v", err)
	}
	if got := m.Status("alpha"); got != Closed {
		t.Errorf("alpha status = %v, want Closed", got)
	}
	if got := m.Status("beta"); got != Closed {
		t.Errorf("beta status = %v, want Closed", got)
	}
}

func waitForFake(t *testing.T, reg *fakeRegistry, name string, timeout time.Duration) *mcptest.Transport {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if f, ok := reg.get(name); ok {
			return f
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no transport built for %q within %s", name, timeout)
	return nil
}

func waitForLastRequest(t *testing.T, fake *mcptest.Transport, method string, timeout time.Duration) *jsonrpc.Request {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		sent := fake.Sent()
		for i := len(sent) - 1; i >= 0; i-- {
			if req, ok := sent[i].(*jsonrpc.Request); ok && req.Method == method {
				return req
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no %q request observed within %s", method, timeout)
	return nil
}
