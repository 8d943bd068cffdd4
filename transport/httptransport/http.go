// Package httptransport implements transport.Transport over HTTP: each
// outbound message is POSTed to the server's endpoint, and the server's
// reply is read back either as a single JSON body or as a
// server-sent-events stream, alongside a standing GET used to receive
// server-initiated notifications out of band.
package httptransport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/mcpcore/client-go/jsonrpc"
	"github.com/mcpcore/client-go/transport"
)

// Transport speaks JSON-RPC over HTTP, framing server-to-client traffic as
// server-sent events per response body or over the standing GET stream.
type Transport struct {
	url     string
	headers map[string]string
	logger  *slog.Logger
	client  *http.Client
	codec   jsonrpc.Codec

	mu     sync.Mutex
	events chan transport.Event
	closed bool
	cancel context.CancelFunc
}

// New returns a Transport posting to url with headers attached to every
// request (including any Authorization header a caller minted via
// mcpauth). A nil codec defaults to jsonrpc's standard encoding/json codec.
func New(url string, headers map[string]string, codec jsonrpc.Codec, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	if codec == nil {
		codec = jsonrpc.DefaultCodec
	}
	return &Transport{
		url:     url,
		headers: headers,
		logger:  logger,
		codec:   codec,
		client:  &http.Client{},
		events:  make(chan transport.Event, 16),
	}
}

// Connect starts the standing GET stream that carries server-initiated
// notifications. The POST side of the transport needs no setup.
func (t *Transport) Connect(ctx context.Context) error {
	streamCtx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, t.url, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("httptransport: building stream request: %w", err)
	}
	t.applyHeaders(req)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.client.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("httptransport: opening event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("httptransport: event stream returned %s", resp.Status)
	}

	go t.readStream(resp.Body)
	return nil
}

func (t *Transport) readStream(body io.ReadCloser) {
	defer body.Close()
	defer t.settle("event stream closed")

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}
		msg, err := t.codec.Decode([]byte(data))
		if err != nil {
			t.logger.Warn("http transport dropping malformed message", "error", err)
			continue
		}
		t.emit(transport.Event{Kind: transport.EventMessage, Message: msg})
	}
}

// Send POSTs msg to the server. A response with a JSON body is decoded and
// emitted immediately; a response with no body (typical for a
// notification-only POST) is simply accepted.
func (t *Transport) Send(ctx context.Context, msg jsonrpc.Message) error {
	data, err := t.codec.Encode(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	t.applyHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("httptransport: posting message: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("httptransport: server returned %s: %s", resp.Status, string(body))
	}

	contentType := resp.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "text/event-stream"):
		// readStream takes ownership of closing the body.
		go t.readStream(resp.Body)
	case strings.HasPrefix(contentType, "application/json"):
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if len(bytes.TrimSpace(body)) == 0 {
			return nil
		}
		reply, err := t.codec.Decode(body)
		if err != nil {
			t.logger.Warn("http transport dropping malformed reply", "error", err)
			return nil
		}
		t.emit(transport.Event{Kind: transport.EventMessage, Message: reply})
	default:
		defer resp.Body.Close()
	}
	return nil
}

func (t *Transport) applyHeaders(req *http.Request) {
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
}

// Close tears down the standing GET stream.
func (t *Transport) Close() error {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	t.settle("closed")
	return nil
}

// Events returns the transport's event channel.
func (t *Transport) Events() <-chan transport.Event {
	return t.events
}

func (t *Transport) emit(ev transport.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.events <- ev:
	default:
		t.logger.Warn("http transport event channel full; dropping event", "kind", ev.Kind)
	}
}

func (t *Transport) settle(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.events <- transport.Event{Kind: transport.EventClosed, Reason: reason}
	close(t.events)
}
