package httptransport_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mcpcore/client-go/jsonrpc"
	"github.com/mcpcore/client-go/transport"
	"github.com/mcpcore/client-go/transport/httptransport"
)

// newFixtureServer returns an httptest.Server speaking the subset of the
// protocol this transport needs: a standing GET stream for server-initiated
// traffic, and a POST endpoint that answers every message with the same
// JSON-RPC result carrying id "1".
func newFixtureServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "text/event-stream")
			w.WriteHeader(http.StatusOK)
			flusher, ok := w.(http.Flusher)
			if !ok {
				t.Fatal("ResponseWriter does not support flushing")
			}
			fmt.Fprintf(w, "data: {\"jsonrpc\":\"2.0\",\"method\":\"notifications/tools/listChanged\"}\n\n")
			flusher.Flush()
			<-r.Context().Done()
		case http.MethodPost:
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"jsonrpc":"2.0","id":"1","result":{"tools":[]}}`)
		}
	})
	return httptest.NewServer(mux)
}

func TestHTTPTransportConnectReceivesStandingStreamEvent(t *testing.T) {
	server := newFixtureServer(t)
	defer server.Close()

	tr := httptransport.New(server.URL+"/mcp", nil, nil, nil)
	if err := tr.Connect(t.Context()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Close()

	select {
	case ev := <-tr.Events():
		if ev.Kind != transport.EventMessage {
			t.Fatalf("event kind = %v, want EventMessage", ev.Kind)
		}
		notif, ok := ev.Message.(*jsonrpc.Notification)
		if !ok || notif.Method != "notifications/tools/listChanged" {
			t.Fatalf("message = %#v, want notifications/tools/listChanged", ev.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the standing stream's event")
	}
}

func TestHTTPTransportSendDecodesJSONReply(t *testing.T) {
	server := newFixtureServer(t)
	defer server.Close()

	tr := httptransport.New(server.URL+"/mcp", map[string]string{"Authorization": "Bearer tok"}, nil, nil)
	if err := tr.Connect(t.Context()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Close()

	// Drain the standing stream's notification first.
	<-tr.Events()

	if err := tr.Send(t.Context(), &jsonrpc.Request{ID: jsonrpc.StringID("1"), Method: "tools/list"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case ev := <-tr.Events():
		resp, ok := ev.Message.(*jsonrpc.Response)
		if !ok {
			t.Fatalf("message = %#v, want *jsonrpc.Response", ev.Message)
		}
		if resp.ID.String() != "1" {
			t.Errorf("response id = %q, want 1", resp.ID.String())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the POST reply event")
	}
}

func TestHTTPTransportCloseEmitsClosedSignal(t *testing.T) {
	server := newFixtureServer(t)
	defer server.Close()

	tr := httptransport.New(server.URL+"/mcp", nil, nil, nil)
	if err := tr.Connect(t.Context()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	<-tr.Events() // the standing stream's notification

	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-tr.Events():
			if !ok {
				t.Fatal("Events channel closed before a Closed signal was observed")
			}
			if ev.Kind == transport.EventClosed {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for EventClosed")
		}
	}
}
