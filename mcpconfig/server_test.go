package mcpconfig_test

import (
	"testing"
	"time"

	"github.com/mcpcore/client-go/mcpconfig"
)

func TestNewStdioServerDefaults(t *testing.T) {
	cfg, err := mcpconfig.NewStdioServer("fs", "mcp-server-fs", "--root", "/tmp").Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cfg.Name() != "fs" {
		t.Errorf("Name() = %q, want fs", cfg.Name())
	}
	if cfg.Kind() != mcpconfig.Stdio {
		t.Errorf("Kind() = %v, want Stdio", cfg.Kind())
	}
	if cfg.Command() != "mcp-server-fs" {
		t.Errorf("Command() = %q, want mcp-server-fs", cfg.Command())
	}
	if cfg.Timeout() != 30*time.Second {
		t.Errorf("Timeout() = %v, want 30s default", cfg.Timeout())
	}
}

func TestNewStdioServerRequiresCommand(t *testing.T) {
	if _, err := mcpconfig.NewStdioServer("fs", "").Build(); err == nil {
		t.Fatal("expected Build to fail with an empty command")
	}
}

func TestNewHTTPServerRequiresURL(t *testing.T) {
	if _, err := mcpconfig.NewHTTPServer("remote", "").Build(); err == nil {
		t.Fatal("expected Build to fail with an empty url")
	}
}

func TestServerConfigBuilderRejectsNonPositiveTimeout(t *testing.T) {
	_, err := mcpconfig.NewStdioServer("fs", "mcp-server-fs").WithTimeout(0).Build()
	if err == nil {
		t.Fatal("expected Build to fail with a zero timeout")
	}
}

func TestServerConfigHeadersAreCopiedNotAliased(t *testing.T) {
	cfg, err := mcpconfig.NewHTTPServer("remote", "https://example.invalid/mcp").
		WithHeader("Authorization", "Bearer tok").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	h := cfg.Headers()
	h["Authorization"] = "tampered"
	if got := cfg.Headers()["Authorization"]; got != "Bearer tok" {
		t.Fatalf("Headers() = %q after caller mutation, want Bearer tok (copy leaked)", got)
	}
}

func TestClientConfigBuilderDefaults(t *testing.T) {
	cfg := mcpconfig.NewClient("demo", "1.0.0").Build()
	if cfg.Identity.Name != "demo" || cfg.Identity.Version != "1.0.0" {
		t.Fatalf("Identity = %+v, want {demo 1.0.0}", cfg.Identity)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("CacheTTL = %v, want 5m default", cfg.CacheTTL)
	}
}

func TestClientConfigBuilderWithFastCodec(t *testing.T) {
	cfg := mcpconfig.NewClient("demo", "1.0.0").WithFastCodec().Build()
	if cfg.Codec == nil {
		t.Fatal("Codec = nil, want jsonrpc.FastCodec after WithFastCodec")
	}
}
