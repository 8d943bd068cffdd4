// Command mcphost is a minimal embedding host for the mcpcore client
// engine: it launches one stdio MCP server, performs the handshake, lists
// its tools, and drops into an interactive loop for calling them. It is a
// demonstration of the client/mcpconfig public surface, not part of the
// core itself (spec.md §1 lists the CLI/embedding host as out of scope for
// the core engine).
//
// Usage:
//
//	mcphost <command> [args...]
//
// Environment variables:
//
//	MCPHOST_TIMEOUT - per-request timeout, as a Go duration (default: 30s)
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/mcpcore/client-go/client"
	"github.com/mcpcore/client-go/events"
	"github.com/mcpcore/client-go/mcpconfig"
)

// notificationLogger is a minimal events.Sink that logs every server
// notification at info level, so a host embedding the manager sees
// tools/resources/prompts changes without writing its own dispatch table.
type notificationLogger struct {
	logger *slog.Logger
}

func (n notificationLogger) Dispatch(ev events.Event) error {
	switch e := ev.(type) {
	case events.ToolsListChanged:
		n.logger.Info("tools list changed", "server", e.Server())
	case events.ResourcesListChanged:
		n.logger.Info("resources list changed", "server", e.Server())
	case events.PromptsListChanged:
		n.logger.Info("prompts list changed", "server", e.Server())
	case events.ResourceChanged:
		n.logger.Info("resource changed", "server", e.Server(), "uri", e.URI)
	case events.LogReceived:
		n.logger.Info("server log", "server", e.Server(), "level", e.Level, "logger", e.Logger)
	case events.SamplingRequestReceived:
		n.logger.Info("sampling request received", "server", e.Server())
	}
	return nil
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: mcphost <command> [args...]")
		os.Exit(2)
	}

	timeout := 30 * time.Second
	if s := os.Getenv("MCPHOST_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			timeout = d
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := mcpconfig.NewClient("mcphost", "0.1.0").
		WithLogger(logger).
		WithSink(notificationLogger{logger: logger}).
		Build()

	serverCfg, err := mcpconfig.NewStdioServer("target", os.Args[1], os.Args[2:]...).
		WithTimeout(timeout).
		Build()
	if err != nil {
		logger.Error("building server config", "error", err)
		os.Exit(1)
	}

	manager := client.NewManager(cfg)
	manager.RegisterServer(serverCfg)
	defer manager.DisconnectAll(context.Background())

	conn, err := manager.EnsureConnected(ctx, serverCfg.Name())
	if err != nil {
		logger.Error("connecting", "error", err)
		os.Exit(1)
	}
	negotiated, _ := conn.Negotiated()
	fmt.Printf("connected to %s %s (protocol %s)\n",
		negotiated.ServerInfo.Name, negotiated.ServerInfo.Version, negotiated.ProtocolVersion)

	if err := listTools(ctx, manager, serverCfg.Name()); err != nil {
		logger.Warn("listing tools", "error", err)
	}

	if err := interactiveLoop(ctx, manager, serverCfg.Name()); err != nil {
		logger.Error("interactive loop", "error", err)
		os.Exit(1)
	}
}

func listTools(ctx context.Context, manager *client.Manager, server string) error {
	resp, err := manager.SendRequestAndWait(ctx, server, "tools/list", nil, 0)
	if err != nil {
		return err
	}
	if resp.Err != nil {
		return resp.Err
	}
	var result struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return err
	}
	fmt.Println("available tools:")
	for _, tool := range result.Tools {
		fmt.Printf("  %s - %s\n", tool.Name, tool.Description)
	}
	return nil
}

// interactiveLoop reads "call <tool> [json-args]" / "quit" commands from
// stdin, mirroring the shape of the teacher's example client's command
// loop, but wired to mcpcore's blocking manager facade instead of the
// teacher's ClientSession.
func interactiveLoop(ctx context.Context, manager *client.Manager, server string) error {
	fmt.Println(`commands: call <tool> [json-args], quit`)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("mcp> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "quit":
			return nil
		case strings.HasPrefix(line, "call "):
			callTool(ctx, manager, server, strings.TrimPrefix(line, "call "))
		default:
			fmt.Println("unknown command; try 'call <tool> [json-args]' or 'quit'")
		}
	}
}

func callTool(ctx context.Context, manager *client.Manager, server, rest string) {
	parts := strings.SplitN(rest, " ", 2)
	name := parts[0]
	var args any
	if len(parts) == 2 {
		if err := json.Unmarshal([]byte(parts[1]), &args); err != nil {
			fmt.Printf("invalid arguments (expected JSON): %v\n", err)
			return
		}
	}

	resp, err := manager.SendRequestAndWait(ctx, server, "tools/call",
		map[string]any{"name": name, "arguments": args}, 0)
	if err != nil {
		fmt.Printf("error calling %q: %v\n", name, err)
		return
	}
	if resp.Err != nil {
		fmt.Printf("server rejected %q: %v\n", name, resp.Err)
		return
	}
	fmt.Printf("%s\n", resp.Result)
}
