// Package stdio implements transport.Transport over a child process's
// stdin/stdout, framing one JSON-RPC message per newline-delimited line.
package stdio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/mcpcore/client-go/jsonrpc"
	"github.com/mcpcore/client-go/transport"
)

// Transport launches command with args/env and speaks newline-delimited
// JSON-RPC over its stdin/stdout. Stderr lines are forwarded as
// transport.EventStderr signals rather than logged directly, so the caller
// decides what to do with them.
type Transport struct {
	command string
	args    []string
	env     []string
	logger  *slog.Logger
	codec   jsonrpc.Codec

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	events chan transport.Event
	closed bool
}

// New returns a Transport for command, not yet started; Connect launches
// the process. A nil codec defaults to jsonrpc's standard encoding/json
// codec; pass jsonrpc.FastCodec to opt into the segmentio/encoding path
// selected via ClientConfig.WithFastCodec.
func New(command string, args, env []string, codec jsonrpc.Codec, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	if codec == nil {
		codec = jsonrpc.DefaultCodec
	}
	return &Transport{
		command: command,
		args:    append([]string(nil), args...),
		env:     append([]string(nil), env...),
		logger:  logger,
		codec:   codec,
		events:  make(chan transport.Event, 16),
	}
}

// Connect starts the child process and begins reading its stdout/stderr in
// background goroutines.
func (t *Transport) Connect(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, t.command, t.args...)
	if len(t.env) > 0 {
		cmd.Env = t.env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdio: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdio: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stdio: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("stdio: starting %s: %w", t.command, err)
	}

	t.mu.Lock()
	t.cmd = cmd
	t.stdin = stdin
	t.mu.Unlock()

	go t.readStdout(stdout)
	go t.readStderr(stderr)
	go t.awaitExit()

	return nil
}

func (t *Transport) readStdout(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg, err := t.codec.Decode(line)
		if err != nil {
			t.logger.Warn("stdio transport dropping malformed message", "error", err)
			continue
		}
		t.emit(transport.Event{Kind: transport.EventMessage, Message: msg})
	}
	if err := scanner.Err(); err != nil {
		t.emit(transport.Event{Kind: transport.EventError, Err: err})
	}
}

func (t *Transport) readStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		t.emit(transport.Event{Kind: transport.EventStderr, Stderr: append([]byte(nil), scanner.Bytes()...)})
	}
}

func (t *Transport) awaitExit() {
	t.mu.Lock()
	cmd := t.cmd
	t.mu.Unlock()
	if cmd == nil {
		return
	}
	err := cmd.Wait()
	reason := "process exited"
	if err != nil {
		reason = "process exited: " + err.Error()
	}
	t.settle(reason)
}

// Send encodes msg and writes it to the child process's stdin as one line.
func (t *Transport) Send(ctx context.Context, msg jsonrpc.Message) error {
	data, err := t.codec.Encode(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	t.mu.Lock()
	stdin := t.stdin
	t.mu.Unlock()
	if stdin == nil {
		return fmt.Errorf("stdio: not connected")
	}
	_, err = stdin.Write(data)
	return err
}

// Close terminates the child process. It is idempotent.
func (t *Transport) Close() error {
	t.mu.Lock()
	cmd := t.cmd
	stdin := t.stdin
	t.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
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
		t.logger.Warn("stdio transport event channel full; dropping event", "kind", ev.Kind)
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
