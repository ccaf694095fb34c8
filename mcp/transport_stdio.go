package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

// StdioTransportConfig configures a StdioTransport.
type StdioTransportConfig struct {
	Command string
	Args    []string
	Env     map[string]string
	// Stderr receives the server's stderr; nil discards it.
	Stderr io.Writer
}

// StdioTransport runs an MCP server as a subprocess and exchanges
// newline-delimited messages over its stdin and stdout.
type StdioTransport struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	writeMu sync.Mutex

	// incoming is closed once stdout ends; buffered messages drain first.
	incoming chan Message
	stopped  chan struct{}
	exited   chan struct{}

	// Written by the reader goroutine before exited is closed.
	readErr error
	exitErr error

	closing   atomic.Bool
	closeOnce sync.Once
}

// NewStdioTransport starts the server subprocess. The process is bound to
// ctx and is killed when ctx ends.
func NewStdioTransport(ctx context.Context, cfg StdioTransportConfig) (*StdioTransport, error) {
	command := strings.TrimSpace(cfg.Command)
	if command == "" {
		return nil, errors.New("mcp: stdio command is required")
	}

	// #nosec G204 -- command and args come from the operator's command line.
	cmd := exec.CommandContext(ctx, command, slices.Clone(cfg.Args)...)
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), flattenEnv(cfg.Env)...)
	}
	cmd.Stderr = cfg.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: stdio stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: stdio stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("mcp: starting %s: %w", command, err)
	}

	t := &StdioTransport{
		cmd:      cmd,
		stdin:    stdin,
		incoming: make(chan Message, 64),
		stopped:  make(chan struct{}),
		exited:   make(chan struct{}),
	}
	go t.run(stdout)
	return t, nil
}

// run reads stdout until it ends, then reaps the process.
func (t *StdioTransport) run(stdout io.Reader) {
	defer close(t.exited)
	t.readErr = t.readMessages(stdout)
	close(t.incoming)
	// Drain what is left so a server still writing can exit.
	_, _ = io.Copy(io.Discard, stdout)
	t.exitErr = t.cmd.Wait()
}

func (t *StdioTransport) readMessages(stdout io.Reader) error {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var message Message
		if err := json.Unmarshal(line, &message); err != nil {
			return fmt.Errorf("mcp: stdio decode message: %w", err)
		}
		select {
		case t.incoming <- message:
		case <-t.stopped:
			return nil
		}
	}
	return scanner.Err()
}

// Send writes one message line to the server's stdin.
func (t *StdioTransport) Send(_ context.Context, message Message) error {
	if t.closing.Load() {
		return errors.New("mcp: stdio transport is closed")
	}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("mcp: encode message: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("mcp: stdio write: %w", err)
	}
	return nil
}

// Receive returns the next message from the server's stdout. Once stdout
// has ended and every queued message is consumed, it reports why.
func (t *StdioTransport) Receive(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case message, ok := <-t.incoming:
		if ok {
			return message, nil
		}
	}

	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-t.exited:
	}
	switch {
	case t.readErr != nil:
		return Message{}, t.readErr
	case t.exitErr != nil && !t.closing.Load():
		return Message{}, fmt.Errorf("mcp: stdio server exited: %w", t.exitErr)
	default:
		return Message{}, io.EOF
	}
}

// Close closes the server's stdin and waits for it to exit. If ctx ends
// first the process is killed.
func (t *StdioTransport) Close(ctx context.Context) error {
	var err error
	t.closeOnce.Do(func() {
		t.closing.Store(true)
		close(t.stopped)
		_ = t.stdin.Close()

		select {
		case <-t.exited:
		case <-ctx.Done():
			_ = t.cmd.Process.Kill()
			<-t.exited
			err = ctx.Err()
		}
	})
	return err
}

func flattenEnv(values map[string]string) []string {
	out := make([]string, 0, len(values))
	for key, value := range values {
		out = append(out, key+"="+value)
	}
	slices.Sort(out)
	return out
}
