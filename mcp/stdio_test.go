package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"
)

func TestServeStdioAnswersEachRequest(t *testing.T) {
	server := newFixtureServer(t)

	input := strings.Join([]string{
		string(rpcRequest(t, 1, "initialize", map[string]any{"protocolVersion": DefaultProtocolVersion})),
		string(rpcRequest(t, nil, "notifications/initialized", nil)),
		"",
		string(rpcRequest(t, 2, "tools/list", nil)),
		string(rpcRequest(t, "call-3", "tools/call", map[string]any{"name": "echo", "arguments": map[string]any{"text": "hi"}})),
		`{broken`,
	}, "\n") + "\n"

	var out bytes.Buffer
	if err := server.ServeStdio(context.Background(), strings.NewReader(input), &out); err != nil {
		t.Fatalf("ServeStdio() error = %v", err)
	}

	var responses []Message
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			t.Fatalf("Unmarshal(%q) error = %v", scanner.Text(), err)
		}
		responses = append(responses, msg)
	}
	if len(responses) != 4 {
		t.Fatalf("responses = %d, want 4 (one per request plus the parse error)", len(responses))
	}

	wantIDs := []string{"1", "2", `"call-3"`, "null"}
	for i, want := range wantIDs {
		if string(responses[i].ID) != want {
			t.Fatalf("response[%d].id = %s, want %s", i, responses[i].ID, want)
		}
	}
	called := decodeResult[ToolsCallResult](t, &responses[2])
	if called.Text() != "hi" {
		t.Fatalf("echo text = %q, want hi", called.Text())
	}
	if responses[3].Error == nil || responses[3].Error.Code != CodeParseError {
		t.Fatalf("last response = %+v, want parse error", responses[3])
	}
}

func TestServeStdioStopsOnCancel(t *testing.T) {
	server := newFixtureServer(t)
	reader, writer := io.Pipe()
	defer writer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.ServeStdio(ctx, reader, io.Discard)
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("ServeStdio() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ServeStdio did not return after cancel")
	}
}

func TestStdioTransportAgainstServerProcess(t *testing.T) {
	transport, err := NewStdioTransport(context.Background(), StdioTransportConfig{
		Command: os.Args[0],
		Args:    []string{"-test.run=TestMCPStdioHelperProcess", "--"},
		Env: map[string]string{
			"GO_WANT_MCP_STDIO_HELPER": "1",
		},
	})
	if err != nil {
		t.Fatalf("NewStdioTransport() error = %v", err)
	}

	client := NewClient(transport, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	defer client.Close(ctx)

	if _, err := client.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	listed, err := client.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools() error = %v", err)
	}
	if len(listed.Tools) != 4 {
		t.Fatalf("tools = %d, want 4", len(listed.Tools))
	}
	result, err := client.CallTool(ctx, ToolsCallParams{Name: "echo", Arguments: map[string]any{"text": "yo", "times": 3}})
	if err != nil {
		t.Fatalf("CallTool() error = %v", err)
	}
	if result.Text() != "yoyoyo" {
		t.Fatalf("CallTool() text = %q, want yoyoyo", result.Text())
	}
}

func TestMCPStdioHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_MCP_STDIO_HELPER") != "1" {
		return
	}

	server := newFixtureServer(t)
	if err := server.ServeStdio(context.Background(), os.Stdin, os.Stdout); err != nil {
		os.Exit(2)
	}
	os.Exit(0)
}
