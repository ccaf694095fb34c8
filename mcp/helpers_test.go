package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/petal-labs/petalpeople/tool"
)

// newFixtureRegistry returns a sealed registry with small tools covering
// each outcome kind.
func newFixtureRegistry(t *testing.T) *tool.Registry {
	t.Helper()
	reg := tool.NewRegistry()
	descriptors := []tool.Descriptor{
		{
			Name:        "echo",
			Description: "Echo text back.",
			Params: []tool.Param{
				{Name: "text", Type: tool.TypeString, Required: true},
				{Name: "times", Type: tool.TypeInteger, Default: int64(1)},
			},
			Returns: tool.ReturnsValue(tool.TypeString),
			Handler: func(_ context.Context, args tool.Args) (tool.Result, error) {
				return tool.Result{Value: strings.Repeat(args.String("text"), int(args.Int("times")))}, nil
			},
		},
		{
			Name:    "rows",
			Returns: tool.ReturnsList(tool.TypeObject),
			Handler: func(context.Context, tool.Args) (tool.Result, error) {
				return tool.Result{Value: []map[string]any{{"id": 1}, {"id": 2}}}, nil
			},
		},
		{
			Name:    "refuse",
			Returns: tool.ReturnsValue(tool.TypeString),
			Handler: func(context.Context, tool.Args) (tool.Result, error) {
				return tool.Result{Value: "refused", IsError: true}, nil
			},
		},
		{
			Name:    "broken",
			Returns: tool.ReturnsValue(tool.TypeString),
			Handler: func(context.Context, tool.Args) (tool.Result, error) {
				return tool.Result{}, errors.New("disk on fire")
			},
		},
	}
	for _, d := range descriptors {
		if err := reg.Register(d); err != nil {
			t.Fatalf("Register(%q) error = %v", d.Name, err)
		}
	}
	reg.Seal()
	return reg
}

func newFixtureServer(t *testing.T) *Server {
	t.Helper()
	server, err := NewServer(ServerConfig{Name: "fixture", Version: "1.2.3", Tools: newFixtureRegistry(t)})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return server
}

// loopbackTransport hands every message straight to an in-process Server.
type loopbackTransport struct {
	server *Server

	mu            sync.Mutex
	queue         []Message
	notifications []string
	closed        bool
}

func (l *loopbackTransport) Send(ctx context.Context, message Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	response := l.server.HandleBytes(ctx, data)

	l.mu.Lock()
	defer l.mu.Unlock()
	if message.IsNotification() {
		l.notifications = append(l.notifications, message.Method)
	}
	if response != nil {
		l.queue = append(l.queue, *response)
	}
	return nil
}

func (l *loopbackTransport) Receive(ctx context.Context) (Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return Message{}, errors.New("loopback: no queued responses")
	}
	msg := l.queue[0]
	l.queue = l.queue[1:]
	return msg, nil
}

func (l *loopbackTransport) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func rpcRequest(t *testing.T, id any, method string, params any) []byte {
	t.Helper()
	msg := map[string]any{"jsonrpc": "2.0", "method": method}
	if id != nil {
		msg["id"] = id
	}
	if params != nil {
		msg["params"] = params
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	return data
}

func decodeResult[T any](t *testing.T, msg *Message) T {
	t.Helper()
	var out T
	if msg == nil {
		t.Fatal("response is nil")
	}
	if msg.Error != nil {
		t.Fatalf("response error = %v", msg.Error)
	}
	if err := json.Unmarshal(msg.Result, &out); err != nil {
		t.Fatalf("Unmarshal(result) error = %v", err)
	}
	return out
}

func mustRawJSON(t *testing.T, value any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	return data
}
