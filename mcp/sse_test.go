package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type sseEvent struct {
	event string
	data  string
}

// readEvent returns the next SSE event, or a comment line as event ":".
func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read sse stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.event != "" || ev.data != "" {
				return ev
			}
		case strings.HasPrefix(line, ":"):
			ev.event = ":"
			ev.data = strings.TrimSpace(strings.TrimPrefix(line, ":"))
		case strings.HasPrefix(line, "event: "):
			ev.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func openStream(t *testing.T, ctx context.Context, baseURL string) (*http.Response, *bufio.Reader) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/sse", nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /sse error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /sse status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	return resp, bufio.NewReader(resp.Body)
}

func post(t *testing.T, url string, body []byte) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(string(body)))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestSSESessionRoundTrip(t *testing.T) {
	handler := NewSSEHandler(newFixtureServer(t), SSEConfig{})
	srv := httptest.NewServer(handler)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	resp, stream := openStream(t, ctx, srv.URL)
	defer resp.Body.Close()

	endpoint := readEvent(t, stream)
	if endpoint.event != "endpoint" || !strings.HasPrefix(endpoint.data, "/messages?session_id=") {
		t.Fatalf("first event = %+v", endpoint)
	}
	if handler.Sessions() != 1 {
		t.Fatalf("Sessions() = %d, want 1", handler.Sessions())
	}

	accepted := post(t, srv.URL+endpoint.data, rpcRequest(t, 7, "tools/call", map[string]any{
		"name":      "echo",
		"arguments": map[string]any{"text": "sse"},
	}))
	if accepted.StatusCode != http.StatusAccepted {
		t.Fatalf("POST /messages status = %d, want 202", accepted.StatusCode)
	}

	ev := readEvent(t, stream)
	if ev.event != "message" {
		t.Fatalf("event = %+v, want message", ev)
	}
	var msg Message
	if err := json.Unmarshal([]byte(ev.data), &msg); err != nil {
		t.Fatalf("Unmarshal(message) error = %v", err)
	}
	if string(msg.ID) != "7" {
		t.Fatalf("message id = %s, want 7", msg.ID)
	}
	if got := decodeResult[ToolsCallResult](t, &msg); got.Text() != "sse" {
		t.Fatalf("text = %q, want sse", got.Text())
	}

	notified := post(t, srv.URL+endpoint.data, rpcRequest(t, nil, "notifications/initialized", nil))
	if notified.StatusCode != http.StatusAccepted {
		t.Fatalf("notification status = %d, want 202", notified.StatusCode)
	}
}

func TestSSEHeartbeat(t *testing.T) {
	srv := httptest.NewServer(NewSSEHandler(newFixtureServer(t), SSEConfig{Heartbeat: 20 * time.Millisecond}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	resp, stream := openStream(t, ctx, srv.URL)
	defer resp.Body.Close()

	_ = readEvent(t, stream)
	if ev := readEvent(t, stream); ev.event != ":" || ev.data != "ping" {
		t.Fatalf("event = %+v, want ping comment", ev)
	}
}

func TestSSEMessageRejections(t *testing.T) {
	srv := httptest.NewServer(NewSSEHandler(newFixtureServer(t), SSEConfig{}))
	defer srv.Close()

	body := rpcRequest(t, 1, "ping", nil)
	if resp := post(t, srv.URL+"/messages", body); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing session status = %d, want 400", resp.StatusCode)
	}
	if resp := post(t, srv.URL+"/messages?session_id=unknown", body); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown session status = %d, want 404", resp.StatusCode)
	}
	if resp := post(t, srv.URL+"/mcp", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty body status = %d, want 400", resp.StatusCode)
	}
	oversized := []byte(strings.Repeat(" ", MaxRequestBytes+1))
	if resp := post(t, srv.URL+"/mcp", oversized); resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized body status = %d, want 413", resp.StatusCode)
	}
}

func TestSSECloseSessionsEndsStreams(t *testing.T) {
	handler := NewSSEHandler(newFixtureServer(t), SSEConfig{})
	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, stream := openStream(t, context.Background(), srv.URL)
	defer resp.Body.Close()
	_ = readEvent(t, stream)

	handler.CloseSessions()
	if _, err := stream.ReadString('\n'); err == nil {
		t.Fatal("stream still open after CloseSessions")
	}
}

func TestHTTPTransportDirectEndpoint(t *testing.T) {
	srv := httptest.NewServer(NewSSEHandler(newFixtureServer(t), SSEConfig{}))
	defer srv.Close()

	transport, err := NewHTTPTransport(HTTPTransportConfig{Endpoint: srv.URL + "/mcp"})
	if err != nil {
		t.Fatalf("NewHTTPTransport() error = %v", err)
	}
	client := NewClient(transport, Options{})
	defer client.Close(context.Background())
	ctx := context.Background()

	init, err := client.Initialize(ctx)
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if init.ServerInfo.Name != "fixture" {
		t.Fatalf("ServerInfo.Name = %q", init.ServerInfo.Name)
	}
	if err := client.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	result, err := client.CallTool(ctx, ToolsCallParams{Name: "rows"})
	if err != nil {
		t.Fatalf("CallTool() error = %v", err)
	}
	rows, _ := result.StructuredContent["result"].([]any)
	if len(rows) != 2 {
		t.Fatalf("structured rows = %v", result.StructuredContent)
	}
}

func TestHTTPTransportNotificationQueuesNothing(t *testing.T) {
	srv := httptest.NewServer(NewSSEHandler(newFixtureServer(t), SSEConfig{}))
	defer srv.Close()

	transport, err := NewHTTPTransport(HTTPTransportConfig{Endpoint: srv.URL + "/mcp"})
	if err != nil {
		t.Fatalf("NewHTTPTransport() error = %v", err)
	}
	defer transport.Close(context.Background())

	if err := transport.Send(context.Background(), Message{JSONRPC: "2.0", Method: "notifications/initialized"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if msg, err := transport.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Receive() = %+v, %v; want deadline exceeded", msg, err)
	}
}

func TestHTTPTransportStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	transport, err := NewHTTPTransport(HTTPTransportConfig{Endpoint: srv.URL + "/mcp"})
	if err != nil {
		t.Fatalf("NewHTTPTransport() error = %v", err)
	}
	defer transport.Close(context.Background())

	err = transport.Send(context.Background(), Message{JSONRPC: "2.0", ID: NumericID(1), Method: "ping"})
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Send() error = %v, want *HTTPStatusError", err)
	}
	if statusErr.StatusCode != http.StatusServiceUnavailable || statusErr.Body != "database unavailable" {
		t.Fatalf("status error = %+v", statusErr)
	}
}

func TestHTTPTransportSessionFlow(t *testing.T) {
	handler := NewSSEHandler(newFixtureServer(t), SSEConfig{})
	srv := httptest.NewServer(handler)
	defer srv.Close()

	transport, err := NewHTTPTransport(HTTPTransportConfig{Endpoint: srv.URL + "/sse"})
	if err != nil {
		t.Fatalf("NewHTTPTransport() error = %v", err)
	}
	client := NewClient(transport, Options{})
	defer client.Close(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if handler.Sessions() != 1 {
		t.Fatalf("Sessions() = %d, want 1", handler.Sessions())
	}
	result, err := client.CallTool(ctx, ToolsCallParams{Name: "rows"})
	if err != nil {
		t.Fatalf("CallTool() error = %v", err)
	}
	rows, _ := result.StructuredContent["result"].([]any)
	if len(rows) != 2 {
		t.Fatalf("structured rows = %v", result.StructuredContent)
	}
}

func TestHTTPTransportSessionEndedByServer(t *testing.T) {
	handler := NewSSEHandler(newFixtureServer(t), SSEConfig{})
	srv := httptest.NewServer(handler)
	defer srv.Close()

	transport, err := NewHTTPTransport(HTTPTransportConfig{Endpoint: srv.URL + "/sse"})
	if err != nil {
		t.Fatalf("NewHTTPTransport() error = %v", err)
	}
	defer transport.Close(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := transport.Send(ctx, Message{JSONRPC: "2.0", ID: NumericID(1), Method: "ping"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if _, err := transport.Receive(ctx); err != nil {
		t.Fatalf("Receive() error = %v", err)
	}

	handler.CloseSessions()
	if _, err := transport.Receive(ctx); err == nil || errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Receive() error = %v, want stream closed", err)
	}
}

func TestNextEvent(t *testing.T) {
	stream := ": ping\n\nevent: endpoint\ndata: /messages?session_id=abc\n\ndata: {\"a\":1}\ndata: {\"b\":2}\n\n"
	r := bufio.NewReader(strings.NewReader(stream))

	event, data, err := nextEvent(r)
	if err != nil || event != "endpoint" || data != "/messages?session_id=abc" {
		t.Fatalf("nextEvent() = %q, %q, %v", event, data, err)
	}
	event, data, err = nextEvent(r)
	if err != nil || event != "message" || data != "{\"a\":1}\n{\"b\":2}" {
		t.Fatalf("nextEvent() = %q, %q, %v", event, data, err)
	}
	if _, _, err := nextEvent(r); err == nil {
		t.Fatal("nextEvent() at end of stream error = nil")
	}
}
