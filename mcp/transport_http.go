package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// HTTPTransportConfig configures an HTTPTransport.
type HTTPTransportConfig struct {
	// Endpoint is either the synchronous JSON-RPC URL served at /mcp or the
	// event stream URL served at /sse. A path ending in /sse selects the
	// session flow: responses arrive on the stream and POSTs go to the URL
	// named by its "endpoint" event.
	Endpoint string
	Headers  map[string]string
	Client   *http.Client
}

// HTTPStatusError reports a non-2xx answer from the server.
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("mcp: %s returned status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("mcp: %s returned status %d: %s", e.URL, e.StatusCode, e.Body)
}

// HTTPTransport speaks MCP to an SSEHandler, either through the direct
// /mcp route or through an /sse session.
type HTTPTransport struct {
	cfg     HTTPTransportConfig
	session bool
	recvCh  chan Message

	// ctx bounds the event stream; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	closed    bool
	postURL   string
	streamEnd chan struct{}
	streamErr error
}

// NewHTTPTransport creates an HTTP-backed MCP transport. The event stream
// of a session transport is opened by the first Send.
func NewHTTPTransport(cfg HTTPTransportConfig) (*HTTPTransport, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	if cfg.Endpoint == "" {
		return nil, errors.New("mcp: http endpoint is required")
	}
	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil || endpoint.Host == "" {
		return nil, fmt.Errorf("mcp: invalid http endpoint %q", cfg.Endpoint)
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	cfg.Headers = maps.Clone(cfg.Headers)

	ctx, cancel := context.WithCancel(context.Background())
	return &HTTPTransport{
		cfg:     cfg,
		session: strings.HasSuffix(strings.TrimRight(endpoint.Path, "/"), "/sse"),
		recvCh:  make(chan Message, sessionQueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Send posts one JSON-RPC message. A direct endpoint's response body is
// queued for Receive; 202 Accepted and empty bodies queue nothing.
func (t *HTTPTransport) Send(ctx context.Context, message Message) error {
	target, err := t.target(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("mcp: encode request: %w", err)
	}
	req, err := t.newRequest(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.cfg.Client.Do(req)
	if err != nil {
		return fmt.Errorf("mcp: post %s: %w", target, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, MaxRequestBytes))
	if err != nil {
		return fmt.Errorf("mcp: read response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &HTTPStatusError{
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(payload)),
		}
	}
	if resp.StatusCode == http.StatusAccepted || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	var response Message
	if err := json.Unmarshal(payload, &response); err != nil {
		return fmt.Errorf("mcp: decode response: %w", err)
	}
	return t.deliver(ctx, response)
}

// Receive waits for the next response. A session transport fails once its
// event stream has ended and every delivered message has been read.
func (t *HTTPTransport) Receive(ctx context.Context) (Message, error) {
	t.mu.Lock()
	streamEnd := t.streamEnd
	t.mu.Unlock()

	select {
	case message := <-t.recvCh:
		return message, nil
	default:
	}
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case message := <-t.recvCh:
		return message, nil
	case <-streamEnd:
		select {
		case message := <-t.recvCh:
			return message, nil
		default:
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		return Message{}, t.streamErr
	}
}

// Close ends the event stream, if any, and rejects further sends.
func (t *HTTPTransport) Close(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	streamEnd := t.streamEnd
	t.mu.Unlock()

	t.cancel()
	if streamEnd == nil {
		return nil
	}
	select {
	case <-streamEnd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// target returns the URL the next message is posted to, opening the event
// stream first for a session transport.
func (t *HTTPTransport) target(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return "", errors.New("mcp: http transport is closed")
	}
	if !t.session {
		return t.cfg.Endpoint, nil
	}
	if t.streamEnd != nil {
		select {
		case <-t.streamEnd:
			return "", fmt.Errorf("mcp: sse session ended: %w", t.streamErr)
		default:
			return t.postURL, nil
		}
	}
	return t.openStream(ctx)
}

// openStream runs with t.mu held.
func (t *HTTPTransport) openStream(ctx context.Context) (string, error) {
	req, err := t.newRequest(t.ctx, http.MethodGet, t.cfg.Endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.cfg.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("mcp: open sse stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return "", &HTTPStatusError{
			URL:        t.cfg.Endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(payload)),
		}
	}

	// The stream outlives ctx, but waiting for the endpoint event must not.
	stop := context.AfterFunc(ctx, func() { resp.Body.Close() })
	reader := bufio.NewReader(resp.Body)
	event, data, err := nextEvent(reader)
	if !stop() {
		err = errors.Join(err, ctx.Err())
	}
	if err == nil && event != "endpoint" {
		err = fmt.Errorf("first event is %q, want endpoint", event)
	}
	var postURL string
	if err == nil {
		postURL, err = resolveEndpoint(t.cfg.Endpoint, data)
	}
	if err != nil {
		resp.Body.Close()
		return "", fmt.Errorf("mcp: sse handshake: %w", err)
	}

	t.postURL = postURL
	t.streamEnd = make(chan struct{})
	go t.readStream(reader, resp.Body, t.streamEnd)
	return postURL, nil
}

func (t *HTTPTransport) readStream(reader *bufio.Reader, body io.Closer, streamEnd chan struct{}) {
	defer close(streamEnd)
	defer body.Close()

	for {
		event, data, err := nextEvent(reader)
		if err != nil {
			t.endStream(err)
			return
		}
		if event != "message" {
			continue
		}
		var message Message
		if err := json.Unmarshal([]byte(data), &message); err != nil {
			t.endStream(fmt.Errorf("mcp: decode sse message: %w", err))
			return
		}
		if err := t.deliver(t.ctx, message); err != nil {
			t.endStream(err)
			return
		}
	}
}

func (t *HTTPTransport) endStream(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.closed:
		t.streamErr = errors.New("mcp: http transport is closed")
	case errors.Is(err, io.EOF):
		t.streamErr = errors.New("mcp: sse stream closed by server")
	default:
		t.streamErr = err
	}
}

func (t *HTTPTransport) deliver(ctx context.Context, message Message) error {
	select {
	case t.recvCh <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *HTTPTransport) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("mcp: build request: %w", err)
	}
	for key, value := range t.cfg.Headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

// nextEvent reads one event from an SSE stream. Comment lines are skipped
// and multiple data lines are joined with newlines.
func nextEvent(r *bufio.Reader) (event, data string, err error) {
	var lines []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", "", err
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if event != "" || len(lines) > 0 {
				if event == "" {
					event = "message"
				}
				return event, strings.Join(lines, "\n"), nil
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			value := strings.TrimPrefix(line, "data:")
			lines = append(lines, strings.TrimPrefix(value, " "))
		}
	}
}

func resolveEndpoint(streamURL, endpoint string) (string, error) {
	base, err := url.Parse(streamURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	return base.ResolveReference(ref).String(), nil
}
