package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
)

// Transport carries JSON-RPC messages between a Client and a server.
type Transport interface {
	Send(ctx context.Context, message Message) error
	Receive(ctx context.Context) (Message, error)
	Close(ctx context.Context) error
}

// Options configures client identity and capabilities.
type Options struct {
	ProtocolVersion string
	ClientInfo      Implementation
	Capabilities    map[string]any
}

// Client drives one MCP session over a Transport. Requests are sent one at
// a time; each waits for the response carrying its id.
type Client struct {
	transport Transport
	options   Options
	lastID    atomic.Int64

	// exchange serializes request/response pairs on the transport.
	exchange sync.Mutex

	initMu sync.Mutex
	init   *InitializeResult
}

// NewClient wraps transport. Unset options fall back to the current
// protocol version and a petalpeople client identity.
func NewClient(transport Transport, options Options) *Client {
	if options.ProtocolVersion == "" {
		options.ProtocolVersion = DefaultProtocolVersion
	}
	if options.ClientInfo.Name == "" {
		options.ClientInfo.Name = "petalpeople-cli"
	}
	if options.ClientInfo.Version == "" {
		options.ClientInfo.Version = "dev"
	}
	return &Client{transport: transport, options: options}
}

// Initialize runs the initialize handshake once and then announces
// notifications/initialized. Later calls return the first result.
func (c *Client) Initialize(ctx context.Context) (InitializeResult, error) {
	if c == nil {
		return InitializeResult{}, errors.New("mcp: client is nil")
	}
	c.initMu.Lock()
	defer c.initMu.Unlock()
	if c.init != nil {
		return *c.init, nil
	}

	result, err := request[InitializeResult](ctx, c, "initialize", InitializeParams{
		ProtocolVersion: c.options.ProtocolVersion,
		Capabilities:    maps.Clone(c.options.Capabilities),
		ClientInfo:      c.options.ClientInfo,
	})
	if err != nil {
		return InitializeResult{}, err
	}
	if err := c.notify(ctx, "notifications/initialized"); err != nil {
		return InitializeResult{}, err
	}
	c.init = &result
	return result, nil
}

// Ping checks that the server answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := request[json.RawMessage](ctx, c, "ping", struct{}{})
	return err
}

// ListTools returns the server's tool catalogue.
func (c *Client) ListTools(ctx context.Context) (ToolsListResult, error) {
	return request[ToolsListResult](ctx, c, "tools/list", struct{}{})
}

// CallTool invokes one tool. A tool-level failure comes back as a result
// with IsError set; protocol failures come back as a *RequestError.
func (c *Client) CallTool(ctx context.Context, params ToolsCallParams) (ToolsCallResult, error) {
	return request[ToolsCallResult](ctx, c, "tools/call", params)
}

// Close closes the underlying transport.
func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.transport == nil {
		return nil
	}
	return c.transport.Close(ctx)
}

// request sends method with params and decodes the matching response into T.
func request[T any](ctx context.Context, c *Client, method string, params any) (T, error) {
	var out T
	fail := func(err error) (T, error) {
		return out, &RequestError{Method: method, Err: err}
	}
	if c == nil || c.transport == nil {
		return fail(errors.New("transport is nil"))
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return fail(fmt.Errorf("encode params: %w", err))
	}

	c.exchange.Lock()
	defer c.exchange.Unlock()

	id := NumericID(c.lastID.Add(1))
	if err := c.transport.Send(ctx, Message{JSONRPC: jsonRPCVersion, ID: id, Method: method, Params: raw}); err != nil {
		return fail(err)
	}

	response, err := c.await(ctx, id)
	if err != nil {
		return fail(err)
	}
	if response.Error != nil {
		return fail(response.Error)
	}
	if len(response.Result) > 0 {
		if err := json.Unmarshal(response.Result, &out); err != nil {
			return fail(fmt.Errorf("decode result: %w", err))
		}
	}
	return out, nil
}

// await reads until the response for id arrives. Server-initiated requests,
// notifications and stray responses are dropped.
func (c *Client) await(ctx context.Context, id json.RawMessage) (Message, error) {
	for {
		message, err := c.transport.Receive(ctx)
		if err != nil {
			return Message{}, err
		}
		if message.JSONRPC != "" && message.JSONRPC != jsonRPCVersion {
			return Message{}, fmt.Errorf("unsupported jsonrpc version %q", message.JSONRPC)
		}
		if message.Method == "" && sameID(message.ID, id) {
			return message, nil
		}
	}
}

func (c *Client) notify(ctx context.Context, method string) error {
	err := c.transport.Send(ctx, Message{JSONRPC: jsonRPCVersion, Method: method})
	if err != nil {
		return &RequestError{Method: method, Err: err}
	}
	return nil
}
