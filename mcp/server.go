package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/petal-labs/petalpeople/tool"
)

const (
	defaultServerName    = "petalpeople"
	defaultServerVersion = "dev"
)

// ServerConfig configures a Server.
type ServerConfig struct {
	Name         string
	Version      string
	Instructions string
	Tools        ToolProvider
	Logger       *slog.Logger
}

// Server answers MCP requests against a ToolProvider. It holds no
// per-session state and is safe for concurrent use.
type Server struct {
	cfg    ServerConfig
	logger *slog.Logger
}

// NewServer returns a Server for cfg.Tools.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Tools == nil {
		return nil, errors.New("mcp: server requires a tool provider")
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = defaultServerName
	}
	if strings.TrimSpace(cfg.Version) == "" {
		cfg.Version = defaultServerVersion
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, logger: logger}, nil
}

// HandleBytes decodes one JSON-RPC message and dispatches it. It returns nil
// when no response is due.
func (s *Server) HandleBytes(ctx context.Context, data []byte) *Message {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warn("mcp: discarding malformed message", slog.Any("error", err))
		return errorResponse(json.RawMessage("null"), CodeParseError, "parse error")
	}
	return s.Handle(ctx, msg)
}

// Handle dispatches one JSON-RPC message and returns its response, or nil
// for notifications and stray responses.
func (s *Server) Handle(ctx context.Context, msg Message) *Message {
	if msg.Method == "" {
		if hasID(msg.ID) && msg.Result == nil && msg.Error == nil {
			return errorResponse(msg.ID, CodeInvalidRequest, "missing method")
		}
		return nil
	}
	if msg.JSONRPC != jsonRPCVersion {
		if msg.IsNotification() {
			return nil
		}
		return errorResponse(msg.ID, CodeInvalidRequest, fmt.Sprintf("unsupported jsonrpc version %q", msg.JSONRPC))
	}

	if msg.IsNotification() {
		s.logger.Debug("mcp: notification", slog.String("method", msg.Method))
		return nil
	}

	result, rpcErr := s.dispatch(ctx, msg)
	if rpcErr != nil {
		return &Message{JSONRPC: jsonRPCVersion, ID: msg.ID, Error: rpcErr}
	}
	data, err := json.Marshal(result)
	if err != nil {
		s.logger.Error("mcp: encode result failed", slog.String("method", msg.Method), slog.Any("error", err))
		return errorResponse(msg.ID, CodeInternalError, "encode result: "+err.Error())
	}
	return &Message{JSONRPC: jsonRPCVersion, ID: msg.ID, Result: data}
}

func (s *Server) dispatch(ctx context.Context, msg Message) (any, *RPCError) {
	switch msg.Method {
	case "initialize":
		return s.initialize(msg.Params)
	case "ping":
		return map[string]any{}, nil
	case "tools/list":
		return s.listTools()
	case "tools/call":
		return s.callTool(ctx, msg.Params)
	default:
		return nil, &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", msg.Method)}
	}
}

func (s *Server) initialize(raw json.RawMessage) (any, *RPCError) {
	var params InitializeParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, &RPCError{Code: CodeInvalidParams, Message: "invalid initialize params: " + err.Error()}
		}
	}
	version := DefaultProtocolVersion
	if slices.Contains(supportedProtocolVersions, params.ProtocolVersion) {
		version = params.ProtocolVersion
	}
	s.logger.Info("mcp: session initialized",
		slog.String("client", params.ClientInfo.Name),
		slog.String("protocol_version", version),
	)
	return InitializeResult{
		ProtocolVersion: version,
		Capabilities: map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		ServerInfo:   Implementation{Name: s.cfg.Name, Version: s.cfg.Version},
		Instructions: s.cfg.Instructions,
	}, nil
}

func (s *Server) listTools() (any, *RPCError) {
	descriptors := s.cfg.Tools.List()
	tools := make([]Tool, 0, len(descriptors))
	for _, d := range descriptors {
		input, err := tool.MarshalInputSchema(d)
		if err != nil {
			return nil, &RPCError{Code: CodeInternalError, Message: fmt.Sprintf("encode input schema for %q: %v", d.Name, err)}
		}
		output, err := json.Marshal(wrappedOutputSchema(d))
		if err != nil {
			return nil, &RPCError{Code: CodeInternalError, Message: fmt.Sprintf("encode output schema for %q: %v", d.Name, err)}
		}
		tools = append(tools, Tool{
			Name:         d.Name,
			Description:  d.Description,
			InputSchema:  input,
			OutputSchema: output,
		})
	}
	return ToolsListResult{Tools: tools}, nil
}

// wrappedOutputSchema describes structuredContent, which always carries the
// handler value under "result".
func wrappedOutputSchema(d tool.Descriptor) *jsonschema.Schema {
	properties := orderedmap.New[string, *jsonschema.Schema]()
	properties.Set("result", tool.OutputSchema(d))
	return &jsonschema.Schema{
		Type:       "object",
		Properties: properties,
		Required:   []string{"result"},
	}
}

func (s *Server) callTool(ctx context.Context, raw json.RawMessage) (any, *RPCError) {
	var params ToolsCallParams
	if len(raw) == 0 {
		return nil, &RPCError{Code: CodeInvalidParams, Message: "tools/call requires params"}
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &RPCError{Code: CodeInvalidParams, Message: "invalid tools/call params: " + err.Error()}
	}
	if strings.TrimSpace(params.Name) == "" {
		return nil, &RPCError{Code: CodeInvalidParams, Message: "tools/call requires a tool name"}
	}

	result, err := s.cfg.Tools.Invoke(ctx, params.Name, params.Arguments)
	if err != nil {
		return s.callFailure(params.Name, err)
	}

	out, err := callResult(result)
	if err != nil {
		return nil, &RPCError{Code: CodeInternalError, Message: fmt.Sprintf("encode %q result: %v", params.Name, err)}
	}
	return out, nil
}

func (s *Server) callFailure(name string, err error) (any, *RPCError) {
	toolErr, ok := tool.AsToolError(err)
	if ok && (toolErr.Code == tool.ToolErrorCodeUnknownTool || toolErr.Code == tool.ToolErrorCodeInvalidArguments) {
		data, _ := json.Marshal(toolErr)
		return nil, &RPCError{Code: CodeInvalidParams, Message: toolErr.Error(), Data: data}
	}

	s.logger.Error("mcp: tool invocation failed", slog.String("tool", name), slog.Any("error", err))
	return ToolsCallResult{
		Content: []ContentBlock{{Type: "text", Text: err.Error()}},
		IsError: true,
	}, nil
}

func callResult(result tool.Result) (ToolsCallResult, error) {
	text, err := renderText(result.Value)
	if err != nil {
		return ToolsCallResult{}, err
	}
	return ToolsCallResult{
		Content:           []ContentBlock{{Type: "text", Text: text}},
		StructuredContent: map[string]any{"result": result.Value},
		IsError:           result.IsError,
	}, nil
}

func renderText(value any) (string, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func errorResponse(id json.RawMessage, code int, message string) *Message {
	if !hasID(id) {
		id = json.RawMessage("null")
	}
	return &Message{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}
