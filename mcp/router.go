package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/mattt/mcp-bridge/jsonrpc"
)

// ErrInvalidArguments is returned by a ToolProvider when call arguments
// do not satisfy the tool's input schema.
var ErrInvalidArguments = errors.New("invalid arguments")

// ToolProvider is the aggregated tool catalog a Router serves
type ToolProvider interface {
	ListAllTools() []Tool
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*ToolCallResponse, error)
}

// Router answers MCP requests on behalf of every connected backend.
// It owns the handshake and never forwards it.
type Router struct {
	tools      ToolProvider
	serverInfo Implementation
	logger     *slog.Logger
}

// RouterOption configures a Router
type RouterOption func(*Router)

// WithServerInfo sets the implementation reported in the initialize result
func WithServerInfo(name, version string) RouterOption {
	return func(r *Router) {
		r.serverInfo = Implementation{Name: name, Version: version}
	}
}

// WithRouterLogger sets the logger
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// NewRouter creates a Router over tools
func NewRouter(tools ToolProvider, opts ...RouterOption) *Router {
	r := &Router{
		tools:      tools,
		serverInfo: Implementation{Name: "mcp-bridge", Version: "dev"},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ jsonrpc.Handler = (*Router)(nil)

// Handle processes a single JSON-RPC request and returns a response
func (r *Router) Handle(ctx context.Context, request jsonrpc.Request) jsonrpc.Response {
	if request.Version != jsonrpc.Version {
		return jsonrpc.NewResponse(request.ID, nil, jsonrpc.NewErrorf(jsonrpc.ErrInvalidRequest, "Invalid Request: jsonrpc must be %q", jsonrpc.Version))
	}

	switch request.Method {
	case MethodInitialize:
		return r.handleInitialize(request)
	case MethodInitialized, MethodPing:
		return jsonrpc.NewResponse(request.ID, struct{}{}, nil)
	case MethodToolsList:
		return jsonrpc.NewResponse(request.ID, ToolsListResponse{Tools: r.listTools()}, nil)
	case MethodToolsCall:
		return r.handleToolsCall(ctx, request)
	default:
		return jsonrpc.NewResponse(request.ID, nil, jsonrpc.NewErrorf(jsonrpc.ErrMethodNotFound, "Method not found: %s", request.Method))
	}
}

func (r *Router) handleInitialize(request jsonrpc.Request) jsonrpc.Response {
	var params InitializeRequest
	if len(request.Params) > 0 {
		// Client parameters are informational only
		if err := json.Unmarshal(request.Params, &params); err == nil {
			r.logger.Debug("client initialized",
				"client", params.ClientInfo.Name,
				"version", params.ClientInfo.Version,
				"protocol", params.ProtocolVersion)
		}
	}

	return jsonrpc.NewResponse(request.ID, InitializeResponse{
		ProtocolVersion: Version,
		Capabilities: ServerCapabilities{
			Tools: &ToolsCapability{ListChanged: false},
		},
		ServerInfo: r.serverInfo,
	}, nil)
}

func (r *Router) listTools() []Tool {
	tools := r.tools.ListAllTools()
	if tools == nil {
		tools = []Tool{}
	}
	return tools
}

func (r *Router) handleToolsCall(ctx context.Context, request jsonrpc.Request) jsonrpc.Response {
	params, rpcErr := parseToolCallParams(request.Params)
	if rpcErr != nil {
		return jsonrpc.NewResponse(request.ID, nil, rpcErr)
	}

	result, err := r.tools.CallTool(ctx, params.Name, params.Arguments)
	if err != nil {
		r.logger.Debug("tool call failed", "tool", params.Name, "error", err)
		if errors.Is(err, ErrInvalidArguments) {
			return jsonrpc.NewResponse(request.ID, nil, jsonrpc.NewErrorf(jsonrpc.ErrInvalidParams, "%v", err))
		}
		return jsonrpc.NewResponse(request.ID, nil, jsonrpc.NewErrorf(jsonrpc.ErrInternal, "%v", err))
	}

	if raw := result.Raw(); len(raw) > 0 {
		return jsonrpc.NewResponse(request.ID, raw, nil)
	}
	return jsonrpc.NewResponse(request.ID, result, nil)
}

// parseToolCallParams decodes tools/call params, defaulting arguments to an empty object
func parseToolCallParams(data json.RawMessage) (ToolCallRequest, *jsonrpc.Error) {
	var shape struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if len(data) == 0 {
		return ToolCallRequest{}, jsonrpc.NewErrorf(jsonrpc.ErrInvalidParams, "Invalid params: missing params")
	}
	if err := json.Unmarshal(data, &shape); err != nil {
		return ToolCallRequest{}, jsonrpc.NewErrorf(jsonrpc.ErrInvalidParams, "Invalid params: %v", err)
	}
	if shape.Name == "" {
		return ToolCallRequest{}, jsonrpc.NewErrorf(jsonrpc.ErrInvalidParams, "Invalid params: missing tool name")
	}

	args := map[string]interface{}{}
	if trimmed := bytes.TrimSpace(shape.Arguments); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &args); err != nil || args == nil {
			return ToolCallRequest{}, jsonrpc.NewErrorf(jsonrpc.ErrInvalidParams, "Invalid params: arguments must be an object")
		}
	}

	return ToolCallRequest{Name: shape.Name, Arguments: args}, nil
}
