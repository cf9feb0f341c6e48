package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattt/mcp-bridge/jsonrpc"
)

type mockTools struct {
	tools        []Tool
	callToolFunc func(ctx context.Context, name string, args map[string]interface{}) (*ToolCallResponse, error)
	names        []string
}

func (m *mockTools) ListAllTools() []Tool {
	return m.tools
}

func (m *mockTools) CallTool(ctx context.Context, name string, args map[string]interface{}) (*ToolCallResponse, error) {
	if m.callToolFunc == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return m.callToolFunc(ctx, name, args)
}

func (m *mockTools) ConnectedNames() []string {
	return m.names
}

func request(t *testing.T, method string, params interface{}, id interface{}) jsonrpc.Request {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		require.NoError(t, err)
		raw = data
	}
	return jsonrpc.NewRequest(method, raw, id)
}

func TestRouter_Initialize(t *testing.T) {
	router := NewRouter(&mockTools{}, WithServerInfo("mcp-bridge", "1.2.3"))

	resp := router.Handle(context.Background(), request(t, MethodInitialize, map[string]interface{}{
		"protocolVersion": Version,
		"capabilities":    map[string]interface{}{},
		"clientInfo":      map[string]interface{}{"name": "client", "version": "0.1"},
	}, 1))
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{
		"protocolVersion": "2024-11-05",
		"capabilities": {"tools": {"listChanged": false}},
		"serverInfo": {"name": "mcp-bridge", "version": "1.2.3"}
	}`, string(resp.Result))
}

func TestRouter_SimpleMethods(t *testing.T) {
	router := NewRouter(&mockTools{})

	tests := []struct {
		name     string
		method   string
		wantErr  jsonrpc.ErrorCode
		wantBody string
	}{
		{name: "ping", method: MethodPing, wantBody: `{}`},
		{name: "initialized", method: MethodInitialized, wantBody: `{}`},
		{name: "empty tools list", method: MethodToolsList, wantBody: `{"tools":[]}`},
		{name: "unknown method", method: "resources/list", wantErr: jsonrpc.ErrMethodNotFound},
		{name: "prompts are not proxied", method: "prompts/list", wantErr: jsonrpc.ErrMethodNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := router.Handle(context.Background(), request(t, tt.method, nil, 7))
			assert.True(t, resp.ID.Equal(7))
			assert.True(t, resp.IsWellFormed())
			if tt.wantErr != 0 {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tt.wantErr, resp.Error.Code)
				assert.Equal(t, "Method not found: "+tt.method, resp.Error.Message)
				return
			}
			require.Nil(t, resp.Error)
			assert.JSONEq(t, tt.wantBody, string(resp.Result))
		})
	}
}

func TestRouter_InvalidVersion(t *testing.T) {
	router := NewRouter(&mockTools{})

	req := request(t, MethodPing, nil, 1)
	req.Version = "1.0"
	resp := router.Handle(context.Background(), req)
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.ErrInvalidRequest, resp.Error.Code)
}

func TestRouter_ToolsList(t *testing.T) {
	tools := &mockTools{tools: []Tool{
		{Name: "alpha__echo", Description: "[alpha] Echo input", InputSchema: json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}}}`)},
		{Name: "beta__noop"},
	}}
	router := NewRouter(tools)

	resp := router.Handle(context.Background(), request(t, MethodToolsList, nil, 1))
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"tools":[
		{"name":"alpha__echo","description":"[alpha] Echo input","inputSchema":{"type":"object","properties":{"text":{"type":"string"}}}},
		{"name":"beta__noop","inputSchema":{"type":"object"}}
	]}`, string(resp.Result))
}

func TestRouter_ToolsCall(t *testing.T) {
	raw := json.RawMessage(`{"content":[{"type":"text","text":"hi"}],"isError":false,"_meta":{"x":1}}`)

	tests := []struct {
		name     string
		params   interface{}
		call     func(ctx context.Context, name string, args map[string]interface{}) (*ToolCallResponse, error)
		wantErr  jsonrpc.ErrorCode
		wantBody string
	}{
		{
			name:   "raw result is returned verbatim",
			params: map[string]interface{}{"name": "alpha__echo", "arguments": map[string]interface{}{"text": "hi"}},
			call: func(_ context.Context, name string, args map[string]interface{}) (*ToolCallResponse, error) {
				if name != "alpha__echo" || args["text"] != "hi" {
					return nil, errors.New("unexpected call")
				}
				return ParseToolCallResponse(raw)
			},
			wantBody: string(raw),
		},
		{
			name:   "arguments default to empty object",
			params: map[string]interface{}{"name": "alpha__echo"},
			call: func(_ context.Context, _ string, args map[string]interface{}) (*ToolCallResponse, error) {
				if args == nil || len(args) != 0 {
					return nil, errors.New("expected empty arguments")
				}
				return &ToolCallResponse{Content: []Content{NewTextContent("ok")}}, nil
			},
			wantBody: `{"content":[{"type":"text","text":"ok"}]}`,
		},
		{
			name:    "missing params",
			wantErr: jsonrpc.ErrInvalidParams,
		},
		{
			name:    "missing name",
			params:  map[string]interface{}{"arguments": map[string]interface{}{}},
			wantErr: jsonrpc.ErrInvalidParams,
		},
		{
			name:    "arguments must be an object",
			params:  map[string]interface{}{"name": "alpha__echo", "arguments": []int{1, 2}},
			wantErr: jsonrpc.ErrInvalidParams,
		},
		{
			name:   "invalid arguments",
			params: map[string]interface{}{"name": "alpha__echo", "arguments": map[string]interface{}{}},
			call: func(context.Context, string, map[string]interface{}) (*ToolCallResponse, error) {
				return nil, fmt.Errorf("%w: missing properties: [\"text\"]", ErrInvalidArguments)
			},
			wantErr: jsonrpc.ErrInvalidParams,
		},
		{
			name:   "backend failure",
			params: map[string]interface{}{"name": "alpha__echo", "arguments": map[string]interface{}{}},
			call: func(context.Context, string, map[string]interface{}) (*ToolCallResponse, error) {
				return nil, errors.New("backend exploded")
			},
			wantErr: jsonrpc.ErrInternal,
		},
		{
			name:    "unknown tool",
			params:  map[string]interface{}{"name": "nope", "arguments": map[string]interface{}{}},
			wantErr: jsonrpc.ErrInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(&mockTools{callToolFunc: tt.call})
			resp := router.Handle(context.Background(), request(t, MethodToolsCall, tt.params, 3))
			assert.True(t, resp.ID.Equal(3))
			if tt.wantErr != 0 {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tt.wantErr, resp.Error.Code)
				return
			}
			require.Nil(t, resp.Error)
			assert.JSONEq(t, tt.wantBody, string(resp.Result))
		})
	}
}

func TestRouter_BackendErrorMessage(t *testing.T) {
	router := NewRouter(&mockTools{callToolFunc: func(context.Context, string, map[string]interface{}) (*ToolCallResponse, error) {
		return nil, errors.New("request timed out")
	}})

	resp := router.Handle(context.Background(), request(t, MethodToolsCall, map[string]interface{}{"name": "a__b"}, "abc"))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "request timed out", resp.Error.Message)
	assert.True(t, resp.ID.Equal("abc"))
}
