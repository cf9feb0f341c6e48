package jsonrpc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    interface{}
		wantErr bool
	}{
		{name: "integer", input: `7`, want: int64(7)},
		{name: "integral float", input: `7.0`, want: int64(7)},
		{name: "string", input: `"abc"`, want: "abc"},
		{name: "null", input: `null`, want: nil},
		{name: "fraction", input: `1.5`, wantErr: true},
		{name: "object", input: `{}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id ID
			err := json.Unmarshal([]byte(tt.input), &id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id.Value())
		})
	}
}

func TestRequest_Notification(t *testing.T) {
	var req Request
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`), &req))
	assert.True(t, req.IsNotification())

	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":3,"method":"ping"}`), &req))
	assert.False(t, req.IsNotification())
	assert.True(t, req.ID.Equal(3))

	data, err := json.Marshal(NewNotification("notifications/cancelled", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"notifications/cancelled"}`, string(data))
}

func TestNewResponse(t *testing.T) {
	resp := NewResponse(1, map[string]interface{}{}, nil)
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Equal(t, `{"jsonrpc":"2.0","id":1,"result":{}}`, string(data))
	assert.True(t, resp.IsWellFormed())

	resp = NewResponse(nil, nil, NewError(ErrParse, nil))
	data, err = json.Marshal(resp)
	require.NoError(t, err)
	assert.Equal(t, `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`, string(data))

	resp = NewResponse("x", json.RawMessage(`{"content":[]}`), nil)
	assert.Equal(t, `{"content":[]}`, string(resp.Result))
}

func TestNewErrorf(t *testing.T) {
	err := NewErrorf(ErrMethodNotFound, "Method not found: %s", "nope")
	assert.Equal(t, ErrMethodNotFound, err.Code)
	assert.Equal(t, "-32601: Method not found: nope", err.Error())
	assert.Equal(t, "Server error", StandardMessage(-32050))
}

func TestStandardMessage(t *testing.T) {
	tests := []struct {
		code        ErrorCode
		want        string
		serverError bool
	}{
		{ErrParse, "Parse error", false},
		{ErrInvalidRequest, "Invalid Request", false},
		{ErrMethodNotFound, "Method not found", false},
		{ErrInvalidParams, "Invalid params", false},
		{ErrInternal, "Internal error", false},
		{ErrServer, "Server error", true},
		{-32099, "Server error", true},
		{-32100, "Unknown error", false},
		{1, "Unknown error", false},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, StandardMessage(tt.code))
			assert.Equal(t, tt.serverError, tt.code.IsServerError())
			assert.Equal(t, tt.want, NewError(tt.code, nil).Message)
		})
	}
}
