package jsonrpc

import "encoding/json"

// Response represents a JSON-RPC response object.
// Exactly one of Result and Error is set.
type Response struct {
	Version string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// NewResponse creates a new Response object.
// A result that cannot be encoded becomes an internal error.
func NewResponse(id interface{}, result interface{}, err *Error) Response {
	respID, _ := NewID(id)

	resp := Response{
		Version: Version,
		ID:      respID,
	}
	if err != nil {
		resp.Error = err
		return resp
	}

	switch v := result.(type) {
	case json.RawMessage:
		if len(v) == 0 {
			v = json.RawMessage("null")
		}
		resp.Result = v
	default:
		data, merr := json.Marshal(v)
		if merr != nil {
			resp.Error = NewErrorf(ErrInternal, "encoding result: %v", merr)
			return resp
		}
		resp.Result = data
	}
	return resp
}

// IsWellFormed reports whether the response carries exactly one of result or error
func (r Response) IsWellFormed() bool {
	return (len(r.Result) > 0) != (r.Error != nil)
}
