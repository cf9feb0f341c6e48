package jsonrpc

import "encoding/json"

// Version is the JSON-RPC protocol version carried by every message
const Version = "2.0"

// Request represents a JSON-RPC request object.
// A request without an ID is a notification.
type Request struct {
	Version string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// NewRequest creates a new Request object
func NewRequest(method string, params json.RawMessage, id interface{}) Request {
	req := Request{
		Version: Version,
		Method:  method,
		Params:  params,
	}
	if reqID, err := NewID(id); err == nil && !reqID.IsNil() {
		req.ID = &reqID
	}
	return req
}

// NewNotification creates a Request without an ID
func NewNotification(method string, params json.RawMessage) Request {
	return Request{
		Version: Version,
		Method:  method,
		Params:  params,
	}
}

// IsNotification reports whether the request expects no response
func (r Request) IsNotification() bool {
	return r.ID == nil || r.ID.IsNil()
}
