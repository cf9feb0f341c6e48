package jsonrpc

import "fmt"

// ErrorCode represents a JSON-RPC error code
type ErrorCode int

// JSON-RPC 2.0 error codes as defined in https://www.jsonrpc.org/specification
const (
	// Parse error (-32700)
	// Invalid JSON was received. The bridge sends it for unparseable
	// front-end input, with a null id.
	ErrParse ErrorCode = -32700

	// Invalid Request (-32600)
	// The JSON is not a valid Request object, including a jsonrpc
	// member other than "2.0".
	ErrInvalidRequest ErrorCode = -32600

	// Method not found (-32601)
	// The method does not exist or is not served by the bridge.
	ErrMethodNotFound ErrorCode = -32601

	// Invalid params (-32602)
	// Invalid method parameters, such as a tools/call without a name or
	// with arguments that fail the tool's input schema.
	ErrInvalidParams ErrorCode = -32602

	// Internal error (-32603)
	// Any other failure while handling a request, including a tool call
	// that could not be routed or that the backend rejected.
	ErrInternal ErrorCode = -32603

	// Server error (-32000 to -32099)
	// Reserved for implementation-defined server errors. Backends may
	// return codes in this range, and they are passed on in error text.
	ErrServer ErrorCode = -32000
)

// standardMessages maps error codes to their standard messages
var standardMessages = map[ErrorCode]string{
	ErrParse:          "Parse error",
	ErrInvalidRequest: "Invalid Request",
	ErrMethodNotFound: "Method not found",
	ErrInvalidParams:  "Invalid params",
	ErrInternal:       "Internal error",
}

// Error represents a JSON-RPC error object
type Error struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

var _ error = &Error{}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// NewError creates a new JSON-RPC error with the given code and optional data.
// The message is the standard text for the code.
func NewError(code ErrorCode, data interface{}) *Error {
	return &Error{
		Code:    code,
		Message: StandardMessage(code),
		Data:    data,
	}
}

// NewErrorf creates a JSON-RPC error with a formatted message in place of the standard one.
func NewErrorf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// StandardMessage returns the JSON-RPC 2.0 message for code.
func StandardMessage(code ErrorCode) string {
	if msg, ok := standardMessages[code]; ok {
		return msg
	}
	if code.IsServerError() {
		return "Server error"
	}
	return "Unknown error"
}

// IsServerError reports whether code is in the implementation-defined range
func (code ErrorCode) IsServerError() bool {
	return code >= -32099 && code <= ErrServer
}
