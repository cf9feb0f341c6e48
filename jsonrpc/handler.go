package jsonrpc

import "context"

// Handler defines the interface for handling JSON-RPC requests
type Handler interface {
	Handle(ctx context.Context, request Request) Response
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, request Request) Response

// Handle calls f(ctx, request)
func (f HandlerFunc) Handle(ctx context.Context, request Request) Response {
	return f(ctx, request)
}
