package backend

import (
	"errors"
	"fmt"

	"github.com/mattt/mcp-bridge/mcp"
)

var (
	// ErrSpawn is returned when a backend process cannot be started
	ErrSpawn = errors.New("failed to spawn backend")
	// ErrHandshake is returned when initialize or the first tools/list fails
	ErrHandshake = errors.New("handshake failed")
	// ErrTimeout is returned when a request outlives its deadline
	ErrTimeout = errors.New("request timed out")
	// ErrConnectionClosed is returned once the backend's output stream has ended
	ErrConnectionClosed = errors.New("connection closed")
	// ErrBackendCall is returned for protocol errors and malformed tools/call results
	ErrBackendCall = errors.New("backend call failed")
	// ErrMalformedLine marks output lines that are not JSON-RPC responses. It is only logged.
	ErrMalformedLine = errors.New("malformed line")
	// ErrNotReady is returned for operations the connection's state does not allow
	ErrNotReady = errors.New("connection not ready")

	// ErrInvalidToolName is returned for names without a backend prefix
	ErrInvalidToolName = fmt.Errorf("%w: invalid tool name", mcp.ErrToolNotFound)
	// ErrBackendNotFound is returned when the prefix names no connected backend
	ErrBackendNotFound = fmt.Errorf("%w: backend not connected", mcp.ErrToolNotFound)
	// ErrBackendExists is returned when connecting a name that is already connected
	ErrBackendExists = errors.New("backend already connected")
	// ErrInvalidBackendName is returned for names that cannot be namespaced
	ErrInvalidBackendName = errors.New("invalid backend name")
	// ErrInvalidArguments is returned when arguments fail input schema validation
	ErrInvalidArguments = mcp.ErrInvalidArguments
)
