package backend

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mattt/mcp-bridge/mcp"
)

const (
	// DefaultRequestTimeout bounds every request sent to a backend
	DefaultRequestTimeout = 30 * time.Second

	// shutdownGrace bounds the advisory notification sent on Close
	shutdownGrace = 100 * time.Millisecond

	// drainTimeout bounds reading output left open after the process exits
	drainTimeout = time.Second

	// maxLineSize bounds a single line of backend output
	maxLineSize = 16 * 1024 * 1024
)

type options struct {
	logger         *slog.Logger
	requestTimeout time.Duration
	clientInfo     mcp.Implementation
	stderr         io.Writer
}

func defaultOptions() options {
	return options{
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		requestTimeout: DefaultRequestTimeout,
		clientInfo:     mcp.Implementation{Name: "mcp-bridge", Version: "dev"},
		stderr:         os.Stderr,
	}
}

// Option configures a Connection
type Option func(*options)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRequestTimeout sets the deadline applied to each request.
// Non-positive values keep the default.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.requestTimeout = timeout
		}
	}
}

// WithClientInfo sets the implementation sent during initialize
func WithClientInfo(name, version string) Option {
	return func(o *options) {
		o.clientInfo = mcp.Implementation{Name: name, Version: version}
	}
}

// WithStderr sets where the backend's stderr is written
func WithStderr(w io.Writer) Option {
	return func(o *options) {
		if w == nil {
			w = io.Discard
		}
		o.stderr = w
	}
}
