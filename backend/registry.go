package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"golang.org/x/sync/errgroup"

	"github.com/mattt/mcp-bridge/internal/config"
	"github.com/mattt/mcp-bridge/mcp"
)

// DefaultConnectConcurrency bounds how many backends ConnectAll starts at once
const DefaultConnectConcurrency = 8

// Registry manages the set of connected backends.
// A backend is present exactly while it is connected.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection

	connOpts    []Option
	logger      *slog.Logger
	validate    bool
	concurrency int

	schemaMu sync.Mutex
	schemas  map[string]*jsonschema.Resolved
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithConnectionOptions sets the options applied to every spawned connection
func WithConnectionOptions(opts ...Option) RegistryOption {
	return func(r *Registry) {
		r.connOpts = append(r.connOpts, opts...)
	}
}

// WithRegistryLogger sets the logger
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithArgumentValidation checks call arguments against each tool's input schema
func WithArgumentValidation(enabled bool) RegistryOption {
	return func(r *Registry) {
		r.validate = enabled
	}
}

// WithConnectConcurrency bounds parallel connects in ConnectAll
func WithConnectConcurrency(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		connections: make(map[string]*Connection),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		concurrency: DefaultConnectConcurrency,
		schemas:     make(map[string]*jsonschema.Resolved),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ mcp.Backends = (*Registry)(nil)

// ConnectAll connects every enabled server.
// Failures are logged and skipped.
func (r *Registry) ConnectAll(ctx context.Context, servers []config.Server) {
	var g errgroup.Group
	g.SetLimit(r.concurrency)

	for _, server := range servers {
		if !server.Enabled {
			r.logger.Debug("skipping disabled backend", "backend", server.Name)
			continue
		}
		g.Go(func() error {
			if err := r.Connect(ctx, server); err != nil {
				r.logger.Error("failed to connect backend", "backend", server.Name, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	r.logger.Info("backends connected", "count", len(r.ConnectedNames()))
}

// Connect spawns and handshakes with server, then registers it.
// Nothing is registered on failure.
func (r *Registry) Connect(ctx context.Context, server config.Server) (err error) {
	if err := mcp.ValidateBackendName(server.Name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBackendName, err)
	}
	if r.isConnected(server.Name) {
		return fmt.Errorf("%w: %s", ErrBackendExists, server.Name)
	}

	opts := append([]Option{WithLogger(r.logger)}, r.connOpts...)
	conn, err := Spawn(ctx, server, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			conn.Close()
		}
	}()

	if _, err := conn.Initialize(ctx); err != nil {
		return err
	}
	if _, err := conn.ListTools(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	if _, exists := r.connections[server.Name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBackendExists, server.Name)
	}
	r.connections[server.Name] = conn
	r.mu.Unlock()

	r.forgetSchemas(server.Name)
	r.logger.Info("connected backend", "backend", server.Name, "tools", len(conn.Tools()))
	return nil
}

// Disconnect removes and closes the named backend. Unknown names are ignored.
func (r *Registry) Disconnect(name string) error {
	r.mu.Lock()
	conn, ok := r.connections[name]
	delete(r.connections, name)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	r.forgetSchemas(name)
	return conn.Close()
}

// ShutdownAll closes every connection and empties the registry
func (r *Registry) ShutdownAll() {
	r.mu.Lock()
	conns := r.connections
	r.connections = make(map[string]*Connection)
	r.mu.Unlock()

	var g errgroup.Group
	for name, conn := range conns {
		g.Go(func() error {
			if err := conn.Close(); err != nil {
				r.logger.Warn("error closing backend", "backend", name, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	r.schemaMu.Lock()
	clear(r.schemas)
	r.schemaMu.Unlock()
}

// ConnectedNames returns the names of connected backends in sorted order
func (r *Registry) ConnectedNames() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.connections))
	for name := range r.connections {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Connection returns the named connection
func (r *Registry) Connection(name string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[name]
	return conn, ok
}

// ListAllTools returns every backend's tools under namespaced names,
// ordered by backend name and then by each backend's listing order.
func (r *Registry) ListAllTools() []mcp.Tool {
	tools := []mcp.Tool{}
	for _, conn := range r.snapshot() {
		for _, tool := range conn.Tools() {
			namespaced := mcp.Tool{
				Name:        mcp.NamespaceTool(conn.Name(), tool.Name),
				InputSchema: tool.InputSchema,
			}
			if tool.Description != "" {
				namespaced.Description = fmt.Sprintf("[%s] %s", conn.Name(), tool.Description)
			}
			tools = append(tools, namespaced)
		}
	}
	return tools
}

// CallTool routes a namespaced tool call to its backend
func (r *Registry) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.ToolCallResponse, error) {
	backendName, toolName, ok := mcp.ParseNamespacedTool(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidToolName, name)
	}

	conn, ok := r.Connection(backendName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBackendNotFound, backendName)
	}

	if args == nil {
		args = map[string]interface{}{}
	}
	if r.validate {
		if err := r.validateArguments(conn, toolName, args); err != nil {
			return nil, err
		}
	}

	return conn.CallTool(ctx, toolName, args)
}

// Status describes one connected backend
type Status struct {
	Name            string              `json:"name"`
	Server          *mcp.Implementation `json:"server,omitempty"`
	ProtocolVersion string              `json:"protocolVersion,omitempty"`
	Tools           int                 `json:"tools"`
	Running         bool                `json:"running"`
	State           State               `json:"state"`
}

// Status reports every connected backend, sorted by name
func (r *Registry) Status() []Status {
	conns := r.snapshot()
	statuses := make([]Status, 0, len(conns))
	for _, conn := range conns {
		status := Status{
			Name:    conn.Name(),
			Tools:   len(conn.Tools()),
			Running: conn.IsRunning(),
			State:   conn.State(),
		}
		if info := conn.ServerInfo(); info != nil {
			server := info.ServerInfo
			status.Server = &server
			status.ProtocolVersion = info.ProtocolVersion
		}
		statuses = append(statuses, status)
	}
	return statuses
}

func (r *Registry) isConnected(name string) bool {
	_, ok := r.Connection(name)
	return ok
}

// snapshot returns the current connections sorted by name
func (r *Registry) snapshot() []*Connection {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	sort.Slice(conns, func(i, j int) bool { return conns[i].Name() < conns[j].Name() })
	return conns
}

// validateArguments checks args against the tool's cached input schema.
// Unknown tools and unusable schemas are not validated.
func (r *Registry) validateArguments(conn *Connection, toolName string, args map[string]interface{}) error {
	resolved := r.resolvedSchema(conn, toolName)
	if resolved == nil {
		return nil
	}

	// Round-trip through JSON so numbers and nested values have the shapes the validator expects
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	var instance map[string]interface{}
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	if err := resolved.Validate(instance); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidArguments, mcp.NamespaceTool(conn.Name(), toolName), err)
	}
	return nil
}

func (r *Registry) resolvedSchema(conn *Connection, toolName string) *jsonschema.Resolved {
	key := mcp.NamespaceTool(conn.Name(), toolName)

	r.schemaMu.Lock()
	defer r.schemaMu.Unlock()

	if resolved, ok := r.schemas[key]; ok {
		return resolved
	}

	var resolved *jsonschema.Resolved
	for _, tool := range conn.Tools() {
		if tool.Name != toolName || len(tool.InputSchema) == 0 {
			continue
		}
		var schema jsonschema.Schema
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			r.logger.Debug("skipping validation for undecodable schema", "tool", key, "error", err)
			break
		}
		rs, err := schema.Resolve(nil)
		if err != nil {
			r.logger.Debug("skipping validation for unresolvable schema", "tool", key, "error", err)
			break
		}
		resolved = rs
		break
	}

	r.schemas[key] = resolved
	return resolved
}

func (r *Registry) forgetSchemas(backend string) {
	prefix := backend + mcp.Separator

	r.schemaMu.Lock()
	defer r.schemaMu.Unlock()
	for key := range r.schemas {
		if strings.HasPrefix(key, prefix) {
			delete(r.schemas, key)
		}
	}
}
