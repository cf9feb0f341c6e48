package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattt/mcp-bridge/internal"
	"github.com/mattt/mcp-bridge/internal/config"
	"github.com/mattt/mcp-bridge/jsonrpc"
	"github.com/mattt/mcp-bridge/mcp"
)

// State is the lifecycle stage of a Connection
type State int32

const (
	StateSpawned State = iota
	StateInitializing
	StateReady
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateSpawned:
		return "spawned"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Connection is a live session with one backend process speaking
// newline-delimited JSON-RPC over its stdin and stdout.
type Connection struct {
	name   string
	opts   options
	logger *slog.Logger

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	writeMu sync.Mutex
	writer  *bufio.Writer

	pending *pendingTable
	nextID  atomic.Int64
	state   atomic.Int32

	// exited is closed once the process has been reaped
	exited chan struct{}
	// readerDone is closed when the reader goroutine returns
	readerDone chan struct{}

	mu         sync.RWMutex
	serverInfo *mcp.InitializeResponse
	tools      []mcp.Tool

	cleanup   runtime.Cleanup
	closeOnce sync.Once
	closeErr  error
}

// Spawn starts the backend process described by server.
// The returned connection still needs Initialize and ListTools before tools can be called.
func Spawn(ctx context.Context, server config.Server, opts ...Option) (_ *Connection, err error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With("backend", server.Name)

	if server.Command == "" {
		return nil, fmt.Errorf("%w: %s: command is required", ErrSpawn, server.Name)
	}

	env, err := internal.ResolveEnv(ctx, server.Env)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSpawn, server.Name, err)
	}

	cmd := exec.Command(server.Command, server.Args...)
	cmd.Env = append(os.Environ(), internal.EnvList(env)...)
	cmd.Stderr = o.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: stdin pipe: %v", ErrSpawn, server.Name, err)
	}

	// The child writes straight into the pipe, so the reader sees EOF as soon
	// as the child closes its stdout, whether or not it has exited.
	stdoutReader, stdoutWriter, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: stdout pipe: %v", ErrSpawn, server.Name, err)
	}
	cmd.Stdout = stdoutWriter

	err = cmd.Start()
	stdoutWriter.Close()
	if err != nil {
		stdoutReader.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrSpawn, server.Name, err)
	}
	defer func() {
		if err != nil {
			_ = cmd.Process.Kill()
		}
	}()

	c := &Connection{
		name:       server.Name,
		opts:       o,
		logger:     logger,
		cmd:        cmd,
		stdin:      stdin,
		writer:     bufio.NewWriter(stdin),
		pending:    newPendingTable(),
		exited:     make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	c.state.Store(int32(StateSpawned))

	// Neither goroutine may reference c, so an abandoned connection stays collectable.
	go waitProcess(cmd, stdoutReader, c.exited, c.readerDone, logger)
	go readLoop(stdoutReader, c.pending, c.readerDone, logger)

	c.cleanup = runtime.AddCleanup(c, func(p *os.Process) {
		_ = p.Kill()
	}, cmd.Process)

	logger.Debug("backend spawned", "command", server.Command, "args", server.Args, "pid", cmd.Process.Pid)
	return c, nil
}

// waitProcess reaps the process, then closes stdout once the reader has
// drained it. Output held open by a grandchild is cut off after drainTimeout.
func waitProcess(cmd *exec.Cmd, stdout *os.File, exited chan<- struct{}, readerDone <-chan struct{}, logger *slog.Logger) {
	err := cmd.Wait()
	close(exited)

	if err != nil {
		logger.Info("backend exited", "error", err)
	} else {
		logger.Debug("backend exited")
	}

	select {
	case <-readerDone:
	case <-time.After(drainTimeout):
		logger.Debug("backend output still open after exit")
	}
	stdout.Close()
}

// readLoop delivers each response line to its pending slot.
// When the stream ends every pending request fails with ErrConnectionClosed.
func readLoop(r io.Reader, pending *pendingTable, done chan<- struct{}, logger *slog.Logger) {
	defer close(done)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var msg struct {
			ID     *jsonrpc.ID     `json:"id"`
			Method string          `json:"method"`
			Result json.RawMessage `json:"result"`
			Error  *jsonrpc.Error  `json:"error"`
		}
		if err := json.Unmarshal(line, &msg); err != nil {
			logger.Warn("dropping backend output", "error", fmt.Errorf("%w: %v", ErrMalformedLine, err))
			continue
		}
		if msg.Method != "" {
			// Server-initiated requests and notifications are not proxied
			logger.Debug("ignoring backend message", "method", msg.Method)
			continue
		}
		if len(msg.Result) == 0 && msg.Error == nil {
			logger.Warn("dropping backend output", "error", fmt.Errorf("%w: neither result nor error", ErrMalformedLine))
			continue
		}

		var id int64
		var ok bool
		if msg.ID != nil {
			id, ok = msg.ID.Int64()
		}
		if !ok {
			logger.Debug("dropping response without numeric id")
			continue
		}

		rep := reply{result: msg.Result}
		if msg.Error != nil {
			rep = reply{err: msg.Error}
		}
		if !pending.fulfill(id, rep) {
			logger.Debug("dropping response for unknown request", "id", id)
		}
	}

	cause := scanner.Err()
	if cause == nil {
		cause = io.EOF
	}
	pending.close(fmt.Errorf("%w: %v", ErrConnectionClosed, cause))

	// Keep the pipe flowing so the process never blocks on a full stdout
	_, _ = io.Copy(io.Discard, r)
}

// Name returns the backend name
func (c *Connection) Name() string {
	return c.name
}

// State returns the current lifecycle stage
func (c *Connection) State() State {
	if !c.IsRunning() {
		return StateTerminated
	}
	return State(c.state.Load())
}

// IsRunning reports whether the backend process has not yet exited
func (c *Connection) IsRunning() bool {
	select {
	case <-c.exited:
		return false
	default:
		return true
	}
}

// ServerInfo returns the cached initialize result, or nil before the handshake
func (c *Connection) ServerInfo() *mcp.InitializeResponse {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// Tools returns the most recently listed tools
func (c *Connection) Tools() []mcp.Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tools
}

// Initialize performs the initialize handshake and announces initialized
func (c *Connection) Initialize(ctx context.Context) (*mcp.InitializeResponse, error) {
	if !c.state.CompareAndSwap(int32(StateSpawned), int32(StateInitializing)) {
		return nil, fmt.Errorf("%w: cannot initialize %s in state %s", ErrNotReady, c.name, c.State())
	}

	params := mcp.InitializeRequest{
		ProtocolVersion: mcp.Version,
		Capabilities:    mcp.ClientCapabilities{},
		ClientInfo:      c.opts.clientInfo,
	}
	result, err := c.Request(ctx, mcp.MethodInitialize, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: initialize: %w", ErrHandshake, c.name, err)
	}
	if isNull(result) {
		return nil, fmt.Errorf("%w: %s: initialize returned no result", ErrHandshake, c.name)
	}

	var info mcp.InitializeResponse
	if err := json.Unmarshal(result, &info); err != nil {
		return nil, fmt.Errorf("%w: %s: decoding initialize result: %v", ErrHandshake, c.name, err)
	}
	if info.ProtocolVersion == "" {
		return nil, fmt.Errorf("%w: %s: initialize result has no protocolVersion", ErrHandshake, c.name)
	}
	if info.ProtocolVersion != mcp.Version {
		c.logger.Warn("backend negotiated a different protocol version", "version", info.ProtocolVersion)
	}

	c.mu.Lock()
	c.serverInfo = &info
	c.mu.Unlock()

	if err := c.Notify(ctx, mcp.MethodInitialized, nil); err != nil {
		return nil, fmt.Errorf("%w: %s: sending initialized: %w", ErrHandshake, c.name, err)
	}

	c.logger.Info("backend initialized", "server", info.ServerInfo.Name, "version", info.ServerInfo.Version)
	return &info, nil
}

// ListTools fetches the backend's tools and caches them.
// The first successful listing makes the connection ready.
func (c *Connection) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	switch state := c.State(); state {
	case StateInitializing, StateReady:
	default:
		return nil, fmt.Errorf("%w: cannot list tools of %s in state %s", ErrNotReady, c.name, state)
	}

	result, err := c.Request(ctx, mcp.MethodToolsList, struct{}{})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: tools/list: %w", ErrHandshake, c.name, err)
	}

	var list mcp.ToolsListResponse
	if isNull(result) {
		return nil, fmt.Errorf("%w: %s: tools/list returned no result", ErrHandshake, c.name)
	}
	if err := json.Unmarshal(result, &list); err != nil {
		return nil, fmt.Errorf("%w: %s: decoding tools/list result: %v", ErrHandshake, c.name, err)
	}
	for i, tool := range list.Tools {
		if tool.Name == "" {
			return nil, fmt.Errorf("%w: %s: tools[%d] has no name", ErrHandshake, c.name, i)
		}
	}
	if list.Tools == nil {
		list.Tools = []mcp.Tool{}
	}

	c.mu.Lock()
	c.tools = list.Tools
	c.mu.Unlock()
	c.state.CompareAndSwap(int32(StateInitializing), int32(StateReady))

	c.logger.Debug("listed tools", "count", len(list.Tools))
	return list.Tools, nil
}

// CallTool invokes a tool by its backend-local name
func (c *Connection) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.ToolCallResponse, error) {
	if !c.IsRunning() {
		return nil, fmt.Errorf("%w: %s has exited", ErrConnectionClosed, c.name)
	}
	if state := c.State(); state != StateReady {
		return nil, fmt.Errorf("%w: cannot call %s on %s in state %s", ErrNotReady, name, c.name, state)
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	result, err := c.Request(ctx, mcp.MethodToolsCall, mcp.ToolCallRequest{Name: name, Arguments: args})
	if err != nil {
		var rpcErr *jsonrpc.Error
		if errors.As(err, &rpcErr) {
			return nil, fmt.Errorf("%w: %s: %w", ErrBackendCall, name, err)
		}
		return nil, fmt.Errorf("%s: %s: %w", c.name, name, err)
	}

	response, err := mcp.ParseToolCallResponse(result)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBackendCall, name, err)
	}
	return response, nil
}

// Request sends a request and waits for its response.
// A JSON-RPC error from the backend is returned as *jsonrpc.Error.
func (c *Connection) Request(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	slot, err := c.pending.register(id)
	if err != nil {
		return nil, err
	}

	data, err := encodeMessage(method, params, jsonrpc.Int64ID(id))
	if err != nil {
		c.pending.remove(id)
		return nil, err
	}
	if err := c.writeLine(data); err != nil {
		c.pending.remove(id)
		return nil, fmt.Errorf("%w: writing %s: %v", ErrConnectionClosed, method, err)
	}

	timer := time.NewTimer(c.opts.requestTimeout)
	defer timer.Stop()

	select {
	case r := <-slot:
		return r.result, r.err
	case <-timer.C:
		c.pending.remove(id)
		return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, method, c.opts.requestTimeout)
	case <-ctx.Done():
		c.pending.remove(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s: %w", ErrTimeout, method, ctx.Err())
		}
		return nil, ctx.Err()
	}
}

// Notify sends a notification without waiting for anything
func (c *Connection) Notify(ctx context.Context, method string, params interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeMessage(method, params, jsonrpc.ID{})
	if err != nil {
		return err
	}
	if err := c.writeLine(data); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrConnectionClosed, method, err)
	}
	return nil
}

func encodeMessage(method string, params interface{}, id jsonrpc.ID) ([]byte, error) {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encoding %s params: %w", method, err)
		}
		raw = data
	}

	request := jsonrpc.NewNotification(method, raw)
	if !id.IsNil() {
		request = jsonrpc.NewRequest(method, raw, id)
	}
	return json.Marshal(request)
}

func (c *Connection) writeLine(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.writer.Write(data); err != nil {
		return err
	}
	if err := c.writer.WriteByte('\n'); err != nil {
		return err
	}
	return c.writer.Flush()
}

// Close announces shutdown, kills the process, and waits for it to be reaped.
// It is safe to call more than once.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.cleanup.Stop()
		if c.IsRunning() {
			c.state.Store(int32(StateShuttingDown))

			notified := make(chan struct{})
			go func() {
				defer close(notified)
				_ = c.Notify(context.Background(), mcp.MethodCancelled, map[string]string{"reason": "bridge shutting down"})
			}()
			select {
			case <-notified:
			case <-time.After(shutdownGrace):
			}
		}

		if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			c.closeErr = fmt.Errorf("killing %s: %w", c.name, err)
		}
		_ = c.stdin.Close()

		<-c.exited
		<-c.readerDone
		c.state.Store(int32(StateTerminated))
		c.logger.Debug("backend terminated")
	})
	return c.closeErr
}

func isNull(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
