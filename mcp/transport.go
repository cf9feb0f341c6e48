package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/mattt/mcp-bridge/jsonrpc"
)

// maxLineSize bounds a single newline-delimited message
const maxLineSize = 16 * 1024 * 1024

// Transport handles the communication between stdin/stdout and a handler.
// Each request is handled on its own goroutine; writes are serialized.
type Transport struct {
	scanner *bufio.Scanner
	writer  *json.Encoder
	bufOut  *bufio.Writer
	writeMu sync.Mutex
	logger  *slog.Logger
}

// NewStdioTransport creates a new stdio transport
func NewStdioTransport(in io.Reader, out io.Writer, logger *slog.Logger) *Transport {
	scanner := bufio.NewScanner(in)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineSize)

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	bufOut := bufio.NewWriter(out)
	return &Transport{
		scanner: scanner,
		writer:  json.NewEncoder(bufOut),
		bufOut:  bufOut,
		logger:  logger,
	}
}

// Run reads requests until the input ends or ctx is done.
// It waits for in-flight requests before returning.
func (t *Transport) Run(ctx context.Context, handler jsonrpc.Handler) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !t.scanner.Scan() {
			if err := t.scanner.Err(); err != nil {
				return fmt.Errorf("scanner error: %w", err)
			}
			return nil
		}

		line := t.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var request jsonrpc.Request
		if err := json.Unmarshal(line, &request); err != nil {
			t.logger.Debug("unparseable request", "error", err)
			t.write(jsonrpc.NewResponse(nil, nil, jsonrpc.NewErrorf(jsonrpc.ErrParse, "Parse error: %v", err)))
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			response := handler.Handle(ctx, request)
			if request.IsNotification() {
				return
			}
			t.write(response)
		}()
	}
}

func (t *Transport) write(response jsonrpc.Response) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.writer.Encode(response); err != nil {
		t.logger.Error("error encoding response", "error", err)
	}
	if err := t.bufOut.Flush(); err != nil {
		t.logger.Error("error writing response", "error", err)
	}
}
