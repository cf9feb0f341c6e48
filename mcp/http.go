package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/mattt/mcp-bridge/jsonrpc"
)

// ErrToolNotFound is the common cause of errors for names that do not
// resolve to a connected backend tool.
var ErrToolNotFound = errors.New("tool not found")

// maxBodySize bounds request bodies accepted by the HTTP front-end
const maxBodySize = 16 * 1024 * 1024

// Backends is the view of the connection registry served over HTTP
type Backends interface {
	ToolProvider
	ConnectedNames() []string
}

type httpHandler struct {
	handler  jsonrpc.Handler
	backends Backends
	version  string
	baseURL  string
	logger   *slog.Logger
}

// HTTPOption configures the HTTP front-end
type HTTPOption func(*httpHandler)

// WithVersion sets the version reported by /health and /openapi.json
func WithVersion(version string) HTTPOption {
	return func(h *httpHandler) {
		h.version = version
	}
}

// WithBaseURL sets the server URL advertised in /openapi.json
func WithBaseURL(url string) HTTPOption {
	return func(h *httpHandler) {
		h.baseURL = url
	}
}

// WithHTTPLogger sets the logger
func WithHTTPLogger(logger *slog.Logger) HTTPOption {
	return func(h *httpHandler) {
		h.logger = logger
	}
}

// NewHTTPHandler returns the HTTP front-end.
// handler answers JSON-RPC posted to /mcp; backends serves the REST and discovery routes.
func NewHTTPHandler(handler jsonrpc.Handler, backends Backends, opts ...HTTPOption) http.Handler {
	h := &httpHandler{
		handler:  handler,
		backends: backends,
		version:  "dev",
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: slog.NewLogLogger(h.logger.Handler(), slog.LevelDebug), NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.health)
	r.Post("/mcp", h.rpc)
	r.Get("/sse", h.sse)
	r.Get("/openapi.json", h.openAPI)
	r.Post("/tools/{name}", h.callTool)

	return r
}

func (h *httpHandler) health(w http.ResponseWriter, r *http.Request) {
	names := h.backends.ConnectedNames()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"service":  "mcp-bridge",
		"version":  h.version,
		"backends": names,
	})
}

func (h *httpHandler) rpc(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, jsonrpc.NewResponse(nil, nil, jsonrpc.NewErrorf(jsonrpc.ErrParse, "Parse error: %v", err)))
		return
	}

	var request jsonrpc.Request
	if err := json.Unmarshal(body, &request); err != nil {
		writeJSON(w, http.StatusBadRequest, jsonrpc.NewResponse(nil, nil, jsonrpc.NewErrorf(jsonrpc.ErrParse, "Parse error: %v", err)))
		return
	}

	response := h.handler.Handle(r.Context(), request)
	if request.IsNotification() {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *httpHandler) sse(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	names := h.backends.ConnectedNames()
	if names == nil {
		names = []string{}
	}
	data, _ := json.Marshal(names)

	fmt.Fprintf(w, "id: %s\nevent: connected\ndata: %s\n\n", uuid.NewString(), data)
	flusher.Flush()
}

func (h *httpHandler) openAPI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, BuildOpenAPI(h.backends.ListAllTools(), h.version, h.baseURL))
}

func (h *httpHandler) callTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	args := map[string]interface{}{}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &args); err != nil || args == nil {
			writeError(w, http.StatusBadRequest, "request body must be a JSON object")
			return
		}
	}

	result, err := h.backends.CallTool(r.Context(), name, args)
	if err != nil {
		h.logger.Debug("tool call failed", "tool", name, "error", err)
		switch {
		case errors.Is(err, ErrToolNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, ErrInvalidArguments):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
