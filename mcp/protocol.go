package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the Model Context Protocol version
const Version = "2024-11-05"

// Method names of the protocol subset spoken by the bridge
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodCancelled   = "notifications/cancelled"
	MethodPing        = "ping"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"
)

// Content block types
const (
	ContentTypeText     = "text"
	ContentTypeImage    = "image"
	ContentTypeResource = "resource"
)

const defaultToolInputSchemaObject = `{"type":"object"}`

// Initialize
type (
	// Implementation describes the name and version of an MCP client or server
	Implementation struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}

	// ClientCapabilities represents the capabilities a client advertises
	ClientCapabilities struct {
		Experimental map[string]interface{} `json:"experimental,omitempty"`
		Roots        *struct {
			ListChanged bool `json:"listChanged"`
		} `json:"roots,omitempty"`
		Sampling *struct{} `json:"sampling,omitempty"`
	}

	// ServerCapabilities represents the server's supported capabilities
	ServerCapabilities struct {
		Experimental map[string]interface{} `json:"experimental,omitempty"`
		Logging      *struct{}              `json:"logging,omitempty"`
		Prompts      *struct {
			ListChanged bool `json:"listChanged"`
		} `json:"prompts,omitempty"`
		Resources *struct {
			Subscribe   bool `json:"subscribe"`
			ListChanged bool `json:"listChanged"`
		} `json:"resources,omitempty"`
		Tools *ToolsCapability `json:"tools,omitempty"`
	}

	// ToolsCapability is present when a server offers tools
	ToolsCapability struct {
		ListChanged bool `json:"listChanged"`
	}

	// InitializeRequest represents the params of an initialize request
	InitializeRequest struct {
		ProtocolVersion string             `json:"protocolVersion"`
		Capabilities    ClientCapabilities `json:"capabilities"`
		ClientInfo      Implementation     `json:"clientInfo"`
	}

	// InitializeResponse represents the server's response to an initialize request
	InitializeResponse struct {
		ProtocolVersion string             `json:"protocolVersion"`
		Capabilities    ServerCapabilities `json:"capabilities"`
		ServerInfo      Implementation     `json:"serverInfo"`
		Instructions    string             `json:"instructions,omitempty"`
	}
)

// Tools
type (
	// Tool represents a single tool in the tools/list response.
	// InputSchema is kept as the raw document the backend sent.
	Tool struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		InputSchema json.RawMessage `json:"inputSchema"`
	}

	// ToolsListResponse represents the response for the tools/list method
	ToolsListResponse struct {
		Tools      []Tool `json:"tools"`
		NextCursor string `json:"nextCursor,omitempty"`
	}

	// ToolCallRequest represents a request to call a specific tool
	ToolCallRequest struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}
)

// MarshalJSON fills in an object schema for tools that were built without one.
func (t Tool) MarshalJSON() ([]byte, error) {
	type tool Tool
	if len(t.InputSchema) == 0 {
		t.InputSchema = json.RawMessage(defaultToolInputSchemaObject)
	}
	return json.Marshal(tool(t))
}

// Content types
type (
	// Annotations represents optional annotations for objects
	Annotations struct {
		// Describes who the intended customer of this object or data is
		Audience []string `json:"audience,omitempty"`
		// Describes how important this data is for operating the server (0-1)
		Priority *float64 `json:"priority,omitempty"`
	}

	// Content is one block of a tool result: text, image, or embedded resource
	Content struct {
		Type        string            `json:"type"`
		Text        *string           `json:"text,omitempty"`
		Data        string            `json:"data,omitempty"`
		MimeType    string            `json:"mimeType,omitempty"`
		Resource    *ResourceContents `json:"resource,omitempty"`
		Annotations *Annotations      `json:"annotations,omitempty"`
	}

	// ResourceContents represents the contents of a specific resource
	ResourceContents struct {
		URI      string  `json:"uri"`
		MimeType string  `json:"mimeType,omitempty"`
		Text     *string `json:"text,omitempty"`
		Blob     *string `json:"blob,omitempty"`
	}
)

// NewTextContent creates a text content block
func NewTextContent(text string) Content {
	return Content{Type: ContentTypeText, Text: &text}
}

// NewImageContent creates an image content block from base64 data
func NewImageContent(data, mimeType string) Content {
	return Content{Type: ContentTypeImage, Data: data, MimeType: mimeType}
}

// NewResourceContent creates an embedded resource content block
func NewResourceContent(resource ResourceContents) Content {
	return Content{Type: ContentTypeResource, Resource: &resource}
}

// Validate checks that the block carries the fields its type requires
func (c Content) Validate() error {
	switch c.Type {
	case ContentTypeText:
		if c.Text == nil {
			return errors.New("text content without text")
		}
	case ContentTypeImage:
		if c.Data == "" || c.MimeType == "" {
			return errors.New("image content requires data and mimeType")
		}
	case ContentTypeResource:
		if c.Resource == nil || c.Resource.URI == "" {
			return errors.New("resource content requires resource.uri")
		}
	case "":
		return errors.New("content without type")
	default:
		return fmt.Errorf("unknown content type %q", c.Type)
	}
	return nil
}

// ToolCallResponse represents the server's response to a tool call.
// When decoded from a backend, the original bytes are kept and re-emitted
// unchanged by MarshalJSON.
type ToolCallResponse struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`

	raw json.RawMessage
}

// ParseToolCallResponse decodes and validates a tools/call result
func ParseToolCallResponse(data json.RawMessage) (*ToolCallResponse, error) {
	var shape struct {
		Content *[]Content `json:"content"`
		IsError bool       `json:"isError"`
	}
	if err := json.Unmarshal(data, &shape); err != nil {
		return nil, fmt.Errorf("decoding tool result: %w", err)
	}
	if shape.Content == nil {
		return nil, errors.New("tool result has no content array")
	}
	for i, c := range *shape.Content {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("content[%d]: %w", i, err)
		}
	}

	return &ToolCallResponse{
		Content: *shape.Content,
		IsError: shape.IsError,
		raw:     append(json.RawMessage(nil), data...),
	}, nil
}

// Raw returns the bytes the result was decoded from, if any
func (r *ToolCallResponse) Raw() json.RawMessage {
	return r.raw
}

// MarshalJSON emits the original backend bytes when available
func (r ToolCallResponse) MarshalJSON() ([]byte, error) {
	if len(r.raw) > 0 {
		return r.raw, nil
	}
	type response struct {
		Content []Content `json:"content"`
		IsError bool      `json:"isError,omitempty"`
	}
	content := r.Content
	if content == nil {
		content = []Content{}
	}
	return json.Marshal(response{Content: content, IsError: r.IsError})
}
