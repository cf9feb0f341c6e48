package mcp

import "encoding/json"

// OpenAPIVersion is the version of the generated OpenAPI documents
const OpenAPIVersion = "3.1.0"

// BuildOpenAPI describes every tool as a POST operation on /tools/{name}.
// The request body schema is the tool's input schema.
func BuildOpenAPI(tools []Tool, version, baseURL string) map[string]interface{} {
	paths := map[string]interface{}{}
	for _, tool := range tools {
		schema := tool.InputSchema
		if len(schema) == 0 || !json.Valid(schema) {
			schema = json.RawMessage(defaultToolInputSchemaObject)
		}

		summary := tool.Description
		if summary == "" {
			summary = tool.Name
		}

		paths["/tools/"+tool.Name] = map[string]interface{}{
			"post": map[string]interface{}{
				"operationId": tool.Name,
				"summary":     summary,
				"requestBody": map[string]interface{}{
					"required": true,
					"content": map[string]interface{}{
						"application/json": map[string]interface{}{
							"schema": schema,
						},
					},
				},
				"responses": map[string]interface{}{
					"200": jsonResponse("Tool result", json.RawMessage(toolResultSchema)),
					"400": jsonResponse("Malformed request body", json.RawMessage(errorSchema)),
					"404": jsonResponse("Unknown tool or backend", json.RawMessage(errorSchema)),
					"422": jsonResponse("Arguments do not match the input schema", json.RawMessage(errorSchema)),
					"502": jsonResponse("Backend failure", json.RawMessage(errorSchema)),
				},
			},
		}
	}

	doc := map[string]interface{}{
		"openapi": OpenAPIVersion,
		"info": map[string]interface{}{
			"title":       "mcp-bridge",
			"version":     version,
			"description": "Tools aggregated from connected MCP servers",
		},
		"paths": paths,
	}
	if baseURL != "" {
		doc["servers"] = []interface{}{
			map[string]interface{}{"url": baseURL},
		}
	}
	return doc
}

const (
	toolResultSchema = `{"type":"object","properties":{"content":{"type":"array","items":{"type":"object"}},"isError":{"type":"boolean"}},"required":["content"]}`
	errorSchema      = `{"type":"object","properties":{"error":{"type":"string"}},"required":["error"]}`
)

func jsonResponse(description string, schema json.RawMessage) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": schema,
			},
		},
	}
}
