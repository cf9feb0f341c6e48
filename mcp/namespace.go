package mcp

import (
	"errors"
	"fmt"
	"strings"
)

// Separator joins a backend name and a tool name into a namespaced tool name
const Separator = "__"

// NamespaceTool returns the aggregated name of tool on backend
func NamespaceTool(backend, tool string) string {
	return backend + Separator + tool
}

// ParseNamespacedTool splits name at the first Separator.
// ok is false when name contains no Separator.
func ParseNamespacedTool(name string) (backend, tool string, ok bool) {
	return strings.Cut(name, Separator)
}

// ValidateBackendName rejects names that cannot be namespaced unambiguously
func ValidateBackendName(name string) error {
	if name == "" {
		return errors.New("backend name is required")
	}
	if strings.Contains(name, Separator) {
		return fmt.Errorf("backend name %q must not contain %q", name, Separator)
	}
	// A trailing underscore would merge into the separator: "a_" + "__" + "x" splits as "a", "_x"
	if strings.HasSuffix(name, "_") {
		return fmt.Errorf("backend name %q must not end with %q", name, "_")
	}
	return nil
}
