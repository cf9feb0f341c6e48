package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattt/mcp-bridge/internal/config"
	"github.com/mattt/mcp-bridge/mcp"
)

// run executes the root command with args and returns its output
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseEnv(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]string
		wantErr bool
	}{
		{name: "pairs", pairs: []string{"A=1", "B=op://vault/item/field"}, want: map[string]string{"A": "1", "B": "op://vault/item/field"}},
		{name: "value with equals", pairs: []string{"URL=a=b"}, want: map[string]string{"URL": "a=b"}},
		{name: "empty value", pairs: []string{"EMPTY="}, want: map[string]string{"EMPTY": ""}},
		{name: "missing equals", pairs: []string{"NOPE"}, wantErr: true},
		{name: "missing key", pairs: []string{"=value"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseEnv(tt.pairs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestServerCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := run(t, "--config", path, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No servers configured")

	_, err = run(t, "--config", path, "add", "files", "npx", "--env", "TOKEN=op://vault/item/field", "--", "-y", "server-filesystem", "/tmp")
	require.NoError(t, err)
	_, err = run(t, "--config", path, "add", "quiet", "quiet-server", "--disabled")
	require.NoError(t, err)

	_, err = run(t, "--config", path, "add", "files", "other")
	assert.ErrorIs(t, err, config.ErrServerExists)
	_, err = run(t, "--config", path, "add", "bad__name", "other")
	assert.ErrorIs(t, err, config.ErrInvalidName)

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	require.Len(t, cfg.Servers, 2)
	assert.Equal(t, []string{"-y", "server-filesystem", "/tmp"}, cfg.Servers[0].Args)
	assert.Equal(t, map[string]string{"TOKEN": "op://vault/item/field"}, cfg.Servers[0].Env)
	assert.True(t, cfg.Servers[0].Enabled)
	assert.False(t, cfg.Servers[1].Enabled)

	out, err = run(t, "--config", path, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "npx -y server-filesystem /tmp")
	assert.Contains(t, out, "quiet-server")

	_, err = run(t, "--config", path, "remove", "quiet")
	require.NoError(t, err)
	_, err = run(t, "--config", path, "remove", "quiet")
	assert.ErrorIs(t, err, config.ErrServerNotFound)

	cfg, err = config.LoadFile(path)
	require.NoError(t, err)
	require.Len(t, cfg.Servers, 1)
}

func TestImportCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	desktop := filepath.Join(dir, "claude_desktop_config.json")
	require.NoError(t, os.WriteFile(desktop, []byte(`{
		"mcpServers": {
			"files": {"command": "npx", "args": ["server-filesystem"]},
			"weather": {"command": "uvx", "args": ["weather-mcp"]}
		}
	}`), 0644))

	_, err := run(t, "--config", path, "add", "files", "existing")
	require.NoError(t, err)

	out, err := run(t, "--config", path, "import", desktop)
	require.NoError(t, err)
	assert.Contains(t, out, "Skipped files")
	assert.Contains(t, out, "Imported weather")

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	require.Len(t, cfg.Servers, 2)
	assert.Equal(t, "existing", cfg.Servers[0].Command)
	assert.Equal(t, "weather", cfg.Servers[1].Name)
}

type stubBackends struct{}

func (stubBackends) ListAllTools() []mcp.Tool {
	return []mcp.Tool{{Name: "alpha__echo", Description: "[alpha] Echo\nmore detail"}}
}

func (stubBackends) CallTool(_ context.Context, name string, args map[string]interface{}) (*mcp.ToolCallResponse, error) {
	if name != "alpha__echo" {
		return nil, mcp.ErrToolNotFound
	}
	text, _ := args["text"].(string)
	return &mcp.ToolCallResponse{Content: []mcp.Content{{Type: "text", Text: &text}}}, nil
}

func (stubBackends) ConnectedNames() []string { return []string{"alpha"} }

func TestClientCommands(t *testing.T) {
	backends := stubBackends{}
	server := httptest.NewServer(mcp.NewHTTPHandler(mcp.NewRouter(backends), backends))
	t.Cleanup(server.Close)

	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := run(t, "--config", path, "tools", "--url", server.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "alpha__echo")
	assert.Contains(t, out, "[alpha] Echo")
	assert.NotContains(t, out, "more detail")

	out, err = run(t, "--config", path, "call", "alpha__echo", `{"text":"hi"}`, "--url", server.URL)
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":[{"type":"text","text":"hi"}]}`, strings.TrimSpace(out))

	_, err = run(t, "--config", path, "call", "alpha__missing", "--url", server.URL, "--retries", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Not Found")

	_, err = run(t, "--config", path, "call", "alpha__echo", `[1,2]`, "--url", server.URL)
	assert.EqualError(t, err, "arguments must be a JSON object")
}
