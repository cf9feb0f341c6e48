package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattt/mcp-bridge/internal"
	"github.com/mattt/mcp-bridge/jsonrpc"
	"github.com/mattt/mcp-bridge/mcp"
)

// daemonClient talks to a running daemon
type daemonClient struct {
	baseURL string
	client  *http.Client
}

type clientFlags struct {
	url     string
	retries int
	timeout time.Duration
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.url, "url", "", "Daemon URL (default http://127.0.0.1:<daemon_port>)")
	cmd.Flags().IntVar(&f.retries, "retries", 3, "Maximum number of retries for failed requests")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 60*time.Second, "HTTP request timeout")
}

func (f *clientFlags) client(a *app, cmd *cobra.Command) (*daemonClient, error) {
	cfg, _, err := a.loadConfig()
	if err != nil {
		return nil, err
	}

	baseURL := f.url
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://127.0.0.1:%d", cfg.Settings.DaemonPort)
	}

	opts := internal.ClientOptions{
		Retries: f.retries,
		Timeout: f.timeout,
		Headers: http.Header{"User-Agent": {serviceName + "/" + version}},
	}
	if a.verbose {
		opts.Logger = a.newLogger(cmd.ErrOrStderr(), cfg.Settings)
	}

	return &daemonClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  internal.NewHTTPClient(opts),
	}, nil
}

func (c *daemonClient) post(ctx context.Context, path string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("error contacting daemon: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("error reading response: %w", err)
	}
	return resp.StatusCode, data, nil
}

// listTools asks the daemon for its tools over JSON-RPC
func (c *daemonClient) listTools(ctx context.Context) ([]mcp.Tool, error) {
	body, err := json.Marshal(jsonrpc.NewRequest(mcp.MethodToolsList, nil, 1))
	if err != nil {
		return nil, err
	}

	status, data, err := c.post(ctx, "/mcp", body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("daemon returned %s", http.StatusText(status))
	}

	var resp jsonrpc.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}

	var result mcp.ToolsListResponse
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("error decoding tools: %w", err)
	}
	return result.Tools, nil
}

// callTool calls a tool through the daemon's REST route
func (c *daemonClient) callTool(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	status, data, err := c.post(ctx, "/tools/"+url.PathEscape(name), args)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &body) == nil && body.Error != "" {
			return nil, fmt.Errorf("%s: %s", http.StatusText(status), body.Error)
		}
		return nil, fmt.Errorf("daemon returned %s", http.StatusText(status))
	}
	return data, nil
}

func newToolsCmd(a *app) *cobra.Command {
	var flags clientFlags

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools of a running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client(a, cmd)
			if err != nil {
				return err
			}

			tools, err := c.listTools(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDESCRIPTION")
			for _, tool := range tools {
				fmt.Fprintf(w, "%s\t%s\n", tool.Name, firstLine(tool.Description))
			}
			return w.Flush()
		},
	}
	flags.register(cmd)

	return cmd
}

func newCallCmd(a *app) *cobra.Command {
	var flags clientFlags

	cmd := &cobra.Command{
		Use:     "call NAME [JSON-ARGS]",
		Short:   "Call a tool on a running daemon",
		Example: `  mcp-bridge call filesystem__read_file '{"path":"/tmp/notes.txt"}'`,
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			arguments := json.RawMessage(`{}`)
			if len(args) == 2 {
				arguments = json.RawMessage(args[1])
				var object map[string]interface{}
				if err := json.Unmarshal(arguments, &object); err != nil || object == nil {
					return fmt.Errorf("arguments must be a JSON object")
				}
			}

			c, err := flags.client(a, cmd)
			if err != nil {
				return err
			}

			result, err := c.callTool(cmd.Context(), args[0], arguments)
			if err != nil {
				return err
			}

			var out bytes.Buffer
			if err := json.Indent(&out, result, "", "  "); err != nil {
				out.Reset()
				out.Write(result)
			}
			out.WriteByte('\n')
			_, err = out.WriteTo(cmd.OutOrStdout())
			return err
		},
	}
	flags.register(cmd)

	return cmd
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
