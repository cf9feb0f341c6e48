package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mattt/mcp-bridge/internal/config"
)

func newAddCmd(a *app) *cobra.Command {
	var (
		env      []string
		disabled bool
	)

	cmd := &cobra.Command{
		Use:   "add NAME COMMAND [ARGS...]",
		Short: "Add an MCP server to the configuration",
		Long: `Add an MCP server to the configuration.

Environment values of the form op://vault/item/field are resolved with the
1Password CLI when the server is spawned.`,
		Example: `  mcp-bridge add filesystem npx -- -y @modelcontextprotocol/server-filesystem /tmp
  mcp-bridge add github github-mcp --env GITHUB_TOKEN=op://Private/GitHub/token`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := a.loadConfig()
			if err != nil {
				return err
			}

			server := config.NewServer(args[0], args[1], args[2:]...)
			server.Enabled = !disabled
			if len(env) > 0 {
				server.Env, err = parseEnv(env)
				if err != nil {
					return err
				}
			}

			if err := cfg.AddServer(server); err != nil {
				return err
			}
			if err := cfg.Save(path); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", server.Name)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&env, "env", "e", nil, "Environment variable for the server as KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Add the server without enabling it")

	return cmd
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove NAME",
		Aliases: []string{"rm"},
		Short:   "Remove an MCP server from the configuration",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := a.loadConfig()
			if err != nil {
				return err
			}

			if _, err := cfg.RemoveServer(args[0]); err != nil {
				return err
			}
			if err := cfg.Save(path); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List configured MCP servers",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := a.loadConfig()
			if err != nil {
				return err
			}

			if len(cfg.Servers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No servers configured")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tENABLED\tCOMMAND")
			for _, s := range cfg.Servers {
				fmt.Fprintf(w, "%s\t%t\t%s\n", s.Name, s.Enabled, strings.Join(append([]string{s.Command}, s.Args...), " "))
			}
			return w.Flush()
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import PATH",
		Short: "Import MCP servers from a Claude Desktop configuration file",
		Long: `Import MCP servers from a Claude Desktop configuration file.
Servers whose names are already configured are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := a.loadConfig()
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("error opening %s: %w", args[0], err)
			}
			defer f.Close()

			servers, err := config.ImportClaudeDesktop(f)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			added := 0
			for _, server := range servers {
				switch err := cfg.AddServer(server); {
				case err == nil:
					added++
					fmt.Fprintf(out, "Imported %s\n", server.Name)
				case errors.Is(err, config.ErrServerExists), errors.Is(err, config.ErrInvalidName):
					fmt.Fprintf(out, "Skipped %s: %v\n", server.Name, err)
				default:
					return err
				}
			}

			if added == 0 {
				return nil
			}
			return cfg.Save(path)
		},
	}
}

// parseEnv parses KEY=VALUE pairs
func parseEnv(pairs []string) (map[string]string, error) {
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid environment variable %q, expected KEY=VALUE", pair)
		}
		env[key] = value
	}
	return env, nil
}
