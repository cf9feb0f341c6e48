package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mattt/mcp-bridge/backend"
	"github.com/mattt/mcp-bridge/internal/config"
)

const serviceName = "mcp-bridge"

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// app holds the persistent flags shared by every command
type app struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "mcp-bridge",
		Short: "Aggregate many MCP servers behind one",
		Long: `mcp-bridge spawns the MCP servers listed in its configuration file and
exposes all of their tools through a single MCP endpoint.

Tool names are namespaced as <server>__<tool>. The bridge can be served over
stdio for a local client, or run as an HTTP daemon.`,
		SilenceUsage: true,
	}
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built at: %s)", version, commit, date)

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to the configuration file (default is the user config directory)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging to stderr")

	rootCmd.AddCommand(
		newAddCmd(a),
		newRemoveCmd(a),
		newListCmd(a),
		newImportCmd(a),
		newServeCmd(a),
		newDaemonCmd(a),
		newToolsCmd(a),
		newCallCmd(a),
	)

	return rootCmd
}

// path returns the configuration file location
func (a *app) path() (string, error) {
	if a.configPath != "" {
		return a.configPath, nil
	}
	return config.DefaultPath()
}

func (a *app) loadConfig() (*config.Config, string, error) {
	path, err := a.path()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// newLogger writes to w at the configured level. -v forces debug.
func (a *app) newLogger(w io.Writer, settings config.Settings) *slog.Logger {
	level := config.ParseLogLevel(settings.LogLevel)
	if a.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// newRegistry builds a registry from the global settings
func newRegistry(settings config.Settings, logger *slog.Logger, stderr io.Writer) *backend.Registry {
	return backend.NewRegistry(
		backend.WithRegistryLogger(logger),
		backend.WithArgumentValidation(settings.ValidateArguments),
		backend.WithConnectionOptions(
			backend.WithRequestTimeout(settings.RequestTimeout),
			backend.WithClientInfo(serviceName, version),
			backend.WithStderr(stderr),
		),
	)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
