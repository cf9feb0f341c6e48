package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mattt/mcp-bridge/backend"
	"github.com/mattt/mcp-bridge/mcp"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the aggregated tools over stdio",
		Long: `Connect every enabled server and serve their tools as one MCP server,
reading JSON-RPC requests from stdin and writing responses to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, _, err := a.loadConfig()
			if err != nil {
				return err
			}
			stderr := cmd.ErrOrStderr()
			logger := a.newLogger(stderr, cfg.Settings)

			registry := newRegistry(cfg.Settings, logger, stderr)
			defer registry.ShutdownAll()
			registry.ConnectAll(ctx, cfg.EnabledServers())
			logStatus(logger, registry)

			router := mcp.NewRouter(registry,
				mcp.WithServerInfo(serviceName, version),
				mcp.WithRouterLogger(logger),
			)
			transport := mcp.NewStdioTransport(cmd.InOrStdin(), cmd.OutOrStdout(), logger)

			// A read from stdin cannot be interrupted, so stop waiting on a signal
			done := make(chan error, 1)
			go func() { done <- transport.Run(ctx, router) }()

			select {
			case err := <-done:
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			case <-ctx.Done():
				logger.Info("shutting down")
				return nil
			}
		},
	}
}

func newDaemonCmd(a *app) *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Serve the aggregated tools over HTTP",
		Long: `Connect every enabled server and serve their tools over HTTP.

Routes:
  GET  /health          service status and connected servers
  POST /mcp             JSON-RPC requests
  GET  /sse             connection event stream
  GET  /openapi.json    OpenAPI description of the tool routes
  POST /tools/{name}    call a tool with a JSON object of arguments`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, _, err := a.loadConfig()
			if err != nil {
				return err
			}
			stderr := cmd.ErrOrStderr()
			logger := a.newLogger(stderr, cfg.Settings)

			if !cmd.Flags().Changed("port") {
				port = cfg.Settings.DaemonPort
			}
			addr := net.JoinHostPort(host, strconv.Itoa(port))

			registry := newRegistry(cfg.Settings, logger, stderr)
			defer registry.ShutdownAll()
			registry.ConnectAll(ctx, cfg.EnabledServers())
			logStatus(logger, registry)

			router := mcp.NewRouter(registry,
				mcp.WithServerInfo(serviceName, version),
				mcp.WithRouterLogger(logger),
			)
			server := &http.Server{
				Addr: addr,
				Handler: mcp.NewHTTPHandler(router, registry,
					mcp.WithVersion(version),
					mcp.WithBaseURL("http://"+addr),
					mcp.WithHTTPLogger(logger),
				),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, ctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				logger.Info("listening", "addr", addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("error serving HTTP: %w", err)
				}
				return nil
			})

			g.Go(func() error {
				<-ctx.Done()
				logger.Info("shutting down")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})

			return g.Wait()
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default from settings)")
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Interface to listen on")

	return cmd
}

func logStatus(logger *slog.Logger, registry *backend.Registry) {
	for _, status := range registry.Status() {
		attrs := []any{"backend", status.Name, "state", status.State, "tools", status.Tools}
		if status.Server != nil {
			attrs = append(attrs, "server", status.Server.Name+"/"+status.Server.Version, "protocol", status.ProtocolVersion)
		}
		logger.Info("backend ready", attrs...)
	}
}
