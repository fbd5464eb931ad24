package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/loykin/inspectr"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds minimal global/persistent flags for CLI commands
type GlobalFlags struct {
	ConfigPath string
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "inspectr",
		Short: "Debugger controller for Node.js processes",
		Long: `Inspectr launches Node.js scripts with the inspector enabled and mediates
the remote debugging protocol (breakpoints, stepping, evaluation) through
an MCP tool-call interface served over stdio.

Examples:
  inspectr serve                    # Serve MCP over stdio with defaults
  inspectr serve config.toml        # Serve with a specific config file`,
	}
	root.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "path to TOML config file (optional)")

	root.AddCommand(
		createServeCommand(globalFlags),
		createVersionCommand(),
	)
	return root
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Serve the MCP tool interface over stdio",
		Long: `Serve the debugger controller over stdio. Stdout carries the MCP framing,
so daemon logs go to stderr or to the file configured under [log].

Examples:
  inspectr serve
  inspectr serve config.toml
  inspectr serve --config=config.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := globalFlags.ConfigPath
			if len(args) > 0 {
				configPath = args[0]
			}
			return runServe(configPath)
		},
	}
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("inspectr %s\n", version)
		},
	}
}

func runServe(configPath string) error {
	cfg, err := inspectr.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	inspectr.SetupLogging(cfg)

	d, err := inspectr.New(cfg)
	if err != nil {
		return fmt.Errorf("init daemon: %w", err)
	}

	if cfg.Metrics.Enabled {
		if err := inspectr.RegisterMetricsDefault(); err != nil {
			slog.Warn("metrics registration failed", "err", err)
		} else if cfg.Metrics.Listen != "" {
			go func() {
				if err := inspectr.ServeMetrics(cfg.Metrics.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.Error("metrics server", "err", err)
				}
			}()
		}
	}

	var httpSrv *http.Server
	if cfg.Server.Enabled {
		httpSrv, err = d.NewHTTPServer(cfg.Server.Listen, cfg.Server.BasePath)
		if err != nil {
			return fmt.Errorf("start status server: %w", err)
		}
		slog.Info("status server listening", "addr", cfg.Server.Listen, "base", cfg.Server.BasePath)
	}

	mcpErr := make(chan error, 1)
	go func() { mcpErr <- d.NewMCPServer(version).ServeStdio() }()
	slog.Info("serving MCP over stdio", "version", version)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("signal received, shutting down", "signal", sig.String())
	case err := <-mcpErr:
		if err != nil {
			slog.Error("mcp transport ended", "err", err)
		}
	}

	d.Shutdown()
	if httpSrv != nil {
		_ = httpSrv.Close()
	}
	return nil
}
