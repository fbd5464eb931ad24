// Package inspectr is the embeddable facade over the daemon's internals: the
// process registry, the debug session and their supporting services.
package inspectr

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	cfg "github.com/loykin/inspectr/internal/config"
	"github.com/loykin/inspectr/internal/history"
	"github.com/loykin/inspectr/internal/logger"
	"github.com/loykin/inspectr/internal/mcpserver"
	"github.com/loykin/inspectr/internal/metrics"
	"github.com/loykin/inspectr/internal/process"
	"github.com/loykin/inspectr/internal/registry"
	iapi "github.com/loykin/inspectr/internal/server"
	"github.com/loykin/inspectr/internal/session"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Status = process.Status

type Config = cfg.Config

type HistorySink = history.Sink

type BreakpointKey = session.BreakpointKey

type StepAction = session.StepAction

type EvalResult = session.EvalResult

type SessionView = session.View

// Daemon bundles one registry and one session, built from a Config.
type Daemon struct {
	reg *registry.Registry
	ses *session.Session
}

// New constructs a Daemon: history sinks per config, a registry wired to
// those sinks, and a session that detaches whenever its debuggee exits.
func New(c Config) (*Daemon, error) {
	sinks, err := buildSinks(c.History)
	if err != nil {
		return nil, err
	}
	reg := registry.New(registry.Config{
		BasePort: c.BasePort,
		NodeBin:  c.NodeBin,
		Log:      c.DebuggeeLog,
	}, registry.WithHistorySinks(sinks...))
	ses := session.New(session.Config{
		AttachTimeout: c.AttachTimeout,
	}, session.WithHistorySinks(sinks...))
	reg.SubscribeExit(func(st process.Status) {
		ses.HandleProcessExit(st.Port)
	})
	return &Daemon{reg: reg, ses: ses}, nil
}

func buildSinks(h cfg.HistoryConfig) ([]history.Sink, error) {
	var sinks []history.Sink
	if h.SQLDSN != "" {
		s, err := history.NewSQLSinkFromDSN(h.SQLDSN)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if h.ClickHouseURL != "" {
		sinks = append(sinks, history.NewClickHouseSink(h.ClickHouseURL, h.ClickHouseTable))
	}
	return sinks, nil
}

// LoadConfig reads the TOML config file; an empty path yields defaults.
func LoadConfig(path string) (Config, error) { return cfg.Load(path) }

// SetupLogging installs the daemon's slog logger per config.
func SetupLogging(c Config) { logger.Setup(c.Log) }

// Launch starts a script under the inspector and returns its pid and port.
func (d *Daemon) Launch(script string, args []string, cwd string) (Status, error) {
	return d.reg.Launch(script, args, cwd)
}

// Kill sends a termination signal to a managed process.
func (d *Daemon) Kill(pid int) error { return d.reg.Terminate(pid) }

// List snapshots all managed processes.
func (d *Daemon) List() []Status { return d.reg.List() }

// Attach connects the debug session to the given port.
func (d *Daemon) Attach(ctx context.Context, port int) error { return d.ses.Attach(ctx, port) }

// Detach releases the debug session.
func (d *Daemon) Detach() error { return d.ses.Detach() }

// SetBreakpoint registers a breakpoint and returns its assigned identifier.
func (d *Daemon) SetBreakpoint(ctx context.Context, key BreakpointKey) (string, error) {
	return d.ses.SetBreakpoint(ctx, key)
}

// Step issues a stepping request.
func (d *Daemon) Step(ctx context.Context, action StepAction) error {
	return d.ses.Step(ctx, action)
}

// Pause asks the debuggee to pause.
func (d *Daemon) Pause(ctx context.Context) error { return d.ses.Pause(ctx) }

// Evaluate runs an expression in the debuggee.
func (d *Daemon) Evaluate(ctx context.Context, expr string) (EvalResult, error) {
	return d.ses.Evaluate(ctx, expr)
}

// Session snapshots the debug session.
func (d *Daemon) Session() SessionView { return d.ses.View() }

// Shutdown signals all managed processes and resets the session, best-effort
// and without waiting for exits.
func (d *Daemon) Shutdown() {
	_ = d.ses.Detach()
	d.reg.Shutdown()
}

// NewMCPServer builds the MCP tool surface over this daemon.
func (d *Daemon) NewMCPServer(version string) *mcpserver.Server {
	return mcpserver.New(d.reg, d.ses, version)
}

// NewHTTPServer starts the read-only status API on addr.
func (d *Daemon) NewHTTPServer(addr, basePath string) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, d.reg, d.ses)
}

// RegisterEcho mounts the status endpoints on an existing echo instance for
// hosts that embed the daemon into an echo application.
func (d *Daemon) RegisterEcho(e *echo.Echo, basePath string) {
	iapi.RegisterEcho(e, basePath, d.reg, d.ses)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It blocks in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
