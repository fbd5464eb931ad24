// Package registry owns the set of spawned debuggees: their assigned debug
// ports, launch parameters and exit observation. All spawning and termination
// goes through the Registry; nothing else touches the process table.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/loykin/inspectr/internal/history"
	"github.com/loykin/inspectr/internal/logger"
	"github.com/loykin/inspectr/internal/metrics"
	"github.com/loykin/inspectr/internal/ports"
	"github.com/loykin/inspectr/internal/process"
)

// ErrScriptNotFound is returned by Launch when the resolved script path does
// not exist; nothing is spawned and no port is allocated.
var ErrScriptNotFound = errors.New("script not found")

// ErrProcessNotFound is returned for operations on an unknown pid.
var ErrProcessNotFound = errors.New("process not found")

// ExitFunc observes a debuggee exit. It runs on the observer goroutine after
// the registry entry has been removed and the port released.
type ExitFunc func(st process.Status)

// Config carries the launch defaults shared by all debuggees.
type Config struct {
	BasePort int
	NodeBin  string
	Log      logger.Config
}

// Registry tracks live debuggees keyed by pid.
type Registry struct {
	mu     sync.Mutex
	procs  map[int]*process.Process
	alloc  *ports.Allocator
	cfg    Config
	onExit []ExitFunc
	sinks  []history.Sink
	log    *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithHistorySinks attaches history sinks receiving launch/exit events.
func WithHistorySinks(sinks ...history.Sink) Option {
	return func(r *Registry) { r.sinks = append(r.sinks, sinks...) }
}

// WithAllocator replaces the default port allocator, for tests.
func WithAllocator(a *ports.Allocator) Option {
	return func(r *Registry) { r.alloc = a }
}

// New constructs a Registry whose allocator skips ports claimed by its own
// live processes.
func New(cfg Config, opts ...Option) *Registry {
	r := &Registry{
		procs: make(map[int]*process.Process),
		cfg:   cfg,
		log:   slog.Default(),
	}
	r.alloc = ports.NewAllocator(cfg.BasePort, ports.WithInUse(r.PortInUse))
	for _, o := range opts {
		o(r)
	}
	return r
}

// SubscribeExit registers fn to run whenever a debuggee exits. Must be called
// before the first Launch.
func (r *Registry) SubscribeExit(fn ExitFunc) {
	r.mu.Lock()
	r.onExit = append(r.onExit, fn)
	r.mu.Unlock()
}

// PortInUse reports whether a live managed process claims the port.
func (r *Registry) PortInUse(port int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.procs {
		if p.Snapshot().Port == port {
			return true
		}
	}
	return false
}

// Launch resolves the script path, allocates a debug port and spawns the
// runtime with the debug-on-entry flag. The returned status carries the pid
// and port the caller needs to attach.
func (r *Registry) Launch(script string, args []string, cwd string) (process.Status, error) {
	resolved, err := resolveScript(script, cwd)
	if err != nil {
		return process.Status{}, err
	}
	port, err := r.alloc.Allocate()
	if err != nil {
		return process.Status{}, fmt.Errorf("allocate debug port: %w", err)
	}
	spec := process.Spec{
		Name:      filepath.Base(resolved),
		Script:    resolved,
		Args:      args,
		WorkDir:   cwd,
		NodeBin:   r.cfg.NodeBin,
		DebugPort: port,
		Log:       r.cfg.Log,
	}
	p := process.New(spec)
	cmd := p.ConfigureCmd()
	if err := p.TryStart(cmd); err != nil {
		return process.Status{}, fmt.Errorf("spawn %s: %w", resolved, err)
	}
	st := p.Snapshot()

	r.mu.Lock()
	r.procs[st.PID] = p
	r.mu.Unlock()

	metrics.IncLaunch()
	metrics.SetRunningProcesses(r.count())
	r.record(history.EventLaunch, st, nil)
	r.log.Info("launched debuggee", "pid", st.PID, "port", st.Port, "script", st.Script)

	go r.observeExit(p)
	return st, nil
}

// observeExit reaps the process, removes its entry exactly once and notifies
// exit subscribers. Racing with Terminate is safe: the map delete below is
// the single point of removal.
func (r *Registry) observeExit(p *process.Process) {
	err := p.Wait()
	st := p.Snapshot()

	r.mu.Lock()
	_, present := r.procs[st.PID]
	delete(r.procs, st.PID)
	subs := append([]ExitFunc(nil), r.onExit...)
	r.mu.Unlock()
	if !present {
		return
	}

	metrics.IncExit()
	metrics.SetRunningProcesses(r.count())
	r.record(history.EventExit, st, err)
	r.log.Info("debuggee exited", "pid", st.PID, "port", st.Port, "err", err)
	for _, fn := range subs {
		fn(st)
	}
}

// Terminate sends SIGTERM to the named debuggee. It does not wait for the
// exit observer, so the entry may linger briefly until the observer fires.
func (r *Registry) Terminate(pid int) error {
	r.mu.Lock()
	p, ok := r.procs[pid]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("pid %d: %w", pid, ErrProcessNotFound)
	}
	return p.Terminate()
}

// Get returns the status of one debuggee.
func (r *Registry) Get(pid int) (process.Status, error) {
	r.mu.Lock()
	p, ok := r.procs[pid]
	r.mu.Unlock()
	if !ok {
		return process.Status{}, fmt.Errorf("pid %d: %w", pid, ErrProcessNotFound)
	}
	return p.Snapshot(), nil
}

// List returns status snapshots for all live debuggees.
func (r *Registry) List() []process.Status {
	r.mu.Lock()
	out := make([]process.Status, 0, len(r.procs))
	for _, p := range r.procs {
		out = append(out, p.Snapshot())
	}
	r.mu.Unlock()
	return out
}

// Shutdown signals every managed process best-effort and resets the table.
// It does not wait for exit confirmation.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	procs := make([]*process.Process, 0, len(r.procs))
	for _, p := range r.procs {
		procs = append(procs, p)
	}
	r.procs = make(map[int]*process.Process)
	r.mu.Unlock()
	for _, p := range procs {
		_ = p.Terminate()
	}
	metrics.SetRunningProcesses(0)
}

func (r *Registry) count() int {
	r.mu.Lock()
	n := len(r.procs)
	r.mu.Unlock()
	return n
}

func (r *Registry) record(t history.EventType, st process.Status, exitErr error) {
	r.mu.Lock()
	sinks := append([]history.Sink(nil), r.sinks...)
	r.mu.Unlock()
	if len(sinks) == 0 {
		return
	}
	rec := history.Record{
		PID:       st.PID,
		Port:      st.Port,
		Script:    st.Script,
		StartedAt: st.StartedAt,
		Running:   st.Running,
	}
	if !st.StoppedAt.IsZero() {
		rec.StoppedAt.Time = st.StoppedAt
		rec.StoppedAt.Valid = true
	}
	if exitErr != nil {
		rec.ExitErr.String = exitErr.Error()
		rec.ExitErr.Valid = true
	}
	evt := history.Event{Type: t, OccurredAt: time.Now().UTC(), Record: rec}
	ctx := context.Background()
	for _, s := range sinks {
		_ = s.Send(ctx, evt)
	}
}

// resolveScript resolves the script path relative to cwd (or the daemon's
// working directory) and stat-checks it before anything is spawned.
func resolveScript(script, cwd string) (string, error) {
	p := script
	if !filepath.IsAbs(p) {
		base := cwd
		if base == "" {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			base = wd
		}
		p = filepath.Join(base, p)
	}
	p = filepath.Clean(p)
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("%s: %w", p, ErrScriptNotFound)
	}
	return p, nil
}
