// Package session owns the single active debugger connection: its lifecycle,
// pause/run state, call-stack snapshot, execution context and breakpoint
// table. State transitions between running and paused are driven exclusively
// by inbound protocol events; requests only ask the debuggee to move.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/inspectr/internal/cdp"
	"github.com/loykin/inspectr/internal/history"
	"github.com/loykin/inspectr/internal/metrics"
)

// ErrNoActiveSession is returned by debug operations attempted while the
// session is not attached.
var ErrNoActiveSession = errors.New("no active debug session")

// DefaultAttachTimeout bounds the wait for the paused event that concludes
// the attach handshake.
const DefaultAttachTimeout = 5 * time.Second

// State is the session's connection state.
type State int

const (
	StateDetached State = iota
	StateAttaching
	StateRunning
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateDetached:
		return "detached"
	case StateAttaching:
		return "attaching"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

func (s State) attached() bool { return s == StateRunning || s == StatePaused }

// ProtocolClient is the connection surface the session drives. *cdp.Client
// satisfies it; tests substitute fakes.
type ProtocolClient interface {
	Call(ctx context.Context, method string, params, result any) error
	Events() <-chan cdp.Event
	Close() error
}

// DialFunc opens a protocol connection to the debuggee listening on port.
type DialFunc func(ctx context.Context, port int) (ProtocolClient, error)

// BreakpointKey identifies a breakpoint independent of the identifier the
// protocol assigns to it. Line is one-based.
type BreakpointKey struct {
	URL       string
	Line      int
	Condition string
}

// Config carries the session's construction parameters.
type Config struct {
	// Dial opens connections; defaults to the websocket client.
	Dial DialFunc
	// AttachTimeout bounds the attach handshake; defaults to
	// DefaultAttachTimeout.
	AttachTimeout time.Duration
}

// Session is the debug session state machine. All methods are safe for
// concurrent use.
type Session struct {
	dial          DialFunc
	attachTimeout time.Duration
	log           *slog.Logger
	sinks         []history.Sink

	mu          sync.Mutex
	state       State
	port        int
	client      ProtocolClient
	frames      []cdp.CallFrame
	contextID   int
	breakpoints map[BreakpointKey]string
	// generation invalidates event pumps and in-flight calls belonging to a
	// connection that has since been replaced.
	generation int
	// pausedCh is closed when a paused event lands and remade on resume.
	pausedCh chan struct{}
}

// Option configures a Session.
type Option func(*Session)

// WithHistorySinks attaches sinks receiving attach/detach/breakpoint events.
func WithHistorySinks(sinks ...history.Sink) Option {
	return func(s *Session) { s.sinks = append(s.sinks, sinks...) }
}

// New constructs a detached Session.
func New(cfg Config, opts ...Option) *Session {
	s := &Session{
		dial:          cfg.Dial,
		attachTimeout: cfg.AttachTimeout,
		log:           slog.Default(),
		breakpoints:   make(map[BreakpointKey]string),
	}
	if s.dial == nil {
		s.dial = func(ctx context.Context, port int) (ProtocolClient, error) {
			return cdp.Dial(ctx, port)
		}
	}
	if s.attachTimeout <= 0 {
		s.attachTimeout = DefaultAttachTimeout
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Attach connects to the debuggee on port and completes the debug-on-entry
// handshake. Any existing connection is released first. On return the session
// is paused with a call stack, or detached with the reported error.
//
// The debuggee sits in an implicit wait-for-debugger condition that is not a
// pause. The handshake forces a canonical paused state: enable the debugger
// and runtime domains with the event pump already running, ask for an
// explicit pause, release the implicit wait, then hold for the paused event.
// The pause and release requests tolerate failure since either may be moot
// depending on what the debuggee already did.
func (s *Session) Attach(ctx context.Context, port int) error {
	s.mu.Lock()
	s.detachLocked("reattach")
	s.setStateLocked(StateAttaching)
	s.port = port
	gen := s.generation
	s.mu.Unlock()

	client, err := s.dial(ctx, port)
	if err != nil {
		s.failAttach(gen)
		return fmt.Errorf("attach port %d: %w", port, err)
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		_ = client.Close()
		return errors.New("attach superseded")
	}
	s.client = client
	s.pausedCh = make(chan struct{})
	pausedCh := s.pausedCh
	s.mu.Unlock()

	go s.pump(gen, client.Events())

	for _, method := range []string{"Debugger.enable", "Runtime.enable"} {
		if err := client.Call(ctx, method, nil, nil); err != nil {
			s.failAttach(gen)
			return fmt.Errorf("%s: %w", method, err)
		}
	}
	_ = client.Call(ctx, "Debugger.pause", nil, nil)
	_ = client.Call(ctx, "Runtime.runIfWaitingForDebugger", nil, nil)

	timer := time.NewTimer(s.attachTimeout)
	defer timer.Stop()
	select {
	case <-pausedCh:
	case <-ctx.Done():
		s.failAttach(gen)
		return ctx.Err()
	case <-timer.C:
		s.failAttach(gen)
		return &cdp.ProtocolError{Message: fmt.Sprintf("no paused event within %s of attach", s.attachTimeout)}
	}

	metrics.IncAttach()
	s.record(history.EventAttach, port, fmt.Sprintf("attached to port %d", port))
	s.log.Info("attached", "port", port)
	return nil
}

// Detach closes the connection and resets the session.
func (s *Session) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDetached {
		return ErrNoActiveSession
	}
	port := s.port
	s.detachLocked("explicit detach")
	s.record(history.EventDetach, port, "explicit detach")
	return nil
}

// HandleProcessExit detaches the session when the exiting debuggee owns the
// bound port. Exits of unrelated processes are ignored.
func (s *Session) HandleProcessExit(port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDetached || s.port != port {
		return
	}
	s.detachLocked("debuggee exited")
	s.record(history.EventDetach, port, "debuggee exited")
}

// SetBreakpoint registers a breakpoint with the debuggee and records the
// assigned identifier under key. Re-setting an existing key overwrites its
// stored identifier. Valid while attached, running or paused.
func (s *Session) SetBreakpoint(ctx context.Context, key BreakpointKey) (string, error) {
	s.mu.Lock()
	if !s.state.attached() {
		s.mu.Unlock()
		return "", ErrNoActiveSession
	}
	client := s.client
	gen := s.generation
	port := s.port
	s.mu.Unlock()

	params := struct {
		URL        string `json:"url"`
		LineNumber int    `json:"lineNumber"`
		Condition  string `json:"condition,omitempty"`
	}{URL: key.URL, LineNumber: key.Line - 1, Condition: key.Condition}
	var result struct {
		BreakpointID string `json:"breakpointId"`
	}
	if err := client.Call(ctx, "Debugger.setBreakpointByUrl", params, &result); err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.generation == gen {
		s.breakpoints[key] = result.BreakpointID
	}
	s.mu.Unlock()

	metrics.IncBreakpointSet()
	s.record(history.EventBreakpoint, port, fmt.Sprintf("%s:%d -> %s", key.URL, key.Line, result.BreakpointID))
	s.log.Info("breakpoint set", "url", key.URL, "line", key.Line, "id", result.BreakpointID)
	return result.BreakpointID, nil
}

// StepAction names a stepping request.
type StepAction string

const (
	StepNext     StepAction = "next"     // step over
	StepInto     StepAction = "step"     // step into
	StepContinue StepAction = "continue" // resume
	StepOut      StepAction = "out"      // step out
)

var stepMethods = map[StepAction]string{
	StepNext:     "Debugger.stepOver",
	StepInto:     "Debugger.stepInto",
	StepContinue: "Debugger.resume",
	StepOut:      "Debugger.stepOut",
}

// Step issues the stepping request named by action. The paused flag changes
// only when the matching protocol event arrives, not on return.
func (s *Session) Step(ctx context.Context, action StepAction) error {
	method, ok := stepMethods[action]
	if !ok {
		return fmt.Errorf("unknown step action %q", action)
	}
	s.mu.Lock()
	if !s.state.attached() {
		s.mu.Unlock()
		return ErrNoActiveSession
	}
	client := s.client
	s.mu.Unlock()
	return client.Call(ctx, method, nil, nil)
}

// Pause asks the debuggee to pause. The session moves to paused only when
// the event confirming it arrives.
func (s *Session) Pause(ctx context.Context) error {
	s.mu.Lock()
	if !s.state.attached() {
		s.mu.Unlock()
		return ErrNoActiveSession
	}
	client := s.client
	s.mu.Unlock()
	return client.Call(ctx, "Debugger.pause", nil, nil)
}

// failAttach resets to detached unless a newer attach has taken over.
func (s *Session) failAttach(gen int) {
	s.mu.Lock()
	if s.generation == gen {
		s.detachLocked("attach failed")
	}
	s.mu.Unlock()
}

// detachLocked closes the connection best-effort and resets every piece of
// session state, breakpoint table included. Bumping the generation makes the
// old event pump and any in-flight call results stale.
func (s *Session) detachLocked(reason string) {
	if s.client != nil {
		_ = s.client.Close()
		s.client = nil
	}
	if s.state != StateDetached {
		metrics.IncDetach()
		s.log.Info("detached", "port", s.port, "reason", reason)
	}
	s.setStateLocked(StateDetached)
	s.port = 0
	s.frames = nil
	s.contextID = 0
	s.breakpoints = make(map[BreakpointKey]string)
	s.pausedCh = nil
	s.generation++
}

func (s *Session) setStateLocked(st State) {
	s.state = st
	for _, x := range []State{StateDetached, StateAttaching, StateRunning, StatePaused} {
		metrics.SetSessionState(x.String(), x == st)
	}
}

// pump applies protocol events to session state until the connection's event
// channel closes, which signals a lost connection and forces a detach.
func (s *Session) pump(gen int, events <-chan cdp.Event) {
	for evt := range events {
		s.mu.Lock()
		if s.generation != gen {
			s.mu.Unlock()
			return
		}
		s.applyLocked(evt)
		s.mu.Unlock()
	}
	s.mu.Lock()
	if s.generation == gen && s.state != StateDetached {
		s.detachLocked("connection lost")
	}
	s.mu.Unlock()
}

// applyLocked is the only place the paused flag and the call stack change,
// so they always transition together.
func (s *Session) applyLocked(evt cdp.Event) {
	metrics.IncProtocolEvent(evt.Kind.String())
	switch evt.Kind {
	case cdp.EventPaused:
		// Paused means a non-empty call stack; a frameless pause report
		// carries nothing inspectable and is dropped.
		if len(evt.Frames) == 0 {
			return
		}
		s.frames = evt.Frames
		s.setStateLocked(StatePaused)
		s.markPausedLocked()
	case cdp.EventResumed:
		s.frames = nil
		s.setStateLocked(StateRunning)
		s.pausedCh = make(chan struct{})
	case cdp.EventContextCreated:
		s.contextID = evt.ContextID
	case cdp.EventContextDestroyed:
		if s.contextID == evt.ContextID {
			s.contextID = 0
		}
	}
}

func (s *Session) markPausedLocked() {
	if s.pausedCh == nil {
		s.pausedCh = make(chan struct{})
	}
	select {
	case <-s.pausedCh:
	default:
		close(s.pausedCh)
	}
}

func (s *Session) record(t history.EventType, port int, detail string) {
	if len(s.sinks) == 0 {
		return
	}
	evt := history.Event{
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Record:     history.Record{Port: port, Detail: detail},
	}
	ctx := context.Background()
	for _, sink := range s.sinks {
		_ = sink.Send(ctx, evt)
	}
}
