package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/loykin/inspectr/internal/cdp"
)

// fakeClient scripts protocol behavior for the state machine.
type fakeClient struct {
	mu     sync.Mutex
	calls  []string
	events chan cdp.Event
	closed bool
	// onCall may fill result (via json.Unmarshal) or fail a request
	onCall func(method string, params, result any) error
}

func newFakeClient() *fakeClient {
	return &fakeClient{events: make(chan cdp.Event, 16)}
}

func (f *fakeClient) Call(ctx context.Context, method string, params, result any) error {
	f.mu.Lock()
	f.calls = append(f.calls, method)
	cb := f.onCall
	f.mu.Unlock()
	if cb != nil {
		return cb(method, params, result)
	}
	return nil
}

func (f *fakeClient) Events() <-chan cdp.Event { return f.events }

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

func (f *fakeClient) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeClient) called(method string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == method {
			return true
		}
	}
	return false
}

func pausedEvent(frameID string) cdp.Event {
	return cdp.Event{Kind: cdp.EventPaused, Frames: []cdp.CallFrame{{
		ID:           frameID,
		FunctionName: "main",
		URL:          "file:///tmp/a.js",
		Line:         4,
		Column:       0,
	}}}
}

// newAttachedSession attaches a session to a fake that pauses as soon as the
// implicit wait is released, mirroring debug-on-entry behavior.
func newAttachedSession(t *testing.T, fake *fakeClient) *Session {
	t.Helper()
	prev := fake.onCall
	fake.mu.Lock()
	fake.onCall = func(method string, params, result any) error {
		if method == "Runtime.runIfWaitingForDebugger" {
			fake.events <- cdp.Event{Kind: cdp.EventContextCreated, ContextID: 1}
			fake.events <- pausedEvent("frame-0")
			return nil
		}
		if prev != nil {
			return prev(method, params, result)
		}
		return nil
	}
	fake.mu.Unlock()

	s := New(Config{
		Dial:          func(ctx context.Context, port int) (ProtocolClient, error) { return fake, nil },
		AttachTimeout: 2 * time.Second,
	})
	if err := s.Attach(context.Background(), 9229); err != nil {
		t.Fatalf("attach: %v", err)
	}
	return s
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", s.State(), want)
}

func TestAttachEndsPausedWithCallStack(t *testing.T) {
	fake := newFakeClient()
	s := newAttachedSession(t, fake)

	if got := s.State(); got != StatePaused {
		t.Fatalf("state after attach = %v, want paused", got)
	}
	v := s.View()
	if !v.Paused || len(v.CallStack) == 0 {
		t.Fatalf("expected paused view with frames, got %+v", v)
	}
	if v.CallStack[0].Line != 5 {
		t.Fatalf("expected one-based line 5, got %d", v.CallStack[0].Line)
	}
	if v.ContextID != 1 {
		t.Fatalf("context id not tracked, view %+v", v)
	}
	for _, m := range []string{"Debugger.enable", "Runtime.enable", "Debugger.pause", "Runtime.runIfWaitingForDebugger"} {
		if !fake.called(m) {
			t.Fatalf("handshake skipped %s; calls %v", m, fake.calls)
		}
	}
}

func TestAttachTimesOutWithoutPause(t *testing.T) {
	fake := newFakeClient()
	s := New(Config{
		Dial:          func(ctx context.Context, port int) (ProtocolClient, error) { return fake, nil },
		AttachTimeout: 50 * time.Millisecond,
	})
	err := s.Attach(context.Background(), 9229)
	var perr *cdp.ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *cdp.ProtocolError on timeout, got %v", err)
	}
	if s.State() != StateDetached {
		t.Fatalf("state after failed attach = %v, want detached", s.State())
	}
	if !fake.isClosed() {
		t.Fatal("failed attach must close the connection")
	}
}

func TestAttachDialError(t *testing.T) {
	s := New(Config{
		Dial: func(ctx context.Context, port int) (ProtocolClient, error) {
			return nil, errors.New("connection refused")
		},
	})
	if err := s.Attach(context.Background(), 9229); err == nil {
		t.Fatal("expected dial error")
	}
	if s.State() != StateDetached {
		t.Fatalf("state = %v, want detached", s.State())
	}
}

func TestReattachReleasesOldConnection(t *testing.T) {
	fake1 := newFakeClient()
	s := newAttachedSession(t, fake1)

	fake2 := newFakeClient()
	fake2.onCall = func(method string, params, result any) error {
		if method == "Runtime.runIfWaitingForDebugger" {
			fake2.events <- pausedEvent("frame-0")
		}
		return nil
	}
	s.dial = func(ctx context.Context, port int) (ProtocolClient, error) { return fake2, nil }
	if err := s.Attach(context.Background(), 9230); err != nil {
		t.Fatalf("reattach: %v", err)
	}
	if !fake1.isClosed() {
		t.Fatal("old connection not closed on reattach")
	}
	if v := s.View(); v.Port != 9230 {
		t.Fatalf("view port = %d, want 9230", v.Port)
	}
}

func TestOperationsRequireSession(t *testing.T) {
	s := New(Config{Dial: func(ctx context.Context, port int) (ProtocolClient, error) { return nil, nil }})
	ctx := context.Background()
	if _, err := s.SetBreakpoint(ctx, BreakpointKey{URL: "file:///a.js", Line: 1}); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("SetBreakpoint: %v", err)
	}
	if err := s.Step(ctx, StepContinue); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("Step: %v", err)
	}
	if err := s.Pause(ctx); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("Pause: %v", err)
	}
	if _, err := s.Evaluate(ctx, "1+1"); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("Evaluate: %v", err)
	}
	if err := s.Detach(); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("Detach: %v", err)
	}
}

func TestSetBreakpointOverwritesSameKey(t *testing.T) {
	fake := newFakeClient()
	ids := []string{"1:0", "2:0"}
	n := 0
	prev := func(method string, params, result any) error {
		if method == "Debugger.setBreakpointByUrl" {
			id := ids[n]
			n++
			return json.Unmarshal([]byte(`{"breakpointId":"`+id+`"}`), result)
		}
		return nil
	}
	fake.onCall = prev
	s := newAttachedSession(t, fake)

	key := BreakpointKey{URL: "file:///tmp/a.js", Line: 5}
	id1, err := s.SetBreakpoint(context.Background(), key)
	if err != nil {
		t.Fatalf("first set: %v", err)
	}
	id2, err := s.SetBreakpoint(context.Background(), key)
	if err != nil {
		t.Fatalf("second set: %v", err)
	}
	if id1 == id2 {
		t.Fatalf("stub returned same id twice: %s", id1)
	}
	v := s.View()
	if len(v.Breakpoints) != 1 {
		t.Fatalf("same key must keep one entry, got %d", len(v.Breakpoints))
	}
	if v.Breakpoints[0].ID != id2 {
		t.Fatalf("second result is definitive, table has %s", v.Breakpoints[0].ID)
	}
}

func TestDetachClearsBreakpoints(t *testing.T) {
	fake := newFakeClient()
	fake.onCall = func(method string, params, result any) error {
		if method == "Debugger.setBreakpointByUrl" {
			return json.Unmarshal([]byte(`{"breakpointId":"1:0"}`), result)
		}
		return nil
	}
	s := newAttachedSession(t, fake)
	if _, err := s.SetBreakpoint(context.Background(), BreakpointKey{URL: "file:///tmp/a.js", Line: 5}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Detach(); err != nil {
		t.Fatalf("detach: %v", err)
	}
	if v := s.View(); len(v.Breakpoints) != 0 {
		t.Fatalf("breakpoint table survived detach: %+v", v.Breakpoints)
	}
	if !fake.isClosed() {
		t.Fatal("connection not closed on detach")
	}
}

func TestStepTransitionsFollowEvents(t *testing.T) {
	fake := newFakeClient()
	s := newAttachedSession(t, fake)

	if err := s.Step(context.Background(), StepContinue); err != nil {
		t.Fatalf("step: %v", err)
	}
	if !fake.called("Debugger.resume") {
		t.Fatalf("continue must issue Debugger.resume, calls %v", fake.calls)
	}
	// the request alone must not change the paused flag
	if s.State() != StatePaused {
		t.Fatalf("state flipped before the resumed event arrived: %v", s.State())
	}

	fake.events <- cdp.Event{Kind: cdp.EventResumed}
	waitState(t, s, StateRunning)
	if v := s.View(); v.Paused || len(v.CallStack) != 0 {
		t.Fatalf("resume must clear the call stack, view %+v", v)
	}

	fake.events <- pausedEvent("frame-1")
	waitState(t, s, StatePaused)
	if v := s.View(); len(v.CallStack) != 1 {
		t.Fatalf("pause must install the new stack, view %+v", v)
	}
}

func TestFramelessPausedEventIgnored(t *testing.T) {
	fake := newFakeClient()
	s := newAttachedSession(t, fake)

	fake.events <- cdp.Event{Kind: cdp.EventResumed}
	waitState(t, s, StateRunning)

	fake.events <- cdp.Event{Kind: cdp.EventPaused}
	// a later event proves the frameless one has been consumed
	fake.events <- cdp.Event{Kind: cdp.EventContextCreated, ContextID: 7}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && s.View().ContextID != 7 {
		time.Sleep(5 * time.Millisecond)
	}
	if v := s.View(); v.ContextID != 7 {
		t.Fatalf("context event not applied, view %+v", v)
	}
	if v := s.View(); v.Paused || len(v.CallStack) != 0 {
		t.Fatalf("pause without frames must not flip state, view %+v", v)
	}

	fake.events <- pausedEvent("frame-2")
	waitState(t, s, StatePaused)
	if v := s.View(); len(v.CallStack) != 1 {
		t.Fatalf("real pause must still install the stack, view %+v", v)
	}
}

func TestStepUnknownAction(t *testing.T) {
	fake := newFakeClient()
	s := newAttachedSession(t, fake)
	if err := s.Step(context.Background(), StepAction("sideways")); err == nil {
		t.Fatal("expected error for unknown action")
	}
}

func TestHandleProcessExitDetachesBoundPortOnly(t *testing.T) {
	fake := newFakeClient()
	s := newAttachedSession(t, fake)

	s.HandleProcessExit(9999)
	if s.State() == StateDetached {
		t.Fatal("exit of an unrelated port must not detach")
	}
	s.HandleProcessExit(9229)
	if s.State() != StateDetached {
		t.Fatalf("state = %v, want detached after debuggee exit", s.State())
	}
	if !fake.isClosed() {
		t.Fatal("connection not closed when the debuggee exits")
	}
}

func TestConnectionLossDetaches(t *testing.T) {
	fake := newFakeClient()
	s := newAttachedSession(t, fake)
	_ = fake.Close()
	waitState(t, s, StateDetached)
}
