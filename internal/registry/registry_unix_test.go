//go:build !windows

package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/inspectr/internal/ports"
	"github.com/loykin/inspectr/internal/process"
)

func newTestRegistry(t *testing.T, base int, opts ...Option) *Registry {
	t.Helper()
	// stand-in runtime: drops the inspector flag and runs the script with sh
	runner := filepath.Join(t.TempDir(), "runner.sh")
	if err := os.WriteFile(runner, []byte("#!/bin/sh\nshift\nexec /bin/sh \"$@\"\n"), 0o755); err != nil {
		t.Fatalf("write runner: %v", err)
	}
	// probe disabled so tests never depend on host listeners
	var r *Registry
	alloc := ports.NewAllocator(base,
		ports.WithProbe(func(int) bool { return false }),
		ports.WithInUse(func(p int) bool { return r.PortInUse(p) }),
	)
	r = New(Config{BasePort: base, NodeBin: runner}, append(opts, WithAllocator(alloc))...)
	return r
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "app.sh")
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return p
}

func TestLaunchScriptNotFound(t *testing.T) {
	r := newTestRegistry(t, 9400)
	if _, err := r.Launch("does-not-exist.js", nil, t.TempDir()); !errors.Is(err, ErrScriptNotFound) {
		t.Fatalf("expected ErrScriptNotFound, got %v", err)
	}
	if got := len(r.List()); got != 0 {
		t.Fatalf("failed launch must not register entries, got %d", got)
	}
}

func TestTerminateUnknownPID(t *testing.T) {
	r := newTestRegistry(t, 9400)
	if err := r.Terminate(999999); !errors.Is(err, ErrProcessNotFound) {
		t.Fatalf("expected ErrProcessNotFound, got %v", err)
	}
}

func TestLaunchAssignsDistinctPorts(t *testing.T) {
	r := newTestRegistry(t, 9400)
	script := writeScript(t, "sleep 5")

	seen := make(map[int]bool)
	var pids []int
	for i := 0; i < 3; i++ {
		st, err := r.Launch(script, nil, "")
		if err != nil {
			t.Fatalf("launch %d: %v", i, err)
		}
		if seen[st.Port] {
			t.Fatalf("port %d assigned twice", st.Port)
		}
		seen[st.Port] = true
		pids = append(pids, st.PID)
		if !r.PortInUse(st.Port) {
			t.Fatalf("port %d not reported in use", st.Port)
		}
	}
	for _, pid := range pids {
		if err := r.Terminate(pid); err != nil {
			t.Fatalf("terminate %d: %v", pid, err)
		}
	}
}

func TestExitObserverRemovesEntryOnce(t *testing.T) {
	r := newTestRegistry(t, 9400)

	exits := make(chan process.Status, 1)
	r.SubscribeExit(func(st process.Status) { exits <- st })

	script := writeScript(t, "exit 0")
	st, err := r.Launch(script, nil, "")
	if err != nil {
		t.Fatalf("launch: %v", err)
	}

	var exited process.Status
	select {
	case exited = <-exits:
	case <-time.After(3 * time.Second):
		t.Fatal("exit observer did not fire")
	}
	if exited.PID != st.PID {
		t.Fatalf("exit for pid %d, launched %d", exited.PID, st.PID)
	}
	if exited.Running {
		t.Fatal("exit status still marked running")
	}

	waitGone(t, r, st.PID)
	if r.PortInUse(st.Port) {
		t.Fatalf("port %d still claimed after exit", st.Port)
	}
	// second kill on the reaped pid reports not found
	if err := r.Terminate(st.PID); !errors.Is(err, ErrProcessNotFound) {
		t.Fatalf("expected ErrProcessNotFound after exit, got %v", err)
	}
}

func TestTerminateRacesExitObserver(t *testing.T) {
	r := newTestRegistry(t, 9400)
	exits := make(chan process.Status, 2)
	r.SubscribeExit(func(st process.Status) { exits <- st })

	script := writeScript(t, "sleep 5")
	st, err := r.Launch(script, nil, "")
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if err := r.Terminate(st.PID); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	select {
	case <-exits:
	case <-time.After(3 * time.Second):
		t.Fatal("terminated process never reaped")
	}
	waitGone(t, r, st.PID)
	select {
	case st2 := <-exits:
		t.Fatalf("exit observer fired twice: %+v", st2)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestShutdownClearsTable(t *testing.T) {
	r := newTestRegistry(t, 9400)
	script := writeScript(t, "sleep 5")
	if _, err := r.Launch(script, nil, ""); err != nil {
		t.Fatalf("launch: %v", err)
	}
	r.Shutdown()
	if got := len(r.List()); got != 0 {
		t.Fatalf("expected empty table after shutdown, got %d entries", got)
	}
}

func waitGone(t *testing.T, r *Registry, pid int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := r.Get(pid); errors.Is(err, ErrProcessNotFound) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("pid %d still registered", pid)
}
