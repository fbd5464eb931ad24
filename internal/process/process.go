package process

import (
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Status is an externally consumable snapshot of one debuggee.
type Status struct {
	Name      string    `json:"name"`
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	Script    string    `json:"script"`
	Args      []string  `json:"args"`
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	ExitErr   error     `json:"-"`
}

// Process owns one spawned debuggee. All state is guarded by mu; accessors
// keep locking internal so callers never hold the lock across I/O.
type Process struct {
	mu        sync.Mutex
	spec      Spec
	cmd       *exec.Cmd
	status    Status
	stopping  bool
	outCloser io.WriteCloser
	errCloser io.WriteCloser
	waitDone  chan struct{} // closed by the exit observer when cmd.Wait returns
}

// New creates a Process for the given spec without starting it.
func New(spec Spec) *Process { return &Process{spec: spec} }

// ConfigureCmd builds the *exec.Cmd: workdir, env, stdio destinations and a
// dedicated process group so signals reach the whole debuggee tree.
func (p *Process) ConfigureCmd() *exec.Cmd {
	p.mu.Lock()
	spec := p.spec
	p.mu.Unlock()

	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	setProcGroup(cmd)

	if spec.Log.Dir != "" || spec.Log.StdoutPath != "" || spec.Log.StderrPath != "" {
		if spec.Log.Dir != "" {
			_ = os.MkdirAll(spec.Log.Dir, 0o750)
		}
		outW, errW, _ := spec.Log.Writers(spec.Name)
		p.mu.Lock()
		p.outCloser, p.errCloser = outW, errW
		p.mu.Unlock()
		cmd.Stdout = writerOrNull(outW)
		cmd.Stderr = writerOrNull(errW)
	} else {
		null, _ := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		cmd.Stdout = null
		cmd.Stderr = null
	}
	return cmd
}

func writerOrNull(w io.WriteCloser) io.Writer {
	if w != nil {
		return w
	}
	null, _ := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	return null
}

// TryStart starts the command and records running state atomically.
func (p *Process) TryStart(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	p.mu.Lock()
	p.cmd = cmd
	p.waitDone = make(chan struct{})
	p.status = Status{
		Name:      p.spec.Name,
		PID:       cmd.Process.Pid,
		Port:      p.spec.DebugPort,
		Script:    p.spec.Script,
		Args:      append([]string(nil), p.spec.Args...),
		Running:   true,
		StartedAt: time.Now(),
	}
	p.stopping = false
	p.mu.Unlock()
	return nil
}

// Wait blocks until the debuggee exits and finalizes status. It must be
// called exactly once, by the registry's exit observer.
func (p *Process) Wait() error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	var err error
	if cmd != nil {
		err = cmd.Wait()
	}
	p.mu.Lock()
	p.status.Running = false
	p.status.StoppedAt = time.Now()
	p.status.ExitErr = err
	if p.waitDone != nil {
		close(p.waitDone)
		p.waitDone = nil
	}
	out, errW := p.outCloser, p.errCloser
	p.outCloser, p.errCloser = nil, nil
	p.mu.Unlock()
	if out != nil {
		_ = out.Close()
	}
	if errW != nil {
		_ = errW.Close()
	}
	return err
}

// WaitDoneChan returns the channel closed when the exit observer reaps the
// process, or nil when the process is not running.
func (p *Process) WaitDoneChan() chan struct{} {
	p.mu.Lock()
	wd := p.waitDone
	p.mu.Unlock()
	return wd
}

// Terminate sends SIGTERM to the debuggee's process group. It does not wait
// for the exit observer; repeated calls are no-ops once the process is gone.
func (p *Process) Terminate() error {
	p.mu.Lock()
	p.stopping = true
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return terminateGroup(cmd.Process.Pid)
}

// Kill escalates to SIGKILL on the process group.
func (p *Process) Kill() error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return killGroup(cmd.Process.Pid)
}

// StopRequested reports whether Terminate was called for this run.
func (p *Process) StopRequested() bool {
	p.mu.Lock()
	v := p.stopping
	p.mu.Unlock()
	return v
}

// Spec returns a copy of the launch spec.
func (p *Process) Spec() Spec {
	p.mu.Lock()
	s := p.spec
	p.mu.Unlock()
	return s
}

// Snapshot returns a copy of the current status.
func (p *Process) Snapshot() Status {
	p.mu.Lock()
	s := p.status
	p.mu.Unlock()
	return s
}
