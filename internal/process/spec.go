package process

import (
	"fmt"
	"os/exec"

	"github.com/loykin/inspectr/internal/logger"
)

// DefaultNodeBin is used when a spec does not name the runtime binary.
const DefaultNodeBin = "node"

// Spec describes a debuggee to be launched under inspector control.
type Spec struct {
	Name      string        `json:"name"`       // display name; defaults to the script base name
	Script    string        `json:"script"`     // resolved absolute script path
	Args      []string      `json:"args"`       // script arguments
	WorkDir   string        `json:"work_dir"`   // optional working dir
	Env       []string      `json:"env"`        // optional extra env
	NodeBin   string        `json:"node_bin"`   // runtime binary, default "node"
	DebugPort int           `json:"debug_port"` // inspector port embedded in the launch flag
	Log       logger.Config `json:"log"`        // debuggee stdout/stderr destinations
}

// BuildCommand constructs the *exec.Cmd for the spec. The debug-on-entry flag
// binds the inspector to loopback on the assigned port and halts the runtime
// before its first statement until a debugger releases it. A non-positive
// port launches the script without the inspector.
func (s *Spec) BuildCommand() *exec.Cmd {
	bin := s.NodeBin
	if bin == "" {
		bin = DefaultNodeBin
	}
	args := make([]string, 0, len(s.Args)+2)
	if s.DebugPort > 0 {
		args = append(args, fmt.Sprintf("--inspect-brk=127.0.0.1:%d", s.DebugPort))
	}
	args = append(args, s.Script)
	args = append(args, s.Args...)
	// #nosec G204 -- script path is resolved and stat-checked by the registry
	return exec.Command(bin, args...)
}
