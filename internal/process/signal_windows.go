//go:build windows

package process

import (
	"os"
	"os/exec"
)

func setProcGroup(cmd *exec.Cmd) {}

// Windows has no process groups in the POSIX sense; signal the process itself.
func terminateGroup(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	return p.Kill()
}

func killGroup(pid int) error { return terminateGroup(pid) }
