package process

import (
	"strings"
	"testing"
)

func TestBuildCommandInspectFlag(t *testing.T) {
	s := Spec{Script: "/tmp/app.js", DebugPort: 9229, Args: []string{"--verbose"}}
	cmd := s.BuildCommand()
	if got := cmd.Args[0]; got != DefaultNodeBin {
		t.Fatalf("expected default binary %q, got %q", DefaultNodeBin, got)
	}
	if got := cmd.Args[1]; got != "--inspect-brk=127.0.0.1:9229" {
		t.Fatalf("unexpected inspect flag %q", got)
	}
	if got := cmd.Args[2]; got != "/tmp/app.js" {
		t.Fatalf("expected script after flag, got %q", got)
	}
	if got := cmd.Args[3]; got != "--verbose" {
		t.Fatalf("expected script args last, got %q", got)
	}
}

func TestBuildCommandWithoutPort(t *testing.T) {
	s := Spec{Script: "/tmp/app.js", NodeBin: "/bin/sh"}
	cmd := s.BuildCommand()
	for _, a := range cmd.Args {
		if strings.HasPrefix(a, "--inspect-brk") {
			t.Fatalf("non-positive port must not add the inspect flag, got %v", cmd.Args)
		}
	}
	if cmd.Args[0] != "/bin/sh" || cmd.Args[1] != "/tmp/app.js" {
		t.Fatalf("unexpected argv %v", cmd.Args)
	}
}
