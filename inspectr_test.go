package inspectr

import (
	"context"
	"testing"

	"github.com/loykin/inspectr/internal/config"
)

func TestLoadConfigDefaults(t *testing.T) {
	c, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.BasePort != config.DefaultBasePort || c.NodeBin != config.DefaultNodeBin {
		t.Fatalf("unexpected defaults %+v", c)
	}
}

func TestDaemonInitialState(t *testing.T) {
	d, err := New(config.Default())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer d.Shutdown()

	if got := len(d.List()); got != 0 {
		t.Fatalf("expected no processes, got %d", got)
	}
	v := d.Session()
	if v.Attached || v.Paused || v.State != "detached" {
		t.Fatalf("unexpected session view %+v", v)
	}
	if err := d.Kill(999999); err == nil {
		t.Fatal("expected error killing unknown pid")
	}
	if err := d.Pause(context.Background()); err == nil {
		t.Fatal("expected error pausing without a session")
	}
}

func TestDaemonWithSQLiteHistory(t *testing.T) {
	c := config.Default()
	c.History.SQLDSN = "sqlite://" + t.TempDir() + "/history.db"
	d, err := New(c)
	if err != nil {
		t.Fatalf("new with history sink: %v", err)
	}
	d.Shutdown()
}
