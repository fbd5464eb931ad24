package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEmptyPathYieldsDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.BasePort != DefaultBasePort {
		t.Fatalf("base_port = %d, want %d", c.BasePort, DefaultBasePort)
	}
	if c.NodeBin != DefaultNodeBin {
		t.Fatalf("node_bin = %q, want %q", c.NodeBin, DefaultNodeBin)
	}
	if c.AttachTimeout != DefaultAttachTimeout {
		t.Fatalf("attach_timeout = %v, want %v", c.AttachTimeout, DefaultAttachTimeout)
	}
	if c.Server.Listen != DefaultListen || c.Server.BasePath != DefaultBasePath {
		t.Fatalf("server defaults missing: %+v", c.Server)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
base_port = 9500
node_bin = "/usr/local/bin/node"
attach_timeout = "2s"

[log]
level = "debug"
color = true

[debuggee_log]
dir = "/var/log/inspectr"
max_size_mb = 5

[server]
enabled = true
listen = "127.0.0.1:9000"
base_path = "/api"

[metrics]
enabled = true

[history]
sql_dsn = "sqlite:///tmp/history.db"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.BasePort != 9500 || c.NodeBin != "/usr/local/bin/node" {
		t.Fatalf("top-level fields: %+v", c)
	}
	if c.AttachTimeout != 2*time.Second {
		t.Fatalf("attach_timeout = %v", c.AttachTimeout)
	}
	if c.Log.Level != "debug" || !c.Log.Color {
		t.Fatalf("log config: %+v", c.Log)
	}
	if c.DebuggeeLog.Dir != "/var/log/inspectr" || c.DebuggeeLog.MaxSizeMB != 5 {
		t.Fatalf("debuggee_log config: %+v", c.DebuggeeLog)
	}
	if !c.Server.Enabled || c.Server.Listen != "127.0.0.1:9000" || c.Server.BasePath != "/api" {
		t.Fatalf("server config: %+v", c.Server)
	}
	if !c.Metrics.Enabled || c.Metrics.Listen != DefaultMetricsListen {
		t.Fatalf("metrics config: %+v", c.Metrics)
	}
	if c.History.SQLDSN != "sqlite:///tmp/history.db" || c.History.ClickHouseTable != "debug_history" {
		t.Fatalf("history config: %+v", c.History)
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("base_port = 70000\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for out-of-range port")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
