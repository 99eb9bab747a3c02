package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if cfg.Detect.IQRK != nil || cfg.History.Enabled != nil {
		t.Fatalf("expected empty config, got %+v", cfg)
	}
}

func TestLoadConfigSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[detect]
exclude = ["iqr", "diff"]
iqr-k = 3.0

[channels]
max = 8191

[history]
enabled = false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Detect.Exclude == nil {
		t.Fatalf("expected exclude list")
	}
	if diff := cmp.Diff([]string{"iqr", "diff"}, *cfg.Detect.Exclude); diff != "" {
		t.Fatalf("exclude mismatch (-want +got):\n%s", diff)
	}
	if *cfg.Detect.IQRK != 3.0 || *cfg.Channels.Max != 8191 || *cfg.History.Enabled {
		t.Fatalf("unexpected values: %+v", cfg)
	}
	if cfg.Detect.TSDiff != nil {
		t.Fatalf("unset keys must stay nil")
	}
}

func TestLoadConfigUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[detect]\niqr = 2\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestResolvePaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "cfg"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("DT5202FIX_CONFIG", "")
	t.Setenv("DT5202FIX_DB", filepath.Join(dir, "custom.db"))

	p, err := ResolvePaths()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := Paths{
		Config: filepath.Join(dir, "cfg", "dt5202fix", "config.toml"),
		DB:     filepath.Join(dir, "custom.db"),
	}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Fatalf("paths mismatch (-want +got):\n%s", diff)
	}
}
