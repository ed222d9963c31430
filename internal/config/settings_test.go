package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadSettingsDefaults(t *testing.T) {
	// Point at a missing file in an empty directory so no user config leaks in.
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	s, err := LoadSettings("")
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	want := DefaultSettings()
	if *s != *want {
		t.Errorf("got %+v, want %+v", s, want)
	}
}

func TestLoadSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acqctl.yaml")
	content := `
state_dir: /var/lib/acqctl
log:
  level: debug
  file: acq.log
device:
  workers: 8
  save_latency: 5ms
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.StateDir != "/var/lib/acqctl" || s.Log.Level != "debug" || s.Log.File != "acq.log" {
		t.Errorf("unexpected settings %+v", s)
	}
	if s.Device.Workers != 8 || s.Device.SaveLatency != 5*time.Millisecond {
		t.Errorf("unexpected device settings %+v", s.Device)
	}
	if s.Device.SensorWidth != 2048 {
		t.Errorf("unset keys should keep defaults, got %+v", s.Device)
	}
}

func TestLoadSettingsEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("ACQCTL_LOG_LEVEL", "warn")
	t.Setenv("ACQCTL_DEVICE_WORKERS", "2")

	s, err := LoadSettings("")
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.Log.Level != "warn" {
		t.Errorf("expected level warn, got %q", s.Log.Level)
	}
	if s.Device.Workers != 2 {
		t.Errorf("expected 2 workers, got %d", s.Device.Workers)
	}
}

func TestLoadSettingsRejectsZeroWorkers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acqctl.yaml")
	if err := os.WriteFile(path, []byte("device:\n  workers: 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSettings(path); err == nil {
		t.Error("expected error for zero workers")
	}
}

func TestLoadSettingsMissingExplicitFile(t *testing.T) {
	if _, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit settings file")
	}
}
