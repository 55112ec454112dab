package config

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

// ---------- Load ----------

// writeConfig creates a temporary YAML file with the given content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
link:
  device: /dev/ttyAMA0
  baud: 115200
pins:
  clutch: 2
  motor: 3
  direction_a: 4
  direction_b: 5
  interlock: 6
  optic: 7
advance:
  poll_interval_ms: 5
  max_polls: 800
  low_edges: 2
defaults:
  wait_slice_ms: 10
  optic_samples: 60
  optic_period_ms: 500
  debug_level: 1
  mock_gpio: true
`

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Link.Device != "/dev/ttyAMA0" {
		t.Errorf("link.device = %q, want /dev/ttyAMA0", cfg.Link.Device)
	}
	if cfg.Link.Baud != 115200 {
		t.Errorf("link.baud = %d, want 115200", cfg.Link.Baud)
	}
	if cfg.Pins.Clutch != 2 || cfg.Pins.Optic != 7 {
		t.Errorf("pins = %+v, want reference harness assignment", cfg.Pins)
	}
	if cfg.Advance.MaxPolls != 800 {
		t.Errorf("advance.max_polls = %d, want 800", cfg.Advance.MaxPolls)
	}
	if cfg.Defaults.DebugLevel != 1 {
		t.Errorf("debug_level = %d, want 1", cfg.Defaults.DebugLevel)
	}
	if !cfg.Defaults.MockGPIO {
		t.Error("mock_gpio = false, want true")
	}
}

func TestLoad_MissingDevice(t *testing.T) {
	yaml := `
defaults:
  debug_level: 1
`
	path := writeConfig(t, yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error for missing link.device, got nil")
	}
}

func TestLoad_StdioModeNeedsNoDevice(t *testing.T) {
	yaml := `
link:
  stdio: true
`
	path := writeConfig(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Link.Stdio {
		t.Error("link.stdio = false, want true")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	yaml := `
link:
  stdio: true
`
	path := writeConfig(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Link.Baud != 115200 {
		t.Errorf("baud default = %d, want 115200", cfg.Link.Baud)
	}
	wantPins := PinConfig{Clutch: 2, Motor: 3, DirectionA: 4, DirectionB: 5, Interlock: 6, Optic: 7}
	if cfg.Pins != wantPins {
		t.Errorf("pin defaults = %+v, want %+v", cfg.Pins, wantPins)
	}
	if cfg.Advance.PollIntervalMs != 5 {
		t.Errorf("poll_interval_ms default = %d, want 5", cfg.Advance.PollIntervalMs)
	}
	if cfg.Advance.MaxPolls != 800 {
		t.Errorf("max_polls default = %d, want 800", cfg.Advance.MaxPolls)
	}
	if cfg.Advance.LowEdges != 2 {
		t.Errorf("low_edges default = %d, want 2", cfg.Advance.LowEdges)
	}
	if cfg.Defaults.WaitSliceMs != 10 {
		t.Errorf("wait_slice_ms default = %d, want 10", cfg.Defaults.WaitSliceMs)
	}
	if cfg.Defaults.OpticSamples != 60 {
		t.Errorf("optic_samples default = %d, want 60", cfg.Defaults.OpticSamples)
	}
	if cfg.Defaults.OpticPeriodMs != 500 {
		t.Errorf("optic_period_ms default = %d, want 500", cfg.Defaults.OpticPeriodMs)
	}
}

func TestLoad_DuplicatePins(t *testing.T) {
	yaml := `
link:
  stdio: true
pins:
  clutch: 3
  motor: 3
`
	path := writeConfig(t, yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error for duplicate pin assignment, got nil")
	}
}

func TestLoad_LowEdgesOutOfRange(t *testing.T) {
	yaml := `
link:
  stdio: true
advance:
  low_edges: 11
`
	path := writeConfig(t, yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error for low_edges > 10, got nil")
	}
}

func TestLoad_DebugLevelOutOfRange(t *testing.T) {
	cases := []struct {
		name  string
		level int
	}{
		{"negative", -1},
		{"over_4", 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			yaml := `
link:
  stdio: true
defaults:
  debug_level: ` + strconv.Itoa(tc.level)
			path := writeConfig(t, yaml)
			if _, err := Load(path); err == nil {
				t.Errorf("expected error for debug_level=%d, got nil", tc.level)
			}
		})
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "{{{{invalid yaml!!!!")
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeConfig(t, "")
	if _, err := Load(path); err == nil {
		t.Error("expected error for empty config (link.device missing), got nil")
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	yaml := `
link:
  stdio: true
unknown_section:
  foo: bar
`
	path := writeConfig(t, yaml)
	if _, err := Load(path); err != nil {
		t.Errorf("unknown fields should be ignored, got error: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonexistent.yaml")
	if _, err := Load(path); err == nil {
		t.Error("expected error for nonexistent file, got nil")
	}
}

// ---------- Helper methods ----------

func TestConfig_PollInterval(t *testing.T) {
	cfg := &Config{Advance: AdvanceConfig{PollIntervalMs: 5}}
	if got, want := cfg.PollInterval(), 5*time.Millisecond; got != want {
		t.Errorf("PollInterval() = %v, want %v", got, want)
	}
}

func TestConfig_WaitSlice(t *testing.T) {
	cfg := &Config{Defaults: DefaultsConfig{WaitSliceMs: 10}}
	if got, want := cfg.WaitSlice(), 10*time.Millisecond; got != want {
		t.Errorf("WaitSlice() = %v, want %v", got, want)
	}
}

func TestConfig_OpticPeriod(t *testing.T) {
	cfg := &Config{Defaults: DefaultsConfig{OpticPeriodMs: 500}}
	if got, want := cfg.OpticPeriod(), 500*time.Millisecond; got != want {
		t.Errorf("OpticPeriod() = %v, want %v", got, want)
	}
}

func TestConfig_AdvanceBudget(t *testing.T) {
	cfg := &Config{Advance: AdvanceConfig{PollIntervalMs: 5, MaxPolls: 800}}
	if got, want := cfg.AdvanceBudget(), 4*time.Second; got != want {
		t.Errorf("AdvanceBudget() = %v, want %v", got, want)
	}
}
