package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LinkConfig describes the host serial link.
type LinkConfig struct {
	Device string `yaml:"device"` // serial device, e.g. /dev/ttyAMA0
	Baud   int    `yaml:"baud"`   // line speed (default 115200)
	Stdio  bool   `yaml:"stdio"`  // bench mode: stdin/stdout instead of a serial port
}

// PinConfig holds the BCM pin assignment for the projector harness.
// Outputs drive relay boards; inputs come from the tension switch and the
// optic sensor board.
type PinConfig struct {
	Clutch     int `yaml:"clutch"`      // clutch/brake relay
	Motor      int `yaml:"motor"`       // drive motor relay
	DirectionA int `yaml:"direction_a"` // direction relay pair, always written together
	DirectionB int `yaml:"direction_b"`
	Interlock  int `yaml:"interlock"` // film tension switch, high = film seated
	Optic      int `yaml:"optic"`     // cell position photodetector
}

// AdvanceConfig carries the cell-advance loop tuning. The defaults are the
// empirically tuned rig constants; override them only on a different
// projector mechanism.
type AdvanceConfig struct {
	PollIntervalMs int `yaml:"poll_interval_ms"` // optic sampling period
	MaxPolls       int `yaml:"max_polls"`        // iteration budget per attempt
	LowEdges       int `yaml:"low_edges"`        // transitions into low confirming a cell
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	WaitSliceMs   int  `yaml:"wait_slice_ms"`   // cooperative wait / idle poll slice
	OpticSamples  int  `yaml:"optic_samples"`   // bench diagnostic session length
	OpticPeriodMs int  `yaml:"optic_period_ms"` // bench diagnostic sampling period
	DebugLevel    int  `yaml:"debug_level"`     // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO      bool `yaml:"mock_gpio"`       // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all daemon configuration.
type Config struct {
	Link     LinkConfig     `yaml:"link"`
	Pins     PinConfig      `yaml:"pins"`
	Advance  AdvanceConfig  `yaml:"advance"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	// Basic validation
	if !cfg.Link.Stdio && cfg.Link.Device == "" {
		return nil, fmt.Errorf("link.device is required (or set link.stdio: true)")
	}
	if cfg.Link.Baud <= 0 {
		cfg.Link.Baud = 115200
	}

	// Pin defaults match the reference harness.
	if cfg.Pins.Clutch <= 0 {
		cfg.Pins.Clutch = 2
	}
	if cfg.Pins.Motor <= 0 {
		cfg.Pins.Motor = 3
	}
	if cfg.Pins.DirectionA <= 0 {
		cfg.Pins.DirectionA = 4
	}
	if cfg.Pins.DirectionB <= 0 {
		cfg.Pins.DirectionB = 5
	}
	if cfg.Pins.Interlock <= 0 {
		cfg.Pins.Interlock = 6
	}
	if cfg.Pins.Optic <= 0 {
		cfg.Pins.Optic = 7
	}
	seen := map[int]string{}
	for name, pin := range map[string]int{
		"clutch":      cfg.Pins.Clutch,
		"motor":       cfg.Pins.Motor,
		"direction_a": cfg.Pins.DirectionA,
		"direction_b": cfg.Pins.DirectionB,
		"interlock":   cfg.Pins.Interlock,
		"optic":       cfg.Pins.Optic,
	} {
		if other, dup := seen[pin]; dup {
			return nil, fmt.Errorf("pins.%s and pins.%s share pin %d", other, name, pin)
		}
		seen[pin] = name
	}

	if cfg.Advance.PollIntervalMs <= 0 {
		cfg.Advance.PollIntervalMs = 5
	}
	if cfg.Advance.MaxPolls <= 0 {
		cfg.Advance.MaxPolls = 800
	}
	if cfg.Advance.LowEdges <= 0 {
		cfg.Advance.LowEdges = 2
	}
	if cfg.Advance.LowEdges > 10 {
		return nil, fmt.Errorf("advance.low_edges must be between 1 and 10, got %d", cfg.Advance.LowEdges)
	}

	if cfg.Defaults.WaitSliceMs <= 0 {
		cfg.Defaults.WaitSliceMs = 10
	}
	if cfg.Defaults.OpticSamples <= 0 {
		cfg.Defaults.OpticSamples = 60
	}
	if cfg.Defaults.OpticPeriodMs <= 0 {
		cfg.Defaults.OpticPeriodMs = 500
	}
	if cfg.Defaults.DebugLevel < 0 || cfg.Defaults.DebugLevel > 4 {
		return nil, fmt.Errorf("debug_level must be between 0 and 4, got %d", cfg.Defaults.DebugLevel)
	}

	return &cfg, nil
}

// PollInterval returns the advance loop's optic sampling period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Advance.PollIntervalMs) * time.Millisecond
}

// WaitSlice returns the cooperative wait slice duration.
func (c *Config) WaitSlice() time.Duration {
	return time.Duration(c.Defaults.WaitSliceMs) * time.Millisecond
}

// OpticPeriod returns the bench diagnostic sampling period.
func (c *Config) OpticPeriod() time.Duration {
	return time.Duration(c.Defaults.OpticPeriodMs) * time.Millisecond
}

// AdvanceBudget returns the worst-case duration of one advance attempt.
func (c *Config) AdvanceBudget() time.Duration {
	return time.Duration(c.Advance.MaxPolls) * c.PollInterval()
}
