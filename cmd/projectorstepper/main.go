package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/PiusChristSuperstar/ProjectorStepper/internal/config"
	"github.com/PiusChristSuperstar/ProjectorStepper/internal/debug"
	"github.com/PiusChristSuperstar/ProjectorStepper/internal/hw/gpio"
	"github.com/PiusChristSuperstar/ProjectorStepper/internal/hw/link"
	"github.com/PiusChristSuperstar/ProjectorStepper/internal/hw/projector"
	"github.com/PiusChristSuperstar/ProjectorStepper/internal/logic/advance"
	"github.com/PiusChristSuperstar/ProjectorStepper/internal/logic/control"
	"github.com/PiusChristSuperstar/ProjectorStepper/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	pflag.Var(webPort, "web", "start web monitor on port; --web= for default 8080, --web 8980 for custom port")
	cfgPath := pflag.StringP("config", "c", filepath.Join("configs", "default.yaml"), "path to config file")
	device := pflag.StringP("device", "d", "", "override serial device from config")
	stdio := pflag.Bool("stdio", false, "drive the protocol over stdin/stdout instead of a serial device")
	debugLevel := pflag.Int("debug", -1, "override debug level (0-4); -1 keeps the config value")
	pflag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Validate CLI overrides (unset values mean "use config")
	if err := validateCLIOverrides(*debugLevel); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}

	// Apply CLI overrides to config
	applyOverrides(cfg, cliOverrides{
		Device:     *device,
		Stdio:      *stdio,
		DebugLevel: *debugLevel,
	})

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	if cfg.Link.Stdio {
		// In stdio mode the protocol owns stdout; keep the daemon log off it.
		debug.SetOutput(os.Stderr)
	}
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	// Initialize GPIO driver
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	// Initialize projector transport
	debug.Step(2, "Configuring projector pins")
	proj, err := projector.New(gpioDriver, projector.Pins{
		Clutch:     cfg.Pins.Clutch,
		Motor:      cfg.Pins.Motor,
		DirectionA: cfg.Pins.DirectionA,
		DirectionB: cfg.Pins.DirectionB,
		Interlock:  cfg.Pins.Interlock,
		Optic:      cfg.Pins.Optic,
	})
	if err != nil {
		log.Fatalf("init projector failed: %v", err)
	}
	debug.Value("Clutch pin", cfg.Pins.Clutch)
	debug.Value("Motor pin", cfg.Pins.Motor)
	debug.Value("Direction pins", fmt.Sprintf("%d/%d", cfg.Pins.DirectionA, cfg.Pins.DirectionB))
	debug.Value("Interlock pin", cfg.Pins.Interlock)
	debug.Value("Optic pin", cfg.Pins.Optic)

	// Open host link
	debug.Step(3, "Opening host link")
	hostLink, err := openLink(cfg)
	if err != nil {
		log.Fatalf("open host link failed: %v", err)
	}
	defer func() {
		if err := hostLink.Close(); err != nil {
			log.Printf("closing host link failed: %v", err)
		}
	}()

	// Build the cell-advance machine and the command controller
	debug.Step(4, "Starting controller")
	machine := advance.New(proj, nil, advance.Config{
		PollInterval: cfg.PollInterval(),
		MaxPolls:     cfg.Advance.MaxPolls,
		LowEdges:     cfg.Advance.LowEdges,
	})
	debug.Value("Poll interval", cfg.PollInterval())
	debug.Value("Advance budget", cfg.AdvanceBudget())

	ctl := control.New(proj, hostLink, machine, nil, control.Config{
		WaitSlice:    cfg.WaitSlice(),
		OpticSamples: cfg.Defaults.OpticSamples,
		OpticPeriod:  cfg.OpticPeriod(),
	})

	var webDone chan struct{}
	if port := webPort.port(); port > 0 {
		logDest := io.Writer(os.Stdout)
		if cfg.Link.Stdio {
			logDest = os.Stderr
		}
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(logDest, web.BroadcastWriter(broadcaster)))

		srv := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, ctl.Stats)
		webDone = make(chan struct{})
		go func() {
			defer close(webDone)
			// The monitor is auxiliary: its failure must not stop film transport.
			if err := srv.Run(ctx); err != nil {
				log.Printf("web monitor: %v", err)
			}
		}()
	}

	if err := ctl.Run(ctx); err != nil {
		log.Fatalf("controller failed: %v", err)
	}
	if webDone != nil {
		<-webDone
	}
}

// cliOverrides carries the flag values that may replace config fields.
// Zero values (empty device, false stdio, level -1) leave the config untouched.
type cliOverrides struct {
	Device     string
	Stdio      bool
	DebugLevel int
}

// validateCLIOverrides checks that set CLI overrides are within valid ranges.
// A debug level of -1 is ignored (it means "use config value").
func validateCLIOverrides(debugLevel int) error {
	if debugLevel != -1 && (debugLevel < 0 || debugLevel > 4) {
		return fmt.Errorf("debug level must be between 0 and 4, got %d", debugLevel)
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Only set override values are applied.
func applyOverrides(cfg *config.Config, overrides cliOverrides) {
	if overrides.Device != "" {
		cfg.Link.Device = overrides.Device
	}
	if overrides.Stdio {
		cfg.Link.Stdio = true
	}
	if overrides.DebugLevel >= 0 {
		cfg.Defaults.DebugLevel = overrides.DebugLevel
	}
}

// openLink selects the host transport from configuration.
func openLink(cfg *config.Config) (io.ReadWriteCloser, error) {
	if cfg.Link.Stdio {
		debug.Value("Link", "stdio")
		return link.Stdio(), nil
	}
	debug.Value("Device", cfg.Link.Device)
	debug.Value("Baud", cfg.Link.Baud)
	return link.Open(cfg.Link.Device, cfg.Link.Baud)
}

// webPortFlag implements pflag.Value for --web: 0 = disabled, --web= or --web 8080 → 8080, --web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) Type() string { return "port" }

func (w *webPortFlag) port() int { return w.val }
