// Package control wires the command channel, the dispatcher, and the
// cell-advance machine into the controller's single execution loop.
package control

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/PiusChristSuperstar/ProjectorStepper/internal/debug"
	"github.com/PiusChristSuperstar/ProjectorStepper/internal/logic/advance"
	"github.com/PiusChristSuperstar/ProjectorStepper/internal/logic/command"
	"github.com/PiusChristSuperstar/ProjectorStepper/internal/logic/proto"
)

// Hardware is the projector surface the command handlers drive. The
// projector facade implements it.
type Hardware interface {
	advance.Transport
	MotorOff() error
	Rewind() error
}

// Config carries the controller's timing constants.
type Config struct {
	WaitSlice    time.Duration // idle poll period and cooperative wait slice
	OpticSamples int           // bench diagnostic session length, in samples
	OpticPeriod  time.Duration // bench diagnostic sampling period
}

// DefaultConfig returns the rig's timing constants: 10ms slices, a 30-second
// optic bench session sampled twice a second.
func DefaultConfig() Config {
	return Config{
		WaitSlice:    10 * time.Millisecond,
		OpticSamples: 60,
		OpticPeriod:  500 * time.Millisecond,
	}
}

// Stats is the controller's published status snapshot, served by the web
// monitor and logged at shutdown.
type Stats struct {
	CellsAdvanced int       `json:"cells_advanced"`
	LastCommand   string    `json:"last_command,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	MotorOn       bool      `json:"motor_on"`
	ClutchEngaged bool      `json:"clutch_engaged"`
	Interlock     bool      `json:"interlock_engaged"`
	StartedAt     time.Time `json:"started_at"`
}

// Controller runs the command loop. All hardware access and command handling
// happen on the single Run goroutine; the mutex guards only the stats
// snapshot read by the web monitor.
type Controller struct {
	hw      Hardware
	link    io.ReadWriter
	ch      *command.Channel
	machine *advance.Machine
	clock   advance.Clock
	cfg     Config

	rx       chan []byte
	priority bool // marks non-preemptible hardware sequences

	mu    sync.Mutex
	stats Stats
}

// New creates a controller. A nil clock means wall-clock sleeps;
// non-positive config fields fall back to the defaults.
func New(hw Hardware, link io.ReadWriter, machine *advance.Machine, clock advance.Clock, cfg Config) *Controller {
	if clock == nil {
		clock = advance.WallClock{}
	}
	def := DefaultConfig()
	if cfg.WaitSlice <= 0 {
		cfg.WaitSlice = def.WaitSlice
	}
	if cfg.OpticSamples <= 0 {
		cfg.OpticSamples = def.OpticSamples
	}
	if cfg.OpticPeriod <= 0 {
		cfg.OpticPeriod = def.OpticPeriod
	}
	return &Controller{
		hw:      hw,
		link:    link,
		ch:      command.NewChannel(link),
		machine: machine,
		clock:   clock,
		cfg:     cfg,
		rx:      make(chan []byte, 16),
	}
}

// Stats returns the current status snapshot.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Run announces readiness and processes commands until the context is
// cancelled. On shutdown the actuators are safed.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	c.stats.StartedAt = time.Now()
	c.mu.Unlock()

	debug.Summary("Projector controller ready")
	if err := c.ch.Ready(); err != nil {
		debug.Error(err)
	}
	c.refreshState()

	go c.readPump(ctx)

	// Refresh the monitor snapshot about once a second while idle.
	const refreshEvery = 100
	ticker := time.NewTicker(c.cfg.WaitSlice)
	defer ticker.Stop()

	idleTicks := 0
	for {
		c.pollLink()
		for {
			cmd, ok := c.ch.Next()
			if !ok {
				break
			}
			c.dispatch(cmd)
			idleTicks = 0
		}

		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case p := <-c.rx:
			c.ch.Feed(p)
		case <-ticker.C:
			idleTicks++
			if idleTicks >= refreshEvery {
				idleTicks = 0
				c.refreshState()
			}
		}
	}
}

func (c *Controller) shutdown() {
	stats := c.Stats()
	debug.Summary("Projector controller stopping")
	debug.Value("cells advanced", stats.CellsAdvanced)
	if stats.LastError != "" {
		debug.Value("last fault", stats.LastError)
	}
	if err := c.hw.Safe(); err != nil {
		debug.Error(err)
	}
}

// readPump moves raw bytes from the link into the rx channel. Parsing stays
// on the Run goroutine; this is only the receive buffer. The link's read
// timeout keeps the pump checking the context even when the line is silent.
func (c *Controller) readPump(ctx context.Context) {
	buf := make([]byte, 256)
	for {
		n, err := c.link.Read(buf)
		if n > 0 {
			p := make([]byte, n)
			copy(p, buf[:n])
			select {
			case c.rx <- p:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				debug.Error(err)
			}
			debug.Info("Host link reader stopped")
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// pollLink drains any received bytes into the command channel without
// blocking.
func (c *Controller) pollLink() {
	for {
		select {
		case p := <-c.rx:
			c.ch.Feed(p)
		default:
			return
		}
	}
}

// dispatch routes one command to its handler. Handler success earns exactly
// one OK; handler failure earns exactly one ERROR line. Unknown tokens and
// echoed acknowledgements get silence.
func (c *Controller) dispatch(cmd proto.Command) {
	switch cmd {
	case proto.NextCell:
		c.exec(cmd, c.nextCell)
	case proto.Rewind:
		c.exec(cmd, c.rewind)
	case proto.MotorOn:
		c.exec(cmd, c.hw.MotorOn)
	case proto.MotorOff:
		c.exec(cmd, c.hw.MotorOff)
	case proto.TestOptic:
		c.exec(cmd, c.testOptic)
	case proto.Ping:
		c.exec(cmd, func() error { return nil })
	case proto.Ack:
		// The host echoing our own acknowledgement; answering would ping-pong.
		debug.Verbose("Swallowing echoed acknowledgement")
	default:
		debug.Verbose("Ignoring unknown command")
	}
}

func (c *Controller) exec(cmd proto.Command, handler func() error) {
	c.mu.Lock()
	c.stats.LastCommand = string(cmd)
	c.mu.Unlock()

	if err := handler(); err != nil {
		debug.Error(err)
		code := errorCode(err)
		c.mu.Lock()
		c.stats.LastError = code
		c.mu.Unlock()
		if serr := c.ch.Error(code); serr != nil {
			debug.Error(serr)
		}
		c.refreshState()
		return
	}

	if err := c.ch.Ack(); err != nil {
		debug.Error(err)
	}
	c.refreshState()
}

// nextCell runs the cell-advance machine. The advance is a critical hardware
// sequence, so the priority guard stays set for its whole duration.
func (c *Controller) nextCell() error {
	c.priority = true
	defer func() { c.priority = false }()

	if err := c.machine.Advance(); err != nil {
		return err
	}

	c.mu.Lock()
	c.stats.CellsAdvanced++
	cells := c.stats.CellsAdvanced
	c.mu.Unlock()
	debug.Cell(cells)

	if err := c.ch.AtCell(); err != nil {
		debug.Error(err)
	}
	return nil
}

func (c *Controller) rewind() error {
	debug.Live("Rewinding transport")
	return c.hw.Rewind()
}

// testOptic runs the bench diagnostic: watch the optic sensor for a bounded
// session and report level flips as host debug lines. The waits between
// samples are interruptible, so any new host command cuts the session short.
func (c *Controller) testOptic() error {
	last, err := c.hw.OpticHigh()
	if err != nil {
		return err
	}
	if err := c.ch.Debugf("optic session start: %s", levelName(last)); err != nil {
		debug.Error(err)
	}

	for i := 0; i < c.cfg.OpticSamples; i++ {
		if c.sleepInterruptible(c.cfg.OpticPeriod) {
			if err := c.ch.Debugf("optic session interrupted"); err != nil {
				debug.Error(err)
			}
			return nil
		}
		high, err := c.hw.OpticHigh()
		if err != nil {
			return err
		}
		if high != last {
			last = high
			if err := c.ch.Debugf("optic %s", levelName(high)); err != nil {
				debug.Error(err)
			}
		}
	}

	if err := c.ch.Debugf("optic session end: %s", levelName(last)); err != nil {
		debug.Error(err)
	}
	return nil
}

// sleepInterruptible sleeps in short slices, polling for a new command after
// each one. A newly completed command is dispatched immediately and the rest
// of the wait is abandoned; the return value reports that interruption.
// Inside a priority section it degrades to a plain sliced sleep.
func (c *Controller) sleepInterruptible(d time.Duration) bool {
	for remaining := d; remaining > 0; remaining -= c.cfg.WaitSlice {
		slice := c.cfg.WaitSlice
		if remaining < slice {
			slice = remaining
		}
		c.clock.Sleep(slice)

		if c.priority {
			continue
		}
		c.pollLink()
		if cmd, ok := c.ch.Next(); ok {
			c.dispatch(cmd)
			return true
		}
	}
	return false
}

// refreshState re-reads the actuator latches and sensors for the monitor
// snapshot. Runs only on the Run goroutine; read failures keep the previous
// snapshot.
func (c *Controller) refreshState() {
	motor, err := c.hw.MotorRunning()
	if err != nil {
		return
	}
	clutch, err := c.hw.ClutchEngaged()
	if err != nil {
		return
	}
	interlock, err := c.hw.InterlockEngaged()
	if err != nil {
		return
	}

	c.mu.Lock()
	c.stats.MotorOn = motor
	c.stats.ClutchEngaged = clutch
	c.stats.Interlock = interlock
	c.mu.Unlock()
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, advance.ErrInterlockOpen):
		return proto.ErrCodeInterlock
	case errors.Is(err, advance.ErrBusy):
		return proto.ErrCodeBusy
	case errors.Is(err, advance.ErrTimeout):
		return proto.ErrCodeTimeout
	}
	return err.Error()
}

func levelName(high bool) string {
	if high {
		return "high"
	}
	return "low"
}
