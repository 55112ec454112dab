// Package advance implements the cell-advance state machine: engage the
// clutch, count optic sensor transitions into low until the next cell is
// confirmed in position, and release everything whatever the outcome.
package advance

import (
	"errors"
	"time"

	"github.com/PiusChristSuperstar/ProjectorStepper/internal/debug"
)

// Faults reported to the host. All are recoverable; the controller stays
// ready for further commands after any of them.
var (
	ErrInterlockOpen = errors.New("advance: film interlock open")
	ErrBusy          = errors.New("advance: advance already in progress")
	ErrTimeout       = errors.New("advance: optic sensor never confirmed cell position")
)

// Transport is the slice of the projector hardware the state machine drives.
// Implemented by the projector facade; tests substitute a scripted fake.
type Transport interface {
	InterlockEngaged() (bool, error)
	ClutchEngaged() (bool, error)
	MotorRunning() (bool, error)
	OpticHigh() (bool, error)
	SetForward() error
	MotorOn() error
	EngageClutch() error
	Safe() error
}

// Clock abstracts the delay primitive so tests can drive the polling loop
// without wall-clock time.
type Clock interface {
	Sleep(d time.Duration)
}

// WallClock sleeps in real time.
type WallClock struct{}

func (WallClock) Sleep(d time.Duration) { time.Sleep(d) }

// Config carries the empirically tuned loop constants. The defaults come
// from the rig: 5ms sampling against a shutter transition every few hundred
// milliseconds, with a 4-second ceiling per attempt.
type Config struct {
	PollInterval time.Duration // sensor sampling period
	MaxPolls     int           // iteration budget before declaring a timeout
	LowEdges     int           // transitions into low that confirm the cell position
}

// DefaultConfig returns the tuned rig constants.
func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Millisecond,
		MaxPolls:     800,
		LowEdges:     2,
	}
}

// Machine runs one cell-advance attempt at a time. It keeps no state between
// attempts; every Advance call starts fresh from idle.
type Machine struct {
	hw    Transport
	clock Clock
	cfg   Config
}

// New creates a machine. A nil clock means wall-clock sleeps; non-positive
// config fields fall back to the defaults.
func New(hw Transport, clock Clock, cfg Config) *Machine {
	if clock == nil {
		clock = WallClock{}
	}
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = def.MaxPolls
	}
	if cfg.LowEdges <= 0 {
		cfg.LowEdges = def.LowEdges
	}
	return &Machine{hw: hw, clock: clock, cfg: cfg}
}

// Advance drives the transport to the next cell. It returns nil once the
// optic sensor confirms the position, ErrInterlockOpen or ErrBusy when the
// preconditions fail (without touching any output), ErrTimeout when the
// iteration budget runs out, or the underlying gpio error. Once actuation
// has begun, the clutch and motor are released on every exit path.
func (m *Machine) Advance() error {
	engaged, err := m.hw.InterlockEngaged()
	if err != nil {
		return err
	}
	if !engaged {
		debug.Info("Advance refused: film interlock open")
		return ErrInterlockOpen
	}

	busy, err := m.hw.ClutchEngaged()
	if err != nil {
		return err
	}
	if busy {
		debug.Info("Advance refused: clutch already engaged")
		return ErrBusy
	}

	// Preconditions hold; from here on the transport gets touched, so every
	// exit must go through Safe.
	err = m.engageAndPoll()
	if safeErr := m.hw.Safe(); safeErr != nil {
		if err == nil {
			err = safeErr
		} else {
			debug.Error(safeErr)
		}
	}
	return err
}

func (m *Machine) engageAndPoll() error {
	if err := m.hw.SetForward(); err != nil {
		return err
	}

	// Only toggle the motor relay when it is actually off; pointless relay
	// chatter mid-run shakes the transport.
	running, err := m.hw.MotorRunning()
	if err != nil {
		return err
	}
	if !running {
		if err := m.hw.MotorOn(); err != nil {
			return err
		}
	}

	if err := m.hw.EngageClutch(); err != nil {
		return err
	}

	// The shutter phase at engage time is unknown, so the first read only
	// primes the edge detector; it never counts as a transition. Requiring
	// two transitions into low tolerates either starting phase, at the cost
	// of skipping at most one intervening cell boundary.
	lastHigh, err := m.hw.OpticHigh()
	if err != nil {
		return err
	}
	debug.Verbose("Advance: clutch engaged, optic starts %s", levelName(lastHigh))

	lowEdges := 0
	for poll := 0; poll < m.cfg.MaxPolls; poll++ {
		engaged, err := m.hw.InterlockEngaged()
		if err != nil {
			return err
		}
		if !engaged {
			debug.Info("Advance aborted: interlock opened mid-advance (poll %d)", poll)
			return ErrInterlockOpen
		}

		high, err := m.hw.OpticHigh()
		if err != nil {
			return err
		}
		if high != lastHigh {
			lastHigh = high
			if !high {
				lowEdges++
				debug.Verbose("Advance: low edge %d/%d at poll %d", lowEdges, m.cfg.LowEdges, poll)
				if lowEdges >= m.cfg.LowEdges {
					return nil
				}
			}
		}

		m.clock.Sleep(m.cfg.PollInterval)
	}

	debug.Info("Advance timed out after %d polls (%d/%d low edges)",
		m.cfg.MaxPolls, lowEdges, m.cfg.LowEdges)
	return ErrTimeout
}

func levelName(high bool) string {
	if high {
		return "high"
	}
	return "low"
}
