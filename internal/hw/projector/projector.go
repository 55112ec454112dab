// Package projector maps the film projector's relays and sensors onto gpio
// pins and fixes the rig's signal conventions: high = relay energized, high =
// forward, high on the interlock = film seated and tensioned.
package projector

import (
	"fmt"

	"github.com/PiusChristSuperstar/ProjectorStepper/internal/debug"
	"github.com/PiusChristSuperstar/ProjectorStepper/internal/hw/gpio"
)

// Pins holds the BCM pin assignment for the projector harness.
type Pins struct {
	Clutch     int // clutch/brake relay coupling the motor to the film transport
	Motor      int // drive motor relay
	DirectionA int // direction relay pair, always written together
	DirectionB int
	Interlock  int // film tension switch, high = film seated
	Optic      int // cell position photodetector, toggled by the passing shutter
}

// DefaultPins is the assignment of the reference harness.
func DefaultPins() Pins {
	return Pins{
		Clutch:     2,
		Motor:      3,
		DirectionA: 4,
		DirectionB: 5,
		Interlock:  6,
		Optic:      7,
	}
}

// Projector drives the relays and reads the sensors through a gpio driver.
// Output state is never cached: every decision that depends on a relay level
// reads the output latch back through the driver.
type Projector struct {
	gpio gpio.Driver
	pins Pins
}

// New configures the pins and returns the facade. All relays are released as
// part of setup so the rig starts in a known safe state.
func New(g gpio.Driver, pins Pins) (*Projector, error) {
	p := &Projector{gpio: g, pins: pins}

	outputs := []struct {
		name string
		pin  int
	}{
		{"clutch", pins.Clutch},
		{"motor", pins.Motor},
		{"direction A", pins.DirectionA},
		{"direction B", pins.DirectionB},
	}
	for _, o := range outputs {
		if err := g.SetupPin(o.pin, gpio.Output, gpio.PullNone); err != nil {
			return nil, fmt.Errorf("setup %s relay (pin %d): %w", o.name, o.pin, err)
		}
		if err := p.write(o.pin, gpio.Low); err != nil {
			return nil, fmt.Errorf("release %s relay (pin %d): %w", o.name, o.pin, err)
		}
	}

	// An open tension switch must read low, not float.
	if err := g.SetupPin(pins.Interlock, gpio.Input, gpio.PullDown); err != nil {
		return nil, fmt.Errorf("setup interlock input (pin %d): %w", pins.Interlock, err)
	}
	// The sensor board drives the optic line push-pull.
	if err := g.SetupPin(pins.Optic, gpio.Input, gpio.PullNone); err != nil {
		return nil, fmt.Errorf("setup optic input (pin %d): %w", pins.Optic, err)
	}

	return p, nil
}

// MotorOn energizes the drive motor relay.
func (p *Projector) MotorOn() error {
	return p.write(p.pins.Motor, gpio.High)
}

// MotorOff releases the drive motor relay.
func (p *Projector) MotorOff() error {
	return p.write(p.pins.Motor, gpio.Low)
}

// MotorRunning reads the motor relay latch back.
func (p *Projector) MotorRunning() (bool, error) {
	return p.readHigh(p.pins.Motor)
}

// SetForward puts both direction relays into the forward position.
func (p *Projector) SetForward() error {
	return p.setDirection(gpio.High)
}

// SetReverse puts both direction relays into the reverse position.
func (p *Projector) SetReverse() error {
	return p.setDirection(gpio.Low)
}

func (p *Projector) setDirection(level gpio.Level) error {
	if err := p.write(p.pins.DirectionA, level); err != nil {
		return err
	}
	return p.write(p.pins.DirectionB, level)
}

// EngageClutch couples the running motor to the film transport.
func (p *Projector) EngageClutch() error {
	return p.write(p.pins.Clutch, gpio.High)
}

// ReleaseClutch decouples the film transport.
func (p *Projector) ReleaseClutch() error {
	return p.write(p.pins.Clutch, gpio.Low)
}

// ClutchEngaged reads the clutch relay latch back.
func (p *Projector) ClutchEngaged() (bool, error) {
	return p.readHigh(p.pins.Clutch)
}

// InterlockEngaged reports whether the film is seated and tensioned.
func (p *Projector) InterlockEngaged() (bool, error) {
	return p.readHigh(p.pins.Interlock)
}

// OpticHigh reports the current level of the cell position sensor.
func (p *Projector) OpticHigh() (bool, error) {
	return p.readHigh(p.pins.Optic)
}

// Rewind reverses the transport and starts the motor. The clutch stays
// released; rewinding bypasses the cell mechanism entirely.
func (p *Projector) Rewind() error {
	if err := p.SetReverse(); err != nil {
		return fmt.Errorf("set reverse: %w", err)
	}
	if err := p.MotorOn(); err != nil {
		return fmt.Errorf("start motor: %w", err)
	}
	return nil
}

// Safe releases the clutch and stops the motor. Both writes are attempted
// even if the first fails; the first error is returned.
func (p *Projector) Safe() error {
	clutchErr := p.write(p.pins.Clutch, gpio.Low)
	motorErr := p.write(p.pins.Motor, gpio.Low)
	if clutchErr != nil {
		return clutchErr
	}
	return motorErr
}

func (p *Projector) write(pin int, level gpio.Level) error {
	debug.GPIO("write", pin, level)
	return p.gpio.WritePin(pin, level)
}

func (p *Projector) readHigh(pin int) (bool, error) {
	level, err := p.gpio.ReadPin(pin)
	if err != nil {
		return false, err
	}
	debug.GPIO("read", pin, level)
	return level == gpio.High, nil
}
