package projector

import (
	"errors"
	"strings"
	"testing"

	"github.com/PiusChristSuperstar/ProjectorStepper/internal/hw/gpio"
)

// recordingDriver captures every pin operation and plays written levels back
// on reads, so readback paths behave like real output latches.
type recordingDriver struct {
	ops       []pinOp
	levels    map[int]gpio.Level
	failSetup map[int]error
	failWrite map[int]error
}

type pinOp struct {
	op    string // "setup" or "write"
	pin   int
	mode  gpio.PinMode
	pull  gpio.Pull
	level gpio.Level
}

func newRecordingDriver() *recordingDriver {
	return &recordingDriver{levels: make(map[int]gpio.Level)}
}

func (d *recordingDriver) SetupPin(pin int, mode gpio.PinMode, pull gpio.Pull) error {
	if err := d.failSetup[pin]; err != nil {
		return err
	}
	d.ops = append(d.ops, pinOp{op: "setup", pin: pin, mode: mode, pull: pull})
	return nil
}

func (d *recordingDriver) WritePin(pin int, level gpio.Level) error {
	if err := d.failWrite[pin]; err != nil {
		return err
	}
	d.ops = append(d.ops, pinOp{op: "write", pin: pin, level: level})
	d.levels[pin] = level
	return nil
}

func (d *recordingDriver) ReadPin(pin int) (gpio.Level, error) {
	return d.levels[pin], nil
}

func (d *recordingDriver) Close() error { return nil }

func (d *recordingDriver) writes(pin int) []gpio.Level {
	var out []gpio.Level
	for _, op := range d.ops {
		if op.op == "write" && op.pin == pin {
			out = append(out, op.level)
		}
	}
	return out
}

func (d *recordingDriver) setupFor(pin int) (pinOp, bool) {
	for _, op := range d.ops {
		if op.op == "setup" && op.pin == pin {
			return op, true
		}
	}
	return pinOp{}, false
}

func mustNew(t *testing.T, d gpio.Driver) *Projector {
	t.Helper()
	p, err := New(d, DefaultPins())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNew_ConfiguresAndReleasesAllRelays(t *testing.T) {
	d := newRecordingDriver()
	mustNew(t, d)

	pins := DefaultPins()
	for _, pin := range []int{pins.Clutch, pins.Motor, pins.DirectionA, pins.DirectionB} {
		op, ok := d.setupFor(pin)
		if !ok || op.mode != gpio.Output {
			t.Errorf("pin %d: not set up as output", pin)
		}
		w := d.writes(pin)
		if len(w) != 1 || w[0] != gpio.Low {
			t.Errorf("pin %d: initial writes = %v, want single low", pin, w)
		}
	}
}

func TestNew_SensorPulls(t *testing.T) {
	d := newRecordingDriver()
	mustNew(t, d)

	pins := DefaultPins()
	if op, ok := d.setupFor(pins.Interlock); !ok || op.mode != gpio.Input || op.pull != gpio.PullDown {
		t.Errorf("interlock setup = %+v, want input with pull-down", op)
	}
	if op, ok := d.setupFor(pins.Optic); !ok || op.mode != gpio.Input || op.pull != gpio.PullNone {
		t.Errorf("optic setup = %+v, want input without pull", op)
	}
}

func TestNew_SetupErrorNamesThePin(t *testing.T) {
	d := newRecordingDriver()
	d.failSetup = map[int]error{DefaultPins().Interlock: errPin}

	if _, err := New(d, DefaultPins()); err == nil || !strings.Contains(err.Error(), "interlock") {
		t.Errorf("New error = %v, want interlock setup failure", err)
	}
}

func TestDirectionRelaysAlwaysAgree(t *testing.T) {
	d := newRecordingDriver()
	p := mustNew(t, d)
	pins := DefaultPins()

	if err := p.SetForward(); err != nil {
		t.Fatalf("SetForward: %v", err)
	}
	if d.levels[pins.DirectionA] != gpio.High || d.levels[pins.DirectionB] != gpio.High {
		t.Error("forward should drive both direction relays high")
	}

	if err := p.SetReverse(); err != nil {
		t.Fatalf("SetReverse: %v", err)
	}
	if d.levels[pins.DirectionA] != gpio.Low || d.levels[pins.DirectionB] != gpio.Low {
		t.Error("reverse should drive both direction relays low")
	}
}

func TestMotorAndClutchReadback(t *testing.T) {
	d := newRecordingDriver()
	p := mustNew(t, d)

	if err := p.MotorOn(); err != nil {
		t.Fatalf("MotorOn: %v", err)
	}
	if running, _ := p.MotorRunning(); !running {
		t.Error("MotorRunning() = false after MotorOn")
	}

	if err := p.EngageClutch(); err != nil {
		t.Fatalf("EngageClutch: %v", err)
	}
	if engaged, _ := p.ClutchEngaged(); !engaged {
		t.Error("ClutchEngaged() = false after EngageClutch")
	}

	if err := p.MotorOff(); err != nil {
		t.Fatalf("MotorOff: %v", err)
	}
	if running, _ := p.MotorRunning(); running {
		t.Error("MotorRunning() = true after MotorOff")
	}
}

func TestRewind_ReversesBeforeStartingMotor(t *testing.T) {
	d := newRecordingDriver()
	p := mustNew(t, d)
	pins := DefaultPins()

	start := len(d.ops)
	if err := p.Rewind(); err != nil {
		t.Fatalf("Rewind: %v", err)
	}

	got := d.ops[start:]
	want := []pinOp{
		{op: "write", pin: pins.DirectionA, level: gpio.Low},
		{op: "write", pin: pins.DirectionB, level: gpio.Low},
		{op: "write", pin: pins.Motor, level: gpio.High},
	}
	if len(got) != len(want) {
		t.Fatalf("Rewind performed %d ops, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("op %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	if engaged, _ := p.ClutchEngaged(); engaged {
		t.Error("rewind must leave the clutch released")
	}
}

func TestSafe_ReleasesClutchAndMotor(t *testing.T) {
	d := newRecordingDriver()
	p := mustNew(t, d)

	if err := p.MotorOn(); err != nil {
		t.Fatal(err)
	}
	if err := p.EngageClutch(); err != nil {
		t.Fatal(err)
	}
	if err := p.Safe(); err != nil {
		t.Fatalf("Safe: %v", err)
	}

	if engaged, _ := p.ClutchEngaged(); engaged {
		t.Error("clutch still engaged after Safe")
	}
	if running, _ := p.MotorRunning(); running {
		t.Error("motor still running after Safe")
	}
}

func TestSafe_StopsMotorEvenWhenClutchWriteFails(t *testing.T) {
	d := newRecordingDriver()
	p := mustNew(t, d)
	pins := DefaultPins()

	if err := p.MotorOn(); err != nil {
		t.Fatal(err)
	}
	d.failWrite = map[int]error{pins.Clutch: errPin}

	if err := p.Safe(); err == nil {
		t.Error("Safe should report the clutch write failure")
	}
	if d.levels[pins.Motor] != gpio.Low {
		t.Error("motor relay should still be released")
	}
}

func TestSensorReads(t *testing.T) {
	d := newRecordingDriver()
	p := mustNew(t, d)
	pins := DefaultPins()

	if engaged, _ := p.InterlockEngaged(); engaged {
		t.Error("interlock should read open by default")
	}

	d.levels[pins.Interlock] = gpio.High
	d.levels[pins.Optic] = gpio.High
	if engaged, _ := p.InterlockEngaged(); !engaged {
		t.Error("interlock should read engaged when the input is high")
	}
	if high, _ := p.OpticHigh(); !high {
		t.Error("optic should read high when the input is high")
	}
}

var errPin = errors.New("pin failure")
