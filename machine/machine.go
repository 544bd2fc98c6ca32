package machine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/mastercactapus/zprobe/coord"
	"github.com/mastercactapus/zprobe/gcode"
	"github.com/mastercactapus/zprobe/probe"
)

// ErrHalted is returned after an emergency stop until the machine is homed again.
var ErrHalted = errors.New("machine halted")

// Machine drives a controller through its Adapter and provides the
// motion, endstop, pin and servo interfaces of a probe.
type Machine struct {
	Adapter

	holdMessage chan string

	// ServoScale converts servo degrees to a spindle S value.
	ServoScale float64

	mx           sync.Mutex
	vm           *gcode.VM
	steppers     coord.Point
	homed        bool
	halted       string
	probeEnabled bool
	homingArmed  bool
	latch        probe.Trigger
}

// State is a controller status report.
type State struct {
	Status string
	MPos   coord.Point
	WCO    coord.Point

	// Pins are the active input pins, P is the probe.
	Pins string `json:",omitempty"`
}

var (
	_ probe.Motion    = &Machine{}
	_ probe.Endstops  = &Machine{}
	_ probe.OutputPin = &Machine{}
	_ probe.Servo     = &Machine{}
	_ probe.Prompter  = &Machine{}
)

func NewMachine(a Adapter) *Machine {
	m := &Machine{
		Adapter:     a,
		holdMessage: make(chan string),
		ServoScale:  1,
		vm:          gcode.NewVM(),
	}
	stat := a.CurrentState()
	m.vm.SetMPos(stat.MPos)
	m.vm.SetWCO(stat.WCO)
	m.steppers = stat.MPos
	return m
}

// HoldMessage delivers operator prompts, and "-" when a prompt is cleared.
func (m *Machine) HoldMessage() chan string {
	return m.holdMessage
}

func (m *Machine) runBlocks(b []gcode.Block) error {
	for _, bl := range b {
		err := m.vm.Run(bl)
		if err != nil {
			return err
		}
	}
	_, err := m.Adapter.ReadFrom(gcode.NewBuffer(&gcode.BlocksReader{Blocks: b}))
	return err
}

func (m *Machine) hold(ctx context.Context, message string) error {
	select {
	case m.holdMessage <- message:
	case <-ctx.Done():
		return ctx.Err()
	}
	_, err := m.Adapter.Write([]byte("M0\n"))
	select {
	case m.holdMessage <- "-":
	case <-ctx.Done():
	}
	return err
}

// Confirm pauses the program with a feed hold until the operator resumes.
func (m *Machine) Confirm(ctx context.Context, msg string) error {
	return m.hold(ctx, msg)
}

// Home runs the homing cycle and clears a previous emergency stop.
func (m *Machine) Home(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := m.Adapter.Write([]byte("$H\n"))
	if err != nil {
		return err
	}
	stat := m.CurrentState()

	m.mx.Lock()
	defer m.mx.Unlock()
	m.vm.SetMPos(stat.MPos)
	m.vm.SetWCO(stat.WCO)
	m.steppers = stat.MPos
	m.homed = true
	m.halted = ""
	return nil
}

func moveBlock(p coord.Point, feedrate float64) gcode.Block {
	return gcode.Block{
		{W: 'G', Arg: 53},
		{W: 'G', Arg: 1},
		{W: 'X', Arg: p.X},
		{W: 'Y', Arg: p.Y},
		{W: 'Z', Arg: p.Z},
		{W: 'F', Arg: feedrate * 60},
	}
}

// MoveTo moves to p in machine coordinates at feedrate mm/s. Straight
// down moves become probing moves while the probe is enabled.
func (m *Machine) MoveTo(ctx context.Context, p coord.Point, feedrate float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.halted != "" {
		return ErrHalted
	}

	cur := m.vm.MPos()
	if (m.probeEnabled || m.homingArmed) && p.EqualXY(cur) && p.Z < cur.Z {
		return m.probeTo(p, feedrate)
	}

	err := m.runBlocks([]gcode.Block{moveBlock(p, feedrate)})
	if err != nil {
		return err
	}
	m.steppers = m.vm.MPos()
	return nil
}

// Run validates and sends a G-code program. Nothing is sent if any block
// is rejected. Probing moves are not allowed since their end position is
// unknown until the controller reports it.
func (m *Machine) Run(ctx context.Context, src string) error {
	blocks, err := gcode.Parse(src)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.halted != "" {
		return ErrHalted
	}

	check := *m.vm
	for _, b := range blocks {
		for _, w := range b {
			if w.W == 'G' && (w.Arg == 38.2 || w.Arg == 38.3) {
				return errors.New("probing moves are not allowed: " + b.String())
			}
		}
		err = check.Run(b)
		if err != nil {
			return fmt.Errorf("%s: %w", b.String(), err)
		}
	}

	err = m.runBlocks(blocks)
	if err != nil {
		return err
	}
	m.steppers = m.vm.MPos()
	return nil
}

// CurrentPosition returns the commanded machine position.
func (m *Machine) CurrentPosition() coord.Point {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.vm.MPos()
}

// IsHomed reports whether the homing cycle has run and the controller
// is not in an alarm state. Grbl homes all axes together.
func (m *Machine) IsHomed(probe.Axis) bool {
	m.mx.Lock()
	homed := m.homed
	m.mx.Unlock()
	return homed && !strings.HasPrefix(m.CurrentState().Status, "Alarm")
}

// SyncPositionFromSteppers takes the position where the last move
// actually stopped as the current position for a.
func (m *Machine) SyncPositionFromSteppers(a probe.Axis) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	pos := m.vm.MPos()
	switch a {
	case probe.AxisX:
		pos.X = m.steppers.X
	case probe.AxisY:
		pos.Y = m.steppers.Y
	case probe.AxisZ:
		pos.Z = m.steppers.Z
	default:
		return errors.New("unsupported axis " + a.String())
	}
	m.vm.SetMPos(pos)
	return nil
}

// EmergencyStop soft-resets the controller. Moves fail until Home is called.
func (m *Machine) EmergencyStop(reason string) {
	log.Println("ERROR: emergency stop:", reason)
	err := m.Adapter.WriteByte(RealtimeReset)
	if err != nil {
		log.Println("ERROR: send reset:", err)
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	m.halted = reason
	m.homed = false
}

// SetDigital switches flood coolant, which drives the probe solenoid.
func (m *Machine) SetDigital(on bool) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	code := 9.0
	if on {
		code = 8
	}
	return m.runBlocks([]gcode.Block{{{W: 'M', Arg: code}}})
}

// SetAngle positions a servo driven from the spindle PWM output.
func (m *Machine) SetAngle(deg float64) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.runBlocks([]gcode.Block{{{W: 'M', Arg: 3}, {W: 'S', Arg: deg * m.ServoScale}}})
}
