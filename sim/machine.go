// Package sim is an in-process machine with a probe, used by tests and
// the sim controller.
package sim

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/mastercactapus/zprobe/coord"
	"github.com/mastercactapus/zprobe/probe"
)

// ErrHalted is returned by moves after an emergency stop.
var ErrHalted = errors.New("machine halted")

// Move is one completed MoveTo call.
type Move struct {
	Target   coord.Point
	Feedrate float64

	// Probing is set for downward moves with contact detection armed.
	Probing   bool
	Triggered bool
}

// Machine simulates motion, endstops, heaters and drivers of a printer
// with a probe mounted at ProbeOffset from the nozzle.
type Machine struct {
	mx sync.Mutex

	// Surface is the bed height at a probe XY position. Nil means no bed.
	Surface func(x, y float64) float64

	// Contacts, when not empty, overrides Surface. Each probing move
	// consumes the next value as the nozzle Z of contact; NaN is a miss.
	Contacts []float64

	ProbeOffset coord.Point

	// TriggeredWhenStowed makes the probe input read triggered while the
	// probe is physically stowed.
	TriggeredWhenStowed bool
	// Stuck keeps the physical probe from moving.
	Stuck bool

	pos      coord.Point
	steppers coord.Point
	homed    map[probe.Axis]bool
	halted   string
	moves    []Move

	probeEnabled bool
	homingArmed  bool
	latch        probe.Trigger
	physDeployed bool
	pin          bool
	angle        float64

	targets map[probe.Heater]float64
	temps   map[probe.Heater]float64
	waits   map[probe.Heater]int

	heatersPaused bool
	fansPaused    bool

	currents   map[probe.Axis]int
	stallGuard map[probe.Axis]bool
	stealth    map[probe.Axis]bool
	enabled    map[probe.Axis]bool

	tares   int
	TareErr error

	overpressure bool
}

// NewMachine returns a homed machine at pos with all steppers enabled.
func NewMachine(pos coord.Point) *Machine {
	m := &Machine{
		pos:        pos,
		steppers:   pos,
		homed:      map[probe.Axis]bool{probe.AxisX: true, probe.AxisY: true, probe.AxisZ: true},
		targets:    make(map[probe.Heater]float64),
		temps:      map[probe.Heater]float64{probe.Hotend: 20, probe.Bed: 20},
		waits:      make(map[probe.Heater]int),
		currents:   make(map[probe.Axis]int),
		stallGuard: make(map[probe.Axis]bool),
		stealth:    make(map[probe.Axis]bool),
		enabled:    map[probe.Axis]bool{probe.AxisX: true, probe.AxisY: true, probe.AxisZ: true, probe.AxisE: true},
	}
	return m
}

// FlatBed returns a Surface at height z everywhere.
func FlatBed(z float64) func(x, y float64) float64 {
	return func(float64, float64) float64 { return z }
}

// SetHomed marks an axis homed or not.
func (m *Machine) SetHomed(a probe.Axis, homed bool) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.homed[a] = homed
}

// Home clears an emergency stop and marks X, Y and Z homed.
func (m *Machine) Home(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	m.halted = ""
	for _, a := range []probe.Axis{probe.AxisX, probe.AxisY, probe.AxisZ} {
		m.homed[a] = true
	}
	return nil
}

// Moves returns the moves made so far.
func (m *Machine) Moves() []Move {
	m.mx.Lock()
	defer m.mx.Unlock()
	return append([]Move(nil), m.moves...)
}

// ProbingMoves returns only the moves with contact detection armed.
func (m *Machine) ProbingMoves() []Move {
	var res []Move
	for _, mv := range m.Moves() {
		if mv.Probing {
			res = append(res, mv)
		}
	}
	return res
}

// Halted returns the emergency stop reason, if any.
func (m *Machine) Halted() string {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.halted
}

// MoveTo implements probe.Motion.
func (m *Machine) MoveTo(ctx context.Context, p coord.Point, feedrate float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.halted != "" {
		return ErrHalted
	}

	mv := Move{Target: p, Feedrate: feedrate}
	sensing := (m.probeEnabled || m.homingArmed) && p.Z < m.pos.Z && p.EqualXY(m.pos)
	m.steppers = p
	if sensing {
		mv.Probing = true
		if z, ok := m.contact(p); ok {
			mv.Triggered = true
			m.steppers.Z = math.Min(z, m.pos.Z)
			m.latch |= probe.TriggerProbe
			if m.homingArmed {
				m.latch |= probe.TriggerTowers
			}
		}
	}
	// the tracked position is the commanded one until synced
	m.pos = p
	m.moves = append(m.moves, mv)
	return nil
}

// contact returns the nozzle Z at which a descent to target would trigger.
func (m *Machine) contact(target coord.Point) (float64, bool) {
	var z float64
	switch {
	case len(m.Contacts) > 0:
		z = m.Contacts[0]
		m.Contacts = m.Contacts[1:]
	case m.Surface != nil:
		z = m.Surface(target.X+m.ProbeOffset.X, target.Y+m.ProbeOffset.Y) - m.ProbeOffset.Z
	default:
		return 0, false
	}
	if math.IsNaN(z) || z < target.Z {
		return 0, false
	}
	return z, true
}

// CurrentPosition implements probe.Motion.
func (m *Machine) CurrentPosition() coord.Point {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.pos
}

// IsHomed implements probe.Motion.
func (m *Machine) IsHomed(a probe.Axis) bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.homed[a]
}

// SyncPositionFromSteppers implements probe.Motion.
func (m *Machine) SyncPositionFromSteppers(a probe.Axis) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	switch a {
	case probe.AxisX:
		m.pos.X = m.steppers.X
	case probe.AxisY:
		m.pos.Y = m.steppers.Y
	case probe.AxisZ:
		m.pos.Z = m.steppers.Z
	}
	return nil
}

// EmergencyStop implements probe.Motion.
func (m *Machine) EmergencyStop(reason string) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.halted = reason
}

// EnableProbe implements probe.Endstops.
func (m *Machine) EnableProbe(on bool) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.probeEnabled = on
}

// ProbeEnabled implements probe.Endstops.
func (m *Machine) ProbeEnabled() bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.probeEnabled
}

// TriggerState implements probe.Endstops.
func (m *Machine) TriggerState() probe.Trigger {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.latch
}

// AcknowledgeTrigger implements probe.Endstops.
func (m *Machine) AcknowledgeTrigger() {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.latch = 0
}

// ArmForHoming implements probe.Endstops.
func (m *Machine) ArmForHoming(on bool) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.homingArmed = on
}

// HomingArmed reports whether stall endstops are armed.
func (m *Machine) HomingArmed() bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.homingArmed
}

// ProbeTriggered implements probe.Endstops.
func (m *Machine) ProbeTriggered() bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.TriggeredWhenStowed && !m.physDeployed
}

// SetDigital implements probe.OutputPin.
func (m *Machine) SetDigital(on bool) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.pin = on
	if !m.Stuck {
		m.physDeployed = on
	}
	return nil
}

// Pin returns the last value written to the output pin.
func (m *Machine) Pin() bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.pin
}

// SetAngle implements probe.Servo.
func (m *Machine) SetAngle(deg float64) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.angle = deg
	return nil
}

// Angle returns the last servo angle.
func (m *Machine) Angle() float64 {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.angle
}

// SetTare implements probe.Tarer.
func (m *Machine) SetTare(on bool) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.TareErr != nil {
		return m.TareErr
	}
	if on {
		m.tares++
	}
	return nil
}

// Tares returns how often the probe was tared.
func (m *Machine) Tares() int {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.tares
}

// SetOverpressure trips the safety monitor.
func (m *Machine) SetOverpressure(on bool) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.overpressure = on
}

// Overpressure implements probe.SafetyMonitor.
func (m *Machine) Overpressure() bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.overpressure
}

// ClearOverpressure implements probe.SafetyMonitor.
func (m *Machine) ClearOverpressure() {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.overpressure = false
}
