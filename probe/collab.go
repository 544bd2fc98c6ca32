package probe

import (
	"context"
	"fmt"
	"strings"

	"github.com/mastercactapus/zprobe/coord"
)

// Axis identifies a machine axis.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
	AxisE
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "X"
	case AxisY:
		return "Y"
	case AxisZ:
		return "Z"
	case AxisE:
		return "E"
	}
	return fmt.Sprintf("Axis(%d)", int(a))
}

func (a Axis) MarshalText() ([]byte, error) { return []byte(strings.ToLower(a.String())), nil }
func (a *Axis) UnmarshalText(data []byte) error {
	switch strings.ToUpper(strings.TrimSpace(string(data))) {
	case "X":
		*a = AxisX
	case "Y":
		*a = AxisY
	case "Z":
		*a = AxisZ
	case "E":
		*a = AxisE
	default:
		return fmt.Errorf("unknown axis '%s'", data)
	}
	return nil
}

// Heater identifies a heater.
type Heater int

const (
	Hotend Heater = iota
	Bed
)

func (h Heater) String() string {
	if h == Bed {
		return "bed"
	}
	return "hotend"
}

// Trigger is a bitmask of latched endstop states.
type Trigger uint8

const (
	// TriggerProbe is the dedicated probe input.
	TriggerProbe Trigger = 1 << iota
	TriggerXMax
	TriggerYMax
	TriggerZMax

	// TriggerTowers is the set watched when every tower of a delta reports contact.
	TriggerTowers = TriggerXMax | TriggerYMax | TriggerZMax
)

// Motion is the motion engine.
type Motion interface {
	// MoveTo blocks until the move is complete or interrupted by an armed endstop.
	MoveTo(ctx context.Context, p coord.Point, feedrate float64) error
	CurrentPosition() coord.Point
	IsHomed(a Axis) bool

	// SyncPositionFromSteppers replaces the tracked position of an axis
	// with the position derived from the stepper count.
	SyncPositionFromSteppers(a Axis) error

	// EmergencyStop halts the machine. The machine is faulted afterwards.
	EmergencyStop(reason string)
}

// Thermal is the heater manager.
type Thermal interface {
	SetTarget(h Heater, celsius float64) error
	Target(h Heater) float64
	Temperature(h Heater) float64
	WaitUntilReached(ctx context.Context, h Heater) error
	PauseHeaters(pause bool)
	PauseFans(pause bool)
}

// Drivers is the stepper driver subsystem.
type Drivers interface {
	// Current returns the driver current in mA.
	Current(a Axis) (int, error)
	SetCurrent(a Axis, mA int) error

	// EnableStallGuard enables stall reporting and returns the prior chopper state.
	EnableStallGuard(a Axis) (bool, error)
	DisableStallGuard(a Axis, prior bool) error

	SetEnabled(a Axis, on bool) error
	Enabled(a Axis) bool
}

// Endstops is the endstop subsystem. It owns the deployed flag.
type Endstops interface {
	EnableProbe(on bool)
	ProbeEnabled() bool

	// TriggerState returns the latched triggers since the last acknowledge.
	TriggerState() Trigger
	AcknowledgeTrigger()

	// ArmForHoming enables the stall-detection endstops.
	ArmForHoming(on bool)

	// ProbeTriggered is the live state of the probe input.
	ProbeTriggered() bool
}

// OutputPin drives a solenoid.
type OutputPin interface {
	SetDigital(on bool) error
}

// Servo positions a probe arm.
type Servo interface {
	SetAngle(deg float64) error
}

// Tarer zeroes a strain-gauge probe.
type Tarer interface {
	SetTare(on bool) error
}

// Prompter waits for an operator to confirm a manual step.
type Prompter interface {
	Confirm(ctx context.Context, msg string) error
}

// Notifier shows short status messages to the operator.
type Notifier interface {
	Status(msg string)
	Alert(msg string)
}

// SafetyMonitor reports an external overpressure condition.
type SafetyMonitor interface {
	Overpressure() bool
	ClearOverpressure()
}

// Reacher reports whether a planar position is reachable.
type Reacher interface {
	CanReach(x, y float64) bool
}
