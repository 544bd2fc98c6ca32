package probe

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mastercactapus/zprobe/coord"
)

// DeviceKind selects how the sensing device is deployed and stowed.
type DeviceKind int

const (
	// KindNone is an always-active device (fixed mount, nozzle contact, strain gauge).
	KindNone DeviceKind = iota
	// KindSolenoid is toggled by a single digital output.
	KindSolenoid
	// KindDock is a sled picked up from and left at a dock past X max.
	KindDock
	// KindServo swings the probe arm with a servo.
	KindServo
	// KindScripted is deployed and stowed by a fixed list of moves (allen key, magnet unlock).
	KindScripted
	// KindLinearRail is a rack and pinion driven by moving X.
	KindLinearRail
)

var kindNames = []string{"none", "solenoid", "dock", "servo", "scripted", "linear-rail"}

func (k DeviceKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("DeviceKind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseDeviceKind parses the name returned by DeviceKind.String.
func ParseDeviceKind(s string) (DeviceKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range kindNames {
		if n == s {
			return DeviceKind(i), nil
		}
	}
	return KindNone, fmt.Errorf("unknown device kind '%s'", s)
}

func (k DeviceKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }
func (k *DeviceKind) UnmarshalText(data []byte) (err error) {
	*k, err = ParseDeviceKind(string(data))
	return err
}

// RaisePolicy decides the posture after a successful point measurement.
type RaisePolicy int

const (
	RaiseNone RaisePolicy = iota
	Raise
	BigRaise
	Stow
	LastStow
)

func (r RaisePolicy) String() string {
	switch r {
	case RaiseNone:
		return "none"
	case Raise:
		return "raise"
	case BigRaise:
		return "big-raise"
	case Stow:
		return "stow"
	case LastStow:
		return "stow (last)"
	}
	return fmt.Sprintf("RaisePolicy(%d)", int(r))
}

// ParseRaisePolicy accepts the names returned by RaisePolicy.String, and
// "last-stow" for LastStow.
func ParseRaisePolicy(s string) (RaisePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return RaiseNone, nil
	case "raise":
		return Raise, nil
	case "big-raise", "bigraise":
		return BigRaise, nil
	case "stow":
		return Stow, nil
	case "last-stow", "laststow", "stow (last)":
		return LastStow, nil
	}
	return RaiseNone, fmt.Errorf("unknown raise policy '%s'", s)
}

// Waypoint is one move of a scripted deploy or stow.
type Waypoint struct {
	Point coord.Point `yaml:"point"`

	// Feedrate in mm/s, zero uses the XY probing feedrate.
	Feedrate float64 `yaml:"feedrate"`
}

// AxisCurrent names an axis that is watched for stalls while probing.
type AxisCurrent struct {
	Axis Axis `yaml:"axis"`

	// HomingCurrent in mA. Zero keeps the present current.
	HomingCurrent int `yaml:"homing_current"`
}

// SensorlessConfig configures probing by stall detection.
type SensorlessConfig struct {
	Enabled bool          `yaml:"enabled"`
	Axes    []AxisCurrent `yaml:"axes"`

	// Delay lets the driver settle after a current change.
	Delay time.Duration `yaml:"delay"`
}

// QuietConfig lists what is silenced during a descent.
type QuietConfig struct {
	Heaters    bool `yaml:"heaters"`
	Fans       bool `yaml:"fans"`
	ESteppers  bool `yaml:"e_steppers"`
	XYSteppers bool `yaml:"xy_steppers"`

	// Delay before the descent starts. Never less than MinQuietDelay.
	Delay time.Duration `yaml:"delay"`
}

// Enabled reports whether any quiet-probing option is set.
func (q QuietConfig) Enabled() bool {
	return q.Heaters || q.Fans || q.ESteppers || q.XYSteppers
}

// AgreementConfig repeats a double probe until the fast and slow samples
// agree. Without agreement all samples are sorted and the inner ones averaged.
type AgreementConfig struct {
	// Retries is the number of extra fast/slow pairs. Zero disables it.
	Retries int `yaml:"retries"`

	// Deviation is the largest accepted fast/slow difference.
	Deviation float64 `yaml:"deviation"`

	// MoveAway shifts XY before each retry, relative to the last position.
	// Retries past the end of the list stay in place.
	MoveAway []coord.Point `yaml:"move_away"`
}

// MinQuietDelay is the shortest settle time in quiet probing mode.
const MinQuietDelay = 25 * time.Millisecond

// Config describes the probe hardware and the probing procedure.
// Feedrates are in mm/s, distances in mm.
type Config struct {
	Kind DeviceKind `yaml:"kind"`

	// FixedMount probes only need clearance before deploy.
	FixedMount bool `yaml:"fixed_mount"`

	// Offset from the nozzle to the probe contact point.
	Offset coord.Point `yaml:"offset"`

	// TriggerReadback verifies actuation: the probe reads triggered while stowed.
	TriggerReadback bool `yaml:"trigger_readback"`

	// PerProbeDeploy deploys before and stows after every single descent.
	PerProbeDeploy bool `yaml:"per_probe_deploy"`

	// PauseBeforeDeployStow asks the operator to deploy/stow by hand.
	PauseBeforeDeployStow bool `yaml:"pause_before_deploy_stow"`

	Tare      bool          `yaml:"tare"`
	TareTime  time.Duration `yaml:"tare_time"`
	TareDelay time.Duration `yaml:"tare_delay"`

	Sensorless SensorlessConfig `yaml:"sensorless"`
	Quiet      QuietConfig      `yaml:"quiet"`

	// TriggerMask selects the endstop bits that count as contact.
	TriggerMask Trigger `yaml:"trigger_mask"`

	// Samples is the number of measurements averaged per point.
	Samples int `yaml:"samples"`
	// ExtraSamples are additional measurements discarded as outliers.
	ExtraSamples int `yaml:"extra_samples"`
	// Unweighted makes double probing return the slow sample as-is.
	Unweighted bool `yaml:"unweighted"`
	// Agreement retries double probing on disagreeing samples.
	Agreement AgreementConfig `yaml:"agreement"`

	FastFeedrate float64 `yaml:"fast_feedrate"`
	SlowFeedrate float64 `yaml:"slow_feedrate"`
	XYFeedrate   float64 `yaml:"xy_feedrate"`

	ClearanceDeploy  float64 `yaml:"clearance_deploy"`
	ClearanceBetween float64 `yaml:"clearance_between"`
	ClearanceMulti   float64 `yaml:"clearance_multi"`
	BigRaise         float64 `yaml:"big_raise"`

	// LowPoint is how far below the expected trigger height a descent may go.
	LowPoint float64 `yaml:"low_point"`

	// SafeCeiling caps Z for planar moves (delta clip height). Zero disables it.
	SafeCeiling float64 `yaml:"safe_ceiling"`

	WaitForBed    bool `yaml:"wait_for_bed"`
	WaitForHotend bool `yaml:"wait_for_hotend"`

	PreheatHotend float64 `yaml:"preheat_hotend"`
	PreheatBed    float64 `yaml:"preheat_bed"`
	TempWindow    float64 `yaml:"temp_window"`
	BedTempWindow float64 `yaml:"bed_temp_window"`

	// DockX is the X position where the sled is docked.
	DockX float64 `yaml:"dock_x"`
	// DockSolenoid switches the sled solenoid after docking.
	DockSolenoid bool `yaml:"dock_solenoid"`

	DeployAngle float64 `yaml:"deploy_angle"`
	StowAngle   float64 `yaml:"stow_angle"`

	DeployMoves []Waypoint `yaml:"deploy_moves"`
	StowMoves   []Waypoint `yaml:"stow_moves"`

	RailDeployX float64 `yaml:"rail_deploy_x"`
	RailStowX   float64 `yaml:"rail_stow_x"`

	// RetryAndRecover leaves failure reporting to the caller.
	RetryAndRecover bool `yaml:"retry_and_recover"`
}

// DefaultConfig returns a fixed-mount probe with single sampling.
func DefaultConfig() Config {
	return Config{
		Kind:        KindNone,
		FixedMount:  true,
		TriggerMask: TriggerProbe,

		TareTime:  200 * time.Millisecond,
		TareDelay: 200 * time.Millisecond,

		Quiet: QuietConfig{Delay: MinQuietDelay},

		Samples: 1,

		FastFeedrate: 4,
		SlowFeedrate: 2,
		XYFeedrate:   133,

		ClearanceDeploy:  10,
		ClearanceBetween: 5,
		ClearanceMulti:   5,
		BigRaise:         25,
		LowPoint:         -2,

		TempWindow:    1,
		BedTempWindow: 1,

		DeployAngle: 10,
		StowAngle:   90,
	}
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if c.Kind < KindNone || c.Kind > KindLinearRail {
		return fmt.Errorf("invalid device kind %d", int(c.Kind))
	}
	if c.Samples < 1 {
		return errors.New("samples must be at least 1")
	}
	if c.ExtraSamples < 0 {
		return errors.New("extra samples must not be negative")
	}
	if c.ExtraSamples > 0 && c.Samples < 3 {
		return errors.New("extra samples require at least 3 samples")
	}
	if c.Agreement.Retries < 0 {
		return errors.New("agreement retries must not be negative")
	}
	if c.Agreement.Retries > 0 {
		if c.Samples != 2 {
			return errors.New("agreement retries require 2 samples")
		}
		if c.Agreement.Deviation <= 0 {
			return errors.New("agreement deviation must be positive")
		}
		if len(c.Agreement.MoveAway) > c.Agreement.Retries {
			return errors.New("more move-away offsets than retries")
		}
	}
	if c.FastFeedrate <= 0 || c.SlowFeedrate <= 0 || c.XYFeedrate <= 0 {
		return errors.New("feedrates must be positive")
	}
	if c.ClearanceDeploy < 0 || c.ClearanceBetween < 0 || c.ClearanceMulti < 0 || c.BigRaise < 0 {
		return errors.New("clearances must not be negative")
	}
	if c.TriggerMask == 0 {
		return errors.New("trigger mask is empty")
	}
	if c.Kind == KindScripted && len(c.DeployMoves) == 0 && len(c.StowMoves) == 0 {
		return errors.New("scripted probe needs deploy or stow moves")
	}
	if c.Sensorless.Enabled && len(c.Sensorless.Axes) == 0 {
		return errors.New("sensorless probing needs at least one axis")
	}
	return nil
}

// TotalSamples is the number of slow descents per measurement.
func (c Config) TotalSamples() int {
	if c.Samples > 2 {
		return c.Samples + c.ExtraSamples
	}
	return c.Samples
}
