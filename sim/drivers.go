package sim

import (
	"context"
	"fmt"

	"github.com/mastercactapus/zprobe/probe"
)

// SetTemperature sets the measured temperature of a heater.
func (m *Machine) SetTemperature(h probe.Heater, c float64) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.temps[h] = c
}

// SetTarget implements probe.Thermal.
func (m *Machine) SetTarget(h probe.Heater, c float64) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.targets[h] = c
	return nil
}

// Target implements probe.Thermal.
func (m *Machine) Target(h probe.Heater) float64 {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.targets[h]
}

// Temperature implements probe.Thermal.
func (m *Machine) Temperature(h probe.Heater) float64 {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.temps[h]
}

// WaitUntilReached implements probe.Thermal. Heaters reach their target instantly.
func (m *Machine) WaitUntilReached(ctx context.Context, h probe.Heater) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	m.waits[h]++
	if t := m.targets[h]; t > m.temps[h] {
		m.temps[h] = t
	}
	return nil
}

// Waits returns how often WaitUntilReached was called for h.
func (m *Machine) Waits(h probe.Heater) int {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.waits[h]
}

// PauseHeaters implements probe.Thermal.
func (m *Machine) PauseHeaters(pause bool) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.heatersPaused = pause
}

// PauseFans implements probe.Thermal.
func (m *Machine) PauseFans(pause bool) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.fansPaused = pause
}

// Paused reports whether heaters and fans are paused.
func (m *Machine) Paused() (heaters, fans bool) {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.heatersPaused, m.fansPaused
}

// SetDriverCurrent sets the current of an axis driver without recording it.
func (m *Machine) SetDriverCurrent(a probe.Axis, mA int) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.currents[a] = mA
}

// Current implements probe.Drivers.
func (m *Machine) Current(a probe.Axis) (int, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	cur, ok := m.currents[a]
	if !ok {
		return 0, fmt.Errorf("no driver for %s", a)
	}
	return cur, nil
}

// SetCurrent implements probe.Drivers.
func (m *Machine) SetCurrent(a probe.Axis, mA int) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if _, ok := m.currents[a]; !ok {
		return fmt.Errorf("no driver for %s", a)
	}
	m.currents[a] = mA
	return nil
}

// SetStealthChop sets the chopper mode restored after stall detection.
func (m *Machine) SetStealthChop(a probe.Axis, on bool) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.stealth[a] = on
}

// StealthChop returns the chopper mode of an axis.
func (m *Machine) StealthChop(a probe.Axis) bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.stealth[a]
}

// EnableStallGuard implements probe.Drivers.
func (m *Machine) EnableStallGuard(a probe.Axis) (bool, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	prior := m.stealth[a]
	m.stealth[a] = false
	m.stallGuard[a] = true
	return prior, nil
}

// DisableStallGuard implements probe.Drivers.
func (m *Machine) DisableStallGuard(a probe.Axis, prior bool) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.stallGuard[a] = false
	m.stealth[a] = prior
	return nil
}

// StallGuard reports whether stall reporting is on for an axis.
func (m *Machine) StallGuard(a probe.Axis) bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.stallGuard[a]
}

// SetEnabled implements probe.Drivers.
func (m *Machine) SetEnabled(a probe.Axis, on bool) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.enabled[a] = on
	return nil
}

// Enabled implements probe.Drivers.
func (m *Machine) Enabled(a probe.Axis) bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.enabled[a]
}

// Deps returns probe dependencies backed by m.
func (m *Machine) Deps() probe.Deps {
	return probe.Deps{
		Motion:   m,
		Endstops: m,
		Thermal:  m,
		Drivers:  m,
		Pin:      m,
		Servo:    m,
		Tarer:    m,
		Safety:   m,
	}
}
