package machine

import (
	"strings"

	"github.com/mastercactapus/zprobe/coord"
	"github.com/mastercactapus/zprobe/gcode"
	"github.com/mastercactapus/zprobe/probe"
)

// probeBlocks moves straight down by dist, stopping on contact without
// raising an alarm if there is none.
func probeBlocks(dist, feedrate float64) []gcode.Block {
	return []gcode.Block{
		{
			{W: 'G', Arg: 91},
			{W: 'G', Arg: 38.3},
			{W: 'Z', Arg: dist},
			{W: 'F', Arg: feedrate * 60},
		},
		{
			{W: 'G', Arg: 90},
		},
	}
}

// probeTo must be called with m.mx held.
func (m *Machine) probeTo(p coord.Point, feedrate float64) error {
	cur := m.vm.MPos()
	m.Adapter.ResetProbes()
	err := m.runBlocks(probeBlocks(p.Z-cur.Z, feedrate))
	if err != nil {
		return err
	}

	m.steppers = p
	for _, res := range m.Adapter.Probes() {
		if !res.Valid {
			continue
		}
		m.steppers = res.Point
		m.latch |= probe.TriggerProbe
		if m.homingArmed {
			m.latch |= probe.TriggerTowers
		}
	}
	return nil
}

// EnableProbe turns probing moves on or off.
func (m *Machine) EnableProbe(on bool) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.probeEnabled = on
}

// ProbeEnabled reports whether the probe is enabled.
func (m *Machine) ProbeEnabled() bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.probeEnabled
}

// TriggerState returns the probe contacts since the last acknowledge.
func (m *Machine) TriggerState() probe.Trigger {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.latch
}

// AcknowledgeTrigger clears the trigger state.
func (m *Machine) AcknowledgeTrigger() {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.latch = 0
}

// ArmForHoming makes downward moves probing moves, as with EnableProbe.
// Grbl has no stall detection of its own, the probe input is used instead.
func (m *Machine) ArmForHoming(on bool) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.homingArmed = on
}

// ProbeTriggered reads the probe pin from the last status report.
func (m *Machine) ProbeTriggered() bool {
	return strings.ContainsRune(m.CurrentState().Pins, 'P')
}
