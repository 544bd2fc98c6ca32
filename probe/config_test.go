package probe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/mastercactapus/zprobe/coord"
)

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	check := func(name string, edit func(*Config)) {
		t.Helper()
		cfg := DefaultConfig()
		edit(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}
	check("samples", func(c *Config) { c.Samples = 0 })
	check("extra negative", func(c *Config) { c.ExtraSamples = -1 })
	check("extra without enough samples", func(c *Config) { c.Samples = 2; c.ExtraSamples = 1 })
	check("feedrate", func(c *Config) { c.SlowFeedrate = 0 })
	check("clearance", func(c *Config) { c.ClearanceMulti = -1 })
	check("mask", func(c *Config) { c.TriggerMask = 0 })
	check("kind", func(c *Config) { c.Kind = DeviceKind(42) })
	check("script", func(c *Config) { c.Kind = KindScripted })
	check("sensorless", func(c *Config) { c.Sensorless.Enabled = true })
	check("agreement negative", func(c *Config) { c.Samples = 2; c.Agreement.Retries = -1 })
	check("agreement single", func(c *Config) { c.Agreement = AgreementConfig{Retries: 2, Deviation: 0.05} })
	check("agreement deviation", func(c *Config) { c.Samples = 2; c.Agreement.Retries = 2 })
	check("agreement offsets", func(c *Config) {
		c.Samples = 2
		c.Agreement = AgreementConfig{Retries: 1, Deviation: 0.05, MoveAway: make([]coord.Point, 2)}
	})
}

func TestConfig_YAML_Agreement(t *testing.T) {
	const doc = `
samples: 2
agreement:
  retries: 4
  deviation: 0.06
  move_away:
    - {x: -1, y: -1}
    - {x: 2}
`
	cfg := DefaultConfig()
	require.NoError(t, yaml.Unmarshal([]byte(doc), &cfg))
	require.NoError(t, cfg.Validate())
	assert.Equal(t, AgreementConfig{
		Retries:   4,
		Deviation: 0.06,
		MoveAway:  []coord.Point{{X: -1, Y: -1}, {X: 2}},
	}, cfg.Agreement)
}

func TestConfig_TotalSamples(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1, cfg.TotalSamples())

	cfg.Samples = 2
	assert.Equal(t, 2, cfg.TotalSamples())

	cfg.Samples = 3
	cfg.ExtraSamples = 2
	assert.Equal(t, 5, cfg.TotalSamples())
}

func TestParseDeviceKind(t *testing.T) {
	for k := KindNone; k <= KindLinearRail; k++ {
		got, err := ParseDeviceKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseDeviceKind("magnet")
	assert.Error(t, err)
}

func TestParseRaisePolicy(t *testing.T) {
	for r := RaiseNone; r <= LastStow; r++ {
		got, err := ParseRaisePolicy(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
	got, err := ParseRaisePolicy("last-stow")
	require.NoError(t, err)
	assert.Equal(t, LastStow, got)
}

func TestConfig_YAML(t *testing.T) {
	const doc = `
kind: servo
fixed_mount: false
offset: {x: 10, y: -20, z: -1.5}
samples: 3
extra_samples: 2
quiet:
  heaters: true
  delay: 50ms
sensorless:
  enabled: true
  axes:
    - axis: z
      homing_current: 400
deploy_angle: 15
`
	cfg := DefaultConfig()
	require.NoError(t, yaml.Unmarshal([]byte(doc), &cfg))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, KindServo, cfg.Kind)
	assert.False(t, cfg.FixedMount)
	assert.Equal(t, coord.Point{X: 10, Y: -20, Z: -1.5}, cfg.Offset)
	assert.Equal(t, 5, cfg.TotalSamples())
	assert.Equal(t, 50*time.Millisecond, cfg.Quiet.Delay)
	assert.Equal(t, []AxisCurrent{{Axis: AxisZ, HomingCurrent: 400}}, cfg.Sensorless.Axes)
	assert.Equal(t, 15.0, cfg.DeployAngle)
	// untouched defaults survive
	assert.Equal(t, 90.0, cfg.StowAngle)
	assert.Equal(t, TriggerProbe, cfg.TriggerMask)
}
