package probe_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/zprobe/coord"
	"github.com/mastercactapus/zprobe/probe"
	"github.com/mastercactapus/zprobe/sim"
)

func TestProbe_Measure(t *testing.T) {
	ctx := context.Background()

	t.Run("single", func(t *testing.T) {
		m := start()
		m.Contacts = []float64{1.25}
		p, _ := newProbe(t, probe.DefaultConfig(), m)
		m.EnableProbe(true)

		z, err := p.Measure(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, 1.25, z)
		assert.Len(t, m.ProbingMoves(), 1)
		assert.Equal(t, 1.25, m.CurrentPosition().Z)
	})

	t.Run("double", func(t *testing.T) {
		m := start()
		m.Contacts = []float64{1.0, 0.8}
		cfg := probe.DefaultConfig()
		cfg.Samples = 2
		p, _ := newProbe(t, cfg, m)
		m.EnableProbe(true)

		z, err := p.Measure(ctx, true)
		require.NoError(t, err)
		assert.InDelta(t, 0.86, z, 1e-9)

		moves := m.ProbingMoves()
		require.Len(t, moves, 2)
		assert.Equal(t, cfg.FastFeedrate, moves[0].Feedrate)
		assert.Equal(t, cfg.SlowFeedrate, moves[1].Feedrate)
	})

	t.Run("double unweighted", func(t *testing.T) {
		m := start()
		m.Contacts = []float64{1.0, 0.8}
		cfg := probe.DefaultConfig()
		cfg.Samples = 2
		cfg.Unweighted = true
		p, _ := newProbe(t, cfg, m)
		m.EnableProbe(true)

		z, err := p.Measure(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, 0.8, z)
	})

	t.Run("mean", func(t *testing.T) {
		m := start()
		m.Contacts = []float64{1, 2, 3.3}
		cfg := probe.DefaultConfig()
		cfg.Samples = 3
		p, _ := newProbe(t, cfg, m)
		m.EnableProbe(true)

		z, err := p.Measure(ctx, true)
		require.NoError(t, err)
		assert.InDelta(t, 2.1, z, 1e-9)

		// raised above each sample but the last
		var raises []float64
		for _, mv := range m.Moves() {
			if !mv.Probing {
				raises = append(raises, mv.Target.Z)
			}
		}
		assert.Equal(t, []float64{6, 7}, raises)
	})

	t.Run("trimmed", func(t *testing.T) {
		m := start()
		m.Contacts = []float64{2.01, 2.00, 1.98, 2.50, 2.02}
		cfg := probe.DefaultConfig()
		cfg.Samples = 3
		cfg.ExtraSamples = 2
		p, _ := newProbe(t, cfg, m)
		m.EnableProbe(true)

		z, err := p.Measure(ctx, true)
		require.NoError(t, err)
		assert.InDelta(t, 2.01, z, 1e-9)
		assert.Len(t, m.ProbingMoves(), 5)
	})

	t.Run("not triggered", func(t *testing.T) {
		m := start()
		m.Contacts = []float64{1, math.NaN(), 1}
		cfg := probe.DefaultConfig()
		cfg.Samples = 3
		p, _ := newProbe(t, cfg, m)
		m.EnableProbe(true)

		_, err := p.Measure(ctx, true)
		assert.ErrorIs(t, err, probe.ErrNotTriggered)
		// aborted, not averaged over what was left
		assert.Len(t, m.ProbingMoves(), 2)
		assert.Zero(t, m.TriggerState())
	})

	t.Run("nan sentinel", func(t *testing.T) {
		m := start()
		m.Contacts = []float64{math.NaN()}
		p, _ := newProbe(t, probe.DefaultConfig(), m)
		m.EnableProbe(true)

		assert.True(t, math.IsNaN(p.RunZProbe(ctx, true)))
	})

	t.Run("triggered early", func(t *testing.T) {
		m := start()
		m.Contacts = []float64{8}
		p, _ := newProbe(t, probe.DefaultConfig(), m)
		m.EnableProbe(true)

		_, err := p.Measure(ctx, true)
		assert.ErrorIs(t, err, probe.ErrTriggeredEarly)

		m.Contacts = []float64{8}
		z, err := p.Measure(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, 8.0, z)
	})

	t.Run("low point", func(t *testing.T) {
		m := start()
		m.Contacts = []float64{math.NaN()}
		cfg := probe.DefaultConfig()
		cfg.Offset.Z = -2
		p, _ := newProbe(t, cfg, m)
		m.EnableProbe(true)

		_, err := p.Measure(ctx, true)
		require.Error(t, err)
		assert.Equal(t, 0.0, m.ProbingMoves()[0].Target.Z)

		m.SetHomed(probe.AxisZ, false)
		m.Contacts = []float64{math.NaN()}
		_, err = p.Measure(ctx, true)
		require.Error(t, err)
		assert.Equal(t, -10.0, m.ProbingMoves()[1].Target.Z)
	})
}

func TestProbe_Measure_Approach(t *testing.T) {
	ctx := context.Background()

	t.Run("miss", func(t *testing.T) {
		m := sim.NewMachine(coord.Point{Z: 30})
		m.Surface = sim.FlatBed(0)
		cfg := probe.DefaultConfig()
		p, _ := newProbe(t, cfg, m)
		m.EnableProbe(true)

		z, err := p.Measure(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, 0.0, z)

		moves := m.ProbingMoves()
		require.Len(t, moves, 2)
		assert.Equal(t, sim.Move{Target: coord.Point{Z: 15}, Feedrate: cfg.FastFeedrate, Probing: true}, moves[0])
		assert.Equal(t, sim.Move{Target: coord.Point{Z: -2}, Feedrate: cfg.SlowFeedrate, Probing: true, Triggered: true}, moves[1])
	})

	t.Run("hit", func(t *testing.T) {
		m := sim.NewMachine(coord.Point{Z: 30})
		m.Contacts = []float64{20, 0.5}
		cfg := probe.DefaultConfig()
		p, _ := newProbe(t, cfg, m)
		m.EnableProbe(true)

		z, err := p.Measure(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, 0.5, z)

		// backed off above the early contact before the slow descent
		moves := m.Moves()
		require.Len(t, moves, 3)
		assert.Equal(t, 25.0, moves[1].Target.Z)
	})

	t.Run("same feedrate", func(t *testing.T) {
		m := sim.NewMachine(coord.Point{Z: 30})
		m.Surface = sim.FlatBed(0)
		cfg := probe.DefaultConfig()
		cfg.FastFeedrate = cfg.SlowFeedrate
		p, _ := newProbe(t, cfg, m)
		m.EnableProbe(true)

		_, err := p.Measure(ctx, true)
		require.NoError(t, err)
		assert.Len(t, m.ProbingMoves(), 1)
	})
}

func TestProbe_Measure_Tare(t *testing.T) {
	ctx := context.Background()
	cfg := probe.DefaultConfig()
	cfg.Samples = 3
	cfg.Tare = true

	m := start()
	m.Surface = sim.FlatBed(0.5)
	p, s := newProbe(t, cfg, m)
	m.EnableProbe(true)

	z, err := p.Measure(ctx, true)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, z, 1e-9)
	assert.Equal(t, 3, m.Tares())
	assert.Contains(t, s.all(), cfg.TareTime)
	assert.Contains(t, s.all(), cfg.TareDelay)

	m.TareErr = errors.New("no ack")
	_, err = p.Measure(ctx, true)
	assert.ErrorIs(t, err, probe.ErrTareFailed)
}

// pauseWatcher records the heater pause state seen by each move.
type pauseWatcher struct {
	*sim.Machine
	heaters []bool
}

func (w *pauseWatcher) MoveTo(ctx context.Context, p coord.Point, feedrate float64) error {
	h, _ := w.Paused()
	w.heaters = append(w.heaters, h)
	return w.Machine.MoveTo(ctx, p, feedrate)
}

func TestProbe_Measure_Quiet(t *testing.T) {
	m := start()
	m.Surface = sim.FlatBed(0)
	require.NoError(t, m.SetEnabled(probe.AxisY, false))
	w := &pauseWatcher{Machine: m}

	cfg := probe.DefaultConfig()
	cfg.Quiet = probe.QuietConfig{Heaters: true, Fans: true, ESteppers: true, XYSteppers: true, Delay: 0}
	p, s := newProbe(t, cfg, m, func(d *probe.Deps) { d.Motion = w })
	m.EnableProbe(true)

	_, err := p.Measure(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, []bool{true}, w.heaters)
	assert.Equal(t, []time.Duration{probe.MinQuietDelay}, s.all())

	heaters, fans := m.Paused()
	assert.False(t, heaters)
	assert.False(t, fans)
	assert.True(t, m.Enabled(probe.AxisX))
	// was off before, stays off
	assert.False(t, m.Enabled(probe.AxisY))
	assert.False(t, m.Enabled(probe.AxisE))
}

func TestProbe_Measure_WaitForHeaters(t *testing.T) {
	m := start()
	m.Contacts = []float64{1, 1, 1}
	cfg := probe.DefaultConfig()
	cfg.Samples = 3
	cfg.WaitForBed = true
	cfg.WaitForHotend = true
	p, _ := newProbe(t, cfg, m)
	m.EnableProbe(true)

	_, err := p.Measure(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Waits(probe.Bed))
	assert.Equal(t, 3, m.Waits(probe.Hotend))
}

func TestProbe_Measure_PerProbeDeploy(t *testing.T) {
	m := start()
	m.Contacts = []float64{1}
	pin := new(mockPin)
	pin.On("SetDigital", true).Return(nil).Once()
	pin.On("SetDigital", false).Return(nil).Once()

	cfg := probe.DefaultConfig()
	cfg.Kind = probe.KindSolenoid
	cfg.FixedMount = false
	cfg.PerProbeDeploy = true
	p, _ := newProbe(t, cfg, m, func(d *probe.Deps) { d.Pin = pin })
	m.EnableProbe(true)

	_, err := p.Measure(context.Background(), true)
	require.NoError(t, err)
	pin.AssertExpectations(t)

	pin.On("SetDigital", true).Return(nil).Once()
	pin.On("SetDigital", false).Return(errors.New("jammed")).Once()
	m.Contacts = []float64{1}
	_, err = p.Measure(context.Background(), true)
	assert.ErrorIs(t, err, probe.ErrNotTriggered)
	pin.AssertExpectations(t)
}

func TestProbe_Measure_PerProbeDeploy_EarlyFailure(t *testing.T) {
	m := start()
	m.Contacts = []float64{1}
	pin := new(mockPin)
	pin.On("SetDigital", true).Return(nil).Once()
	pin.On("SetDigital", false).Return(nil).Once()

	cfg := probe.DefaultConfig()
	cfg.Kind = probe.KindSolenoid
	cfg.FixedMount = false
	cfg.PerProbeDeploy = true
	cfg.Sensorless = probe.SensorlessConfig{
		Enabled: true,
		// no driver current configured in the sim, reading it fails
		Axes: []probe.AxisCurrent{{Axis: probe.AxisZ, HomingCurrent: 500}},
	}
	p, _ := newProbe(t, cfg, m, func(d *probe.Deps) { d.Pin = pin })
	m.EnableProbe(true)

	_, err := p.Measure(context.Background(), true)
	require.Error(t, err)
	pin.AssertExpectations(t)
	assert.False(t, m.HomingArmed())
	assert.Empty(t, m.ProbingMoves())
}

func TestProbe_Measure_Agreement(t *testing.T) {
	ctx := context.Background()
	cfg := probe.DefaultConfig()
	cfg.Samples = 2
	cfg.Agreement = probe.AgreementConfig{Retries: 4, Deviation: 0.05}

	t.Run("first pair", func(t *testing.T) {
		m := start()
		m.Contacts = []float64{1.0, 0.98}
		p, _ := newProbe(t, cfg, m)
		m.EnableProbe(true)

		z, err := p.Measure(ctx, true)
		require.NoError(t, err)
		assert.InDelta(t, 0.988, z, 1e-9)
		assert.Len(t, m.ProbingMoves(), 2)
	})

	t.Run("converges", func(t *testing.T) {
		m := start()
		m.Contacts = []float64{1.0, 0.8, 0.9, 0.88}
		nudge := cfg
		nudge.Agreement.MoveAway = []coord.Point{{X: -1, Y: -1}, {X: 2}}
		p, _ := newProbe(t, nudge, m)
		m.EnableProbe(true)

		z, err := p.Measure(ctx, true)
		require.NoError(t, err)
		assert.InDelta(t, 0.888, z, 1e-9)

		moves := m.ProbingMoves()
		require.Len(t, moves, 4)
		assert.Equal(t, cfg.FastFeedrate, moves[2].Feedrate)
		assert.Equal(t, cfg.SlowFeedrate, moves[3].Feedrate)
		pos := m.CurrentPosition()
		assert.Equal(t, 49.0, pos.X)
		assert.Equal(t, 49.0, pos.Y)
	})

	t.Run("never agrees", func(t *testing.T) {
		m := start()
		m.Contacts = []float64{1.0, 0.5, 0.9, 0.6, 0.8, 0.7, 1.1, 0.4, 1.2, 0.3}
		p, _ := newProbe(t, cfg, m)
		m.EnableProbe(true)

		z, err := p.Measure(ctx, true)
		require.NoError(t, err)
		assert.InDelta(t, 0.75, z, 1e-9)
		assert.Len(t, m.ProbingMoves(), 10)
		assert.Equal(t, 50.0, m.CurrentPosition().X)
	})

	t.Run("single retry", func(t *testing.T) {
		m := start()
		m.Contacts = []float64{1.0, 0.5, 0.9, 0.6}
		short := cfg
		short.Agreement.Retries = 1
		p, _ := newProbe(t, short, m)
		m.EnableProbe(true)

		z, err := p.Measure(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, 1.0, z)
	})

	t.Run("miss on retry", func(t *testing.T) {
		m := start()
		m.Contacts = []float64{1.0, 0.5, math.NaN()}
		p, _ := newProbe(t, cfg, m)
		m.EnableProbe(true)

		_, err := p.Measure(ctx, true)
		assert.ErrorIs(t, err, probe.ErrNotTriggered)
	})
}
