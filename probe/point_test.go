package probe_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/zprobe/coord"
	"github.com/mastercactapus/zprobe/envelope"
	"github.com/mastercactapus/zprobe/probe"
)

func bed(t *testing.T) *envelope.Outline {
	t.Helper()
	o, err := envelope.Rect(0, 0, 200, 200)
	require.NoError(t, err)
	return o
}

func TestProbe_ProbeAt(t *testing.T) {
	ctx := context.Background()

	t.Run("offset applied", func(t *testing.T) {
		m := start()
		m.Contacts = []float64{1.0, 0.8}
		cfg := probe.DefaultConfig()
		cfg.Offset = coord.Point{Z: -2}
		cfg.Samples = 2
		p, _ := newProbe(t, cfg, m)

		z, err := p.ProbeAt(ctx, probe.Request{X: 50, Y: 50, SanityCheck: true})
		require.NoError(t, err)
		assert.InDelta(t, -1.14, z, 1e-9)
		assert.True(t, m.ProbeEnabled())
	})

	t.Run("probe relative", func(t *testing.T) {
		m := start()
		m.Contacts = []float64{1}
		cfg := probe.DefaultConfig()
		cfg.Offset = coord.Point{X: 10, Y: -5}
		p, _ := newProbe(t, cfg, m, func(d *probe.Deps) { d.Reach = bed(t) })

		_, err := p.ProbeAt(ctx, probe.Request{X: 15, Y: 20, ProbeRelative: true})
		require.NoError(t, err)
		assert.Equal(t, coord.Point{X: 5, Y: 25, Z: 10}, m.Moves()[0].Target)
	})

	t.Run("safe ceiling", func(t *testing.T) {
		m := start()
		m.Contacts = []float64{1}
		cfg := probe.DefaultConfig()
		cfg.SafeCeiling = 5
		p, _ := newProbe(t, cfg, m)

		_, err := p.ProbeAt(ctx, probe.Request{X: 20, Y: 20})
		require.NoError(t, err)
		assert.Equal(t, coord.Point{X: 20, Y: 20, Z: 5}, m.Moves()[0].Target)
	})

	t.Run("raise", func(t *testing.T) {
		m := start()
		m.Contacts = []float64{1}
		p, _ := newProbe(t, probe.DefaultConfig(), m)

		_, err := p.ProbeAt(ctx, probe.Request{X: 50, Y: 50, Raise: probe.Raise})
		require.NoError(t, err)
		assert.Equal(t, 6.0, m.CurrentPosition().Z)
		assert.True(t, m.ProbeEnabled())
	})

	t.Run("big raise", func(t *testing.T) {
		m := start()
		m.Contacts = []float64{1}
		p, _ := newProbe(t, probe.DefaultConfig(), m)

		_, err := p.ProbeAt(ctx, probe.Request{X: 50, Y: 50, Raise: probe.BigRaise})
		require.NoError(t, err)
		assert.Equal(t, 26.0, m.CurrentPosition().Z)
	})

	for _, r := range []probe.RaisePolicy{probe.Stow, probe.LastStow} {
		t.Run(r.String(), func(t *testing.T) {
			m := start()
			m.Contacts = []float64{1}
			p, _ := newProbe(t, probe.DefaultConfig(), m)

			z, err := p.ProbeAt(ctx, probe.Request{X: 50, Y: 50, Raise: r})
			require.NoError(t, err)
			assert.Equal(t, 1.0, z)
			assert.False(t, m.ProbeEnabled())
		})
	}
}

func TestProbe_ProbeAt_Unreachable(t *testing.T) {
	ctx := context.Background()
	cfg := probe.DefaultConfig()
	cfg.Kind = probe.KindSolenoid
	cfg.FixedMount = false
	cfg.Offset = coord.Point{X: 10}

	for _, r := range []probe.Request{
		{X: 300, Y: 50},
		{X: 50, Y: -1},
		{X: 5, Y: 50, ProbeRelative: true},
		{X: math.NaN(), Y: 50},
	} {
		m := start()
		m.Surface = func(x, y float64) float64 { return 0 }
		p, _ := newProbe(t, cfg, m, func(d *probe.Deps) { d.Reach = bed(t) })

		z, err := p.ProbeAt(ctx, r)
		assert.ErrorIs(t, err, probe.ErrUnreachable, "%+v", r)
		assert.True(t, math.IsNaN(z))
		assert.Empty(t, m.Moves())
		assert.False(t, m.Pin(), "actuated")
		assert.False(t, m.ProbeEnabled())
	}

	t.Run("probe area", func(t *testing.T) {
		m := start()
		p, _ := newProbe(t, cfg, m, func(d *probe.Deps) {
			d.ProbeReach = envelope.Round{Center: coord.Point{X: 100, Y: 100}, Radius: 50}
		})
		z := p.ProbeAtPoint(ctx, 10, 10, probe.RaiseNone, 0, true, true)
		assert.True(t, math.IsNaN(z))
		assert.Empty(t, m.Moves())
	})
}

func TestProbe_ProbeAt_Failure(t *testing.T) {
	ctx := context.Background()
	cfg := probe.DefaultConfig()
	cfg.Kind = probe.KindSolenoid
	cfg.FixedMount = false

	t.Run("not triggered", func(t *testing.T) {
		m := start()
		m.Contacts = []float64{math.NaN()}
		n := new(mockNotifier)
		n.On("Status", "Probing Failed").Once()
		p, _ := newProbe(t, cfg, m, func(d *probe.Deps) { d.Notifier = n })

		z, err := p.ProbeAt(ctx, probe.Request{X: 50, Y: 50, Raise: probe.Raise})
		assert.ErrorIs(t, err, probe.ErrNotTriggered)
		assert.True(t, math.IsNaN(z))
		assert.False(t, m.ProbeEnabled())
		assert.False(t, m.Pin())
		n.AssertExpectations(t)
	})

	t.Run("overpressure", func(t *testing.T) {
		m := start()
		m.Contacts = []float64{1}
		m.SetOverpressure(true)
		p, _ := newProbe(t, cfg, m)

		z := p.ProbeAtPoint(ctx, 50, 50, probe.Raise, 0, false, true)
		assert.True(t, math.IsNaN(z))
		assert.False(t, m.Overpressure())
		assert.False(t, m.ProbeEnabled())
	})

	t.Run("overpressure after miss", func(t *testing.T) {
		m := start()
		m.Contacts = []float64{math.NaN(), 1}
		m.SetOverpressure(true)
		p, _ := newProbe(t, cfg, m)

		_, err := p.ProbeAt(ctx, probe.Request{X: 50, Y: 50, Raise: probe.Raise})
		assert.ErrorIs(t, err, probe.ErrNotTriggered)
		assert.False(t, m.Overpressure())

		z, err := p.ProbeAt(ctx, probe.Request{X: 50, Y: 50, Raise: probe.Raise})
		require.NoError(t, err)
		assert.Equal(t, 1.0, z)
	})

	t.Run("retry and recover", func(t *testing.T) {
		m := start()
		m.Contacts = []float64{math.NaN()}
		retry := cfg
		retry.RetryAndRecover = true
		p, _ := newProbe(t, retry, m)

		_, err := p.ProbeAt(ctx, probe.Request{X: 50, Y: 50})
		assert.ErrorIs(t, err, probe.ErrNotTriggered)
		assert.False(t, m.ProbeEnabled())
	})
}

func TestProbe_ProbeAtPoint(t *testing.T) {
	m := start()
	m.Contacts = []float64{0.25}
	p, _ := newProbe(t, probe.DefaultConfig(), m)

	z := p.ProbeAtPoint(context.Background(), 50, 50, probe.Stow, 3, false, true)
	assert.Equal(t, 0.25, z)
}

func TestProbe_Accuracy(t *testing.T) {
	m := start()
	m.Contacts = []float64{1, 1.1, 0.9}
	p, _ := newProbe(t, probe.DefaultConfig(), m)

	rep, err := p.Accuracy(context.Background(), 50, 50, 3, false)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1.1, 0.9}, rep.Samples)
	assert.InDelta(t, 1.0, rep.Mean, 1e-9)
	assert.InDelta(t, 1.0, rep.Median, 1e-9)
	assert.InDelta(t, 0.9, rep.Min, 1e-9)
	assert.InDelta(t, 1.1, rep.Max, 1e-9)
	assert.InDelta(t, 0.2, rep.Range, 1e-9)
	assert.InDelta(t, 0.1, rep.StdDev, 1e-9)
	assert.False(t, m.ProbeEnabled())

	_, err = p.Accuracy(context.Background(), 50, 50, 0, false)
	assert.Error(t, err)
}
