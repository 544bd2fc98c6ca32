package probe_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/zprobe/coord"
	"github.com/mastercactapus/zprobe/probe"
	"github.com/mastercactapus/zprobe/sim"
)

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Status(msg string) { m.Called(msg) }
func (m *mockNotifier) Alert(msg string)  { m.Called(msg) }

type mockPin struct{ mock.Mock }

func (m *mockPin) SetDigital(on bool) error { return m.Called(on).Error(0) }

// sleeps records requested delays without waiting.
type sleeps struct {
	mx sync.Mutex
	d  []time.Duration
}

func (s *sleeps) sleep(ctx context.Context, d time.Duration) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.d = append(s.d, d)
	return ctx.Err()
}

func (s *sleeps) all() []time.Duration {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([]time.Duration(nil), s.d...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newProbe(t *testing.T, cfg probe.Config, m *sim.Machine, edit ...func(*probe.Deps)) (*probe.Probe, *sleeps) {
	t.Helper()
	d := m.Deps()
	d.Logger = quietLogger()
	for _, fn := range edit {
		fn(&d)
	}
	p, err := probe.New(cfg, d)
	require.NoError(t, err)
	s := &sleeps{}
	probe.SetSleep(p, s.sleep)
	return p, s
}

func start() *sim.Machine {
	return sim.NewMachine(coord.Point{X: 50, Y: 50, Z: 10})
}

func TestNew(t *testing.T) {
	m := start()

	t.Run("missing motion", func(t *testing.T) {
		_, err := probe.New(probe.DefaultConfig(), probe.Deps{Endstops: m})
		require.Error(t, err)
	})
	t.Run("servo without servo", func(t *testing.T) {
		cfg := probe.DefaultConfig()
		cfg.Kind = probe.KindServo
		_, err := probe.New(cfg, probe.Deps{Motion: m, Endstops: m})
		require.Error(t, err)
	})
	t.Run("invalid config", func(t *testing.T) {
		cfg := probe.DefaultConfig()
		cfg.Samples = 0
		_, err := probe.New(cfg, m.Deps())
		require.Error(t, err)
	})
	t.Run("offset from config", func(t *testing.T) {
		cfg := probe.DefaultConfig()
		cfg.Offset = coord.Point{X: 10, Y: -5, Z: -1.5}
		p, _ := newProbe(t, cfg, m)
		require.Equal(t, cfg.Offset, p.Offset())

		require.NoError(t, p.SetOffset(coord.Point{Z: -2}))
		require.Equal(t, coord.Point{Z: -2}, p.Offset())
	})
}

func TestProbe_DoZRaise(t *testing.T) {
	m := sim.NewMachine(coord.Point{Z: 1})
	cfg := probe.DefaultConfig()
	cfg.Offset.Z = -2
	p, _ := newProbe(t, cfg, m)

	require.NoError(t, p.DoZRaise(context.Background(), 5))
	require.Equal(t, 7.0, m.CurrentPosition().Z)

	// never lowers
	require.NoError(t, p.DoZRaise(context.Background(), 3))
	require.Equal(t, 7.0, m.CurrentPosition().Z)
	require.Len(t, m.Moves(), 1)
}

func TestProbe_Init(t *testing.T) {
	m := start()
	cfg := probe.DefaultConfig()
	cfg.Kind = probe.KindServo
	cfg.FixedMount = false
	cfg.StowAngle = 95
	p, _ := newProbe(t, cfg, m)

	require.NoError(t, p.Init(context.Background()))
	require.Equal(t, 95.0, m.Angle())
}

func TestProbe_Preheat(t *testing.T) {
	m := start()
	p, _ := newProbe(t, probe.DefaultConfig(), m)
	ctx := context.Background()

	require.NoError(t, m.SetTarget(probe.Bed, 70))
	require.NoError(t, p.Preheat(ctx, 200, 60, false))

	require.Equal(t, 200.0, m.Target(probe.Hotend))
	// already higher, left alone
	require.Equal(t, 70.0, m.Target(probe.Bed))
	require.Equal(t, 1, m.Waits(probe.Hotend))
	// bed is below 60 so it is still waited for
	require.Equal(t, 1, m.Waits(probe.Bed))

	// within the window, no wait
	m.SetTemperature(probe.Hotend, 199.5)
	require.NoError(t, p.Preheat(ctx, 200, 0, false))
	require.Equal(t, 1, m.Waits(probe.Hotend))

	// early only sets targets
	require.NoError(t, p.Preheat(ctx, 220, 0, true))
	require.Equal(t, 220.0, m.Target(probe.Hotend))
	require.Equal(t, 1, m.Waits(probe.Hotend))
}
