package envelope

import (
	"math"
	"testing"

	"github.com/mastercactapus/zprobe/coord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRect(t *testing.T) {
	o, err := Rect(0, 0, 220, 220)
	require.NoError(t, err)

	assert.True(t, o.CanReach(110, 110))
	assert.True(t, o.CanReach(0, 0))
	assert.True(t, o.CanReach(220, 220))
	assert.True(t, o.CanReach(220, 0))

	assert.False(t, o.CanReach(-1, 10))
	assert.False(t, o.CanReach(10, 221))
	assert.False(t, o.CanReach(math.NaN(), 10))

	assert.InDelta(t, 220.0*220.0, o.Area(), 1e-6)
}

func TestNewOutline_Convex(t *testing.T) {
	// a bed with a clipped corner
	o, err := NewOutline([]coord.Point{
		{X: 0, Y: 0},
		{X: 200, Y: 0},
		{X: 200, Y: 150},
		{X: 150, Y: 200},
		{X: 0, Y: 200},
	})
	require.NoError(t, err)

	assert.True(t, o.CanReach(100, 100))
	assert.True(t, o.CanReach(170, 170))
	assert.False(t, o.CanReach(190, 190))
}

func TestNewOutline_Invalid(t *testing.T) {
	_, err := NewOutline([]coord.Point{{X: 0, Y: 0}, {X: 1, Y: 1}})
	assert.Error(t, err)
}

func TestRound(t *testing.T) {
	r := Round{Radius: 100}

	assert.True(t, r.CanReach(0, 0))
	assert.True(t, r.CanReach(100, 0))
	assert.True(t, r.CanReach(70, 70))
	assert.False(t, r.CanReach(71, 71))
	assert.False(t, r.CanReach(math.NaN(), 0))
}

func TestUnbounded(t *testing.T) {
	assert.True(t, Unbounded{}.CanReach(-1e6, 1e6))
	assert.False(t, Unbounded{}.CanReach(math.Inf(1), 0))
}
