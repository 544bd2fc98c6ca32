package coord

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoint_Add(t *testing.T) {
	a := Point{X: 1, Y: 2, Z: 3}
	b := Point{X: 4, Y: 5, Z: 6}

	assert.Equal(t, Point{X: 5, Y: 7, Z: 9}, a.Add(b))
}

func TestPoint_SubXY(t *testing.T) {
	p := Point{X: 100, Y: 50, Z: 7}
	off := Point{X: 10, Y: -5, Z: -2}

	assert.Equal(t, Point{X: 90, Y: 55, Z: 7}, p.SubXY(off))
	assert.Equal(t, Point{X: 90, Y: 55, Z: 9}, p.Sub(off))
}

func TestPoint_With(t *testing.T) {
	p := Point{X: 1, Y: 2, Z: 3}

	assert.Equal(t, Point{X: 1, Y: 2, Z: 10}, p.WithZ(10))
	assert.Equal(t, Point{X: 7, Y: 8, Z: 3}, p.WithXY(Point{X: 7, Y: 8, Z: 99}))
	assert.True(t, p.EqualXY(Point{X: 1, Y: 2, Z: -1}))
	assert.False(t, p.Equal(Point{X: 1, Y: 2, Z: -1}))
}

func TestPoint_DistanceXY(t *testing.T) {
	dist := Point{X: 1, Y: 2, Z: 3}.DistanceXY(4, 5)
	assert.InEpsilon(t, 4.24264, dist, .01)
}

func TestPoint_IsNaN(t *testing.T) {
	assert.False(t, Point{}.IsNaN())
	assert.True(t, Point{Z: math.NaN()}.IsNaN())
}
