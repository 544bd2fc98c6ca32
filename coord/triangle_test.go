package coord

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTriangle_ContainsXY(t *testing.T) {
	tri := Triangle{
		A: Point{0, 0, 0},
		B: Point{10, 0, 0},
		C: Point{5, 5, 5},
	}

	assert.True(t, tri.ContainsXY(5, 1))
	assert.True(t, tri.ContainsXY(0, 0), "vertex")
	assert.True(t, tri.ContainsXY(5, 0), "edge")
	assert.True(t, tri.ContainsXY(2.5, 2.5+Epsilon/2), "within epsilon of edge")

	assert.False(t, tri.ContainsXY(5, 6))
	assert.False(t, tri.ContainsXY(-1, 0))
	assert.False(t, tri.ContainsXY(2, 3))
}

func TestTriangle_Area(t *testing.T) {
	tri := Triangle{
		A: Point{0, 0, 0},
		B: Point{10, 0, 0},
		C: Point{5, 5, 5},
	}
	assert.InDelta(t, 25.0, tri.Area(), 1e-9)
}
