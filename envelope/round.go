package envelope

import (
	"math"

	"github.com/mastercactapus/zprobe/coord"
)

// Round is the reachable region of a round-bed (delta) machine.
type Round struct {
	Center coord.Point
	Radius float64
}

func (r Round) CanReach(x, y float64) bool {
	if math.IsNaN(x) || math.IsNaN(y) {
		return false
	}
	return r.Center.DistanceXY(x, y) <= r.Radius+coord.Epsilon
}

// Unbounded accepts every finite position.
type Unbounded struct{}

func (Unbounded) CanReach(x, y float64) bool {
	return !math.IsNaN(x) && !math.IsNaN(y) && !math.IsInf(x, 0) && !math.IsInf(y, 0)
}
