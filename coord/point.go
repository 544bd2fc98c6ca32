package coord

import (
	"math"
)

// Point is a machine position in mm.
type Point struct{ X, Y, Z float64 }

func (p Point) Equal(b Point) bool {
	return p.X == b.X && p.Y == b.Y && p.Z == b.Z
}

// EqualXY reports whether p and b share the same planar position.
func (p Point) EqualXY(b Point) bool {
	return p.X == b.X && p.Y == b.Y
}

// Add will add the target values to p.
func (p Point) Add(target Point) Point {
	p.X += target.X
	p.Y += target.Y
	p.Z += target.Z
	return p
}

// Sub will subtract the target values from p.
func (p Point) Sub(target Point) Point {
	p.X -= target.X
	p.Y -= target.Y
	p.Z -= target.Z
	return p
}

// SubXY will subtract only the planar components of target from p.
func (p Point) SubXY(target Point) Point {
	p.X -= target.X
	p.Y -= target.Y
	return p
}

// WithZ returns p with Z replaced.
func (p Point) WithZ(z float64) Point {
	p.Z = z
	return p
}

// WithXY returns p with the planar position of xy.
func (p Point) WithXY(xy Point) Point {
	p.X = xy.X
	p.Y = xy.Y
	return p
}

// DistanceXY will return the 2D distance to p from (x,y).
func (p Point) DistanceXY(x, y float64) float64 {
	return math.Hypot(x-p.X, y-p.Y)
}

// IsNaN reports whether any component is NaN.
func (p Point) IsNaN() bool {
	return math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Z)
}
