package coord

import (
	"math"
)

const (
	// Epsilon is the max error when checking containment.
	Epsilon   = 0.001
	epsilonSq = Epsilon * Epsilon
)

// Triangle is a planar region used for reachability checks. Z is ignored.
type Triangle struct{ A, B, C Point }

// ContainsXY reports whether x,y is inside the triangle or within
// Epsilon of an edge, for either winding order.
func (t Triangle) ContainsXY(x, y float64) bool {
	p := Point{X: x, Y: y}
	if !t.inBounds(p) {
		return false
	}

	s1 := side(t.A, t.B, p)
	s2 := side(t.B, t.C, p)
	s3 := side(t.C, t.A, p)
	if (s1 >= 0 && s2 >= 0 && s3 >= 0) || (s1 <= 0 && s2 <= 0 && s3 <= 0) {
		return true
	}

	// points on an edge can fall either way due to rounding
	return segmentDistSq(t.A, t.B, p) <= epsilonSq ||
		segmentDistSq(t.B, t.C, p) <= epsilonSq ||
		segmentDistSq(t.C, t.A, p) <= epsilonSq
}

// Area returns the area of the triangle projected onto the XY plane.
func (t Triangle) Area() float64 {
	return math.Abs(side(t.A, t.B, t.C)) / 2
}

func (t Triangle) inBounds(p Point) bool {
	minX := math.Min(t.A.X, math.Min(t.B.X, t.C.X)) - Epsilon
	maxX := math.Max(t.A.X, math.Max(t.B.X, t.C.X)) + Epsilon
	minY := math.Min(t.A.Y, math.Min(t.B.Y, t.C.Y)) - Epsilon
	maxY := math.Max(t.A.Y, math.Max(t.B.Y, t.C.Y)) + Epsilon
	return minX <= p.X && p.X <= maxX && minY <= p.Y && p.Y <= maxY
}

// side is the 2D cross product of a->b and a->p.
func side(a, b, p Point) float64 {
	return (b.Y-a.Y)*(p.X-a.X) - (b.X-a.X)*(p.Y-a.Y)
}

// segmentDistSq returns the squared XY distance from p to segment a-b.
func segmentDistSq(a, b, p Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	lenSq := dx*dx + dy*dy
	t := 0.0
	if lenSq > 0 {
		t = ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lenSq
		t = math.Max(0, math.Min(1, t))
	}
	ex := a.X + t*dx - p.X
	ey := a.Y + t*dy - p.Y
	return ex*ex + ey*ey
}
