package envelope

import (
	"errors"
	"math"

	"github.com/fogleman/delaunay"
	"github.com/mastercactapus/zprobe/coord"
)

// Outline is the reachable XY region of a machine, described by the
// convex hull of a set of boundary points.
type Outline struct {
	minX, minY, maxX, maxY float64
	triangles              []coord.Triangle
}

// NewOutline triangulates points into a reachable region. Points inside
// the hull are allowed but do not change the region.
func NewOutline(points []coord.Point) (*Outline, error) {
	if len(points) < 3 {
		return nil, errors.New("need at least 3 points to describe an outline")
	}

	points2d := make([]delaunay.Point, len(points))
	m := make(map[delaunay.Point]coord.Point, len(points))

	o := &Outline{
		minX: points[0].X,
		minY: points[0].Y,
		maxX: points[0].X,
		maxY: points[0].Y,
	}
	var d delaunay.Point
	for i, p := range points {
		o.minX = math.Min(o.minX, p.X)
		o.minY = math.Min(o.minY, p.Y)
		o.maxX = math.Max(o.maxX, p.X)
		o.maxY = math.Max(o.maxY, p.Y)

		d.X = p.X
		d.Y = p.Y
		m[d] = p.WithZ(0)
		points2d[i] = d
	}
	o.minX -= coord.Epsilon
	o.minY -= coord.Epsilon
	o.maxX += coord.Epsilon
	o.maxY += coord.Epsilon

	tri, err := delaunay.Triangulate(points2d)
	if err != nil {
		return nil, err
	}
	if len(tri.Triangles) == 0 {
		return nil, errors.New("outline points are collinear")
	}

	o.triangles = make([]coord.Triangle, 0, len(tri.Triangles)/3)
	for i := 0; i < len(tri.Triangles); i += 3 {
		o.triangles = append(o.triangles, coord.Triangle{
			A: m[tri.Points[tri.Triangles[i]]],
			B: m[tri.Points[tri.Triangles[i+1]]],
			C: m[tri.Points[tri.Triangles[i+2]]],
		})
	}

	return o, nil
}

// Rect is a shorthand for a rectangular bed.
func Rect(minX, minY, maxX, maxY float64) (*Outline, error) {
	return NewOutline([]coord.Point{
		{X: minX, Y: minY},
		{X: maxX, Y: minY},
		{X: maxX, Y: maxY},
		{X: minX, Y: maxY},
	})
}

// CanReach reports whether (x,y) lies inside the outline.
func (o *Outline) CanReach(x, y float64) bool {
	if math.IsNaN(x) || math.IsNaN(y) {
		return false
	}
	if x < o.minX || o.maxX < x || y < o.minY || o.maxY < y {
		return false
	}
	for _, t := range o.triangles {
		if t.ContainsXY(x, y) {
			return true
		}
	}

	return false
}

// Area returns the area covered by the outline.
func (o *Outline) Area() float64 {
	var a float64
	for _, t := range o.triangles {
		a += t.Area()
	}
	return a
}
