// Package features derives ordered geometric primitives (staff-line and
// page-edge curves) from a class mask.
package features

import (
	"fmt"
	"sort"

	"score-dewarp/pkg/geometry"
)

// Role identifies what a curve samples on the page.
type Role int

const (
	// RoleStaff curves follow detected staff lines, monotonic in x.
	RoleStaff Role = iota
	// RoleBoundary curves follow the left or right page edge, monotonic in y.
	RoleBoundary
)

func (r Role) String() string {
	switch r {
	case RoleStaff:
		return "staff"
	case RoleBoundary:
		return "boundary"
	default:
		return "unknown"
	}
}

// Curve is an ordered point sequence, strictly monotonic along its primary
// axis (x for staff curves, y for boundary curves). Duplicate primary-axis
// coordinates are merged at construction.
type Curve struct {
	Role   Role
	Points []geometry.Point2D
}

// NewCurve validates and normalizes a point sequence into a Curve.
// Points are sorted along the primary axis with ties broken by the other
// axis; runs sharing a primary coordinate are merged to their mean.
func NewCurve(role Role, points []geometry.Point2D) (Curve, error) {
	if len(points) < 2 {
		return Curve{}, fmt.Errorf("curve needs at least 2 points, got %d", len(points))
	}

	pts := make([]geometry.Point2D, len(points))
	copy(pts, points)

	primary := func(p geometry.Point2D) float64 { return p.X }
	secondary := func(p geometry.Point2D) float64 { return p.Y }
	if role == RoleBoundary {
		primary = func(p geometry.Point2D) float64 { return p.Y }
		secondary = func(p geometry.Point2D) float64 { return p.X }
	}

	sort.Slice(pts, func(i, j int) bool {
		if primary(pts[i]) != primary(pts[j]) {
			return primary(pts[i]) < primary(pts[j])
		}
		return secondary(pts[i]) < secondary(pts[j])
	})

	// Merge points sharing a primary coordinate.
	merged := pts[:0]
	for i := 0; i < len(pts); {
		j := i + 1
		sum := secondary(pts[i])
		for j < len(pts) && primary(pts[j]) == primary(pts[i]) {
			sum += secondary(pts[j])
			j++
		}
		mean := sum / float64(j-i)
		if role == RoleBoundary {
			merged = append(merged, geometry.Point2D{X: mean, Y: pts[i].Y})
		} else {
			merged = append(merged, geometry.Point2D{X: pts[i].X, Y: mean})
		}
		i = j
	}

	if len(merged) < 2 {
		return Curve{}, fmt.Errorf("curve degenerate after merging duplicates: %d points", len(merged))
	}
	return Curve{Role: role, Points: merged}, nil
}

// Span returns the extent of the curve along its primary axis.
func (c Curve) Span() float64 {
	if len(c.Points) < 2 {
		return 0
	}
	first, last := c.Points[0], c.Points[len(c.Points)-1]
	if c.Role == RoleBoundary {
		return last.Y - first.Y
	}
	return last.X - first.X
}

// MeanOffset returns the mean secondary-axis coordinate: the average y of a
// staff curve, or the average x of a boundary curve.
func (c Curve) MeanOffset() float64 {
	var sum float64
	for _, p := range c.Points {
		if c.Role == RoleBoundary {
			sum += p.X
		} else {
			sum += p.Y
		}
	}
	return sum / float64(len(c.Points))
}

// SampleAt linearly interpolates the secondary coordinate at the given
// primary coordinate, extending the end segments beyond the curve support.
func (c Curve) SampleAt(t float64) float64 {
	pts := c.Points
	pri := func(p geometry.Point2D) float64 { return p.X }
	sec := func(p geometry.Point2D) float64 { return p.Y }
	if c.Role == RoleBoundary {
		pri = func(p geometry.Point2D) float64 { return p.Y }
		sec = func(p geometry.Point2D) float64 { return p.X }
	}

	i := sort.Search(len(pts), func(i int) bool { return pri(pts[i]) >= t })
	if i == 0 {
		i = 1
	}
	if i == len(pts) {
		i = len(pts) - 1
	}
	a, b := pts[i-1], pts[i]
	den := pri(b) - pri(a)
	if den == 0 {
		return sec(a)
	}
	u := (t - pri(a)) / den
	return sec(a) + u*(sec(b)-sec(a))
}

// CurveSet groups extracted curves by role. Staff curves are ordered top to
// bottom; boundary curves hold at most a left and a right page edge.
type CurveSet struct {
	Staff    []Curve
	Boundary []Curve

	// Crossings counts staff curve pairs whose vertical order inverts
	// somewhere in their shared support. Non-zero values degrade confidence
	// but do not abort the run.
	Crossings int
}

// Total returns the number of curves across all roles.
func (cs *CurveSet) Total() int {
	return len(cs.Staff) + len(cs.Boundary)
}

// sortAndCheck orders staff curves by mean y and counts order inversions
// between vertical neighbors.
func (cs *CurveSet) sortAndCheck() {
	sort.Slice(cs.Staff, func(i, j int) bool {
		return cs.Staff[i].MeanOffset() < cs.Staff[j].MeanOffset()
	})

	cs.Crossings = 0
	for i := 1; i < len(cs.Staff); i++ {
		if curvesCross(cs.Staff[i-1], cs.Staff[i]) {
			cs.Crossings++
		}
	}
}

// curvesCross samples the shared x support of two staff curves and reports
// whether their vertical order inverts.
func curvesCross(upper, lower Curve) bool {
	x0 := maxFloat(upper.Points[0].X, lower.Points[0].X)
	x1 := minFloat(upper.Points[len(upper.Points)-1].X, lower.Points[len(lower.Points)-1].X)
	if x1 <= x0 {
		return false
	}
	const samples = 16
	for i := 0; i <= samples; i++ {
		x := x0 + (x1-x0)*float64(i)/samples
		if upper.SampleAt(x) > lower.SampleAt(x) {
			return true
		}
	}
	return false
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
