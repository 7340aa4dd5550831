package geometry

import "sort"

// ConvexHull computes the convex hull of a point set with the monotone chain
// algorithm. The hull is returned in counter-clockwise order; inputs with
// fewer than three points come back unchanged.
func ConvexHull(points []Point2D) []Point2D {
	if len(points) < 3 {
		return points
	}

	pts := make([]Point2D, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].X != pts[j].X {
			return pts[i].X < pts[j].X
		}
		return pts[i].Y < pts[j].Y
	})

	build := func(ordered []Point2D) []Point2D {
		var chain []Point2D
		for _, p := range ordered {
			for len(chain) > 1 && cross(chain[len(chain)-2], chain[len(chain)-1], p) <= 0 {
				chain = chain[:len(chain)-1]
			}
			chain = append(chain, p)
		}
		// The chain's last point starts the opposite chain.
		return chain[:len(chain)-1]
	}

	lower := build(pts)
	reversed := make([]Point2D, len(pts))
	for i, p := range pts {
		reversed[len(pts)-1-i] = p
	}
	upper := build(reversed)

	hull := append(lower, upper...)
	if len(hull) < 3 {
		return pts[:minInt(len(pts), 2)]
	}
	return hull
}

// PointInPolygon tests whether p lies inside the polygon using ray casting.
// Points exactly on an edge may land on either side.
func PointInPolygon(p Point2D, polygon []Point2D) bool {
	if len(polygon) < 3 {
		return false
	}

	inside := false
	n := len(polygon)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		pi, pj := polygon[i], polygon[j]
		if ((pi.Y > p.Y) != (pj.Y > p.Y)) &&
			(p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X) {
			inside = !inside
		}
	}
	return inside
}

// cross computes the z component of (a-o) x (b-o). Positive means the turn
// o->a->b is counter-clockwise.
func cross(o, a, b Point2D) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
