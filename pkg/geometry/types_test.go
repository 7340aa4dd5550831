package geometry

import (
	"math"
	"testing"
)

func TestPointDistance(t *testing.T) {
	a := Point2D{X: 0, Y: 0}
	b := Point2D{X: 3, Y: 4}
	if d := a.Distance(b); d != 5 {
		t.Fatalf("expected distance 5, got %v", d)
	}
}

func TestBoundingBox(t *testing.T) {
	pts := []Point2D{{X: 2, Y: 3}, {X: -1, Y: 7}, {X: 4, Y: 0}}
	box := BoundingBox(pts)
	if box.X != -1 || box.Y != 0 || box.Width != 5 || box.Height != 7 {
		t.Fatalf("unexpected bounding box: %+v", box)
	}
}

func TestPathLength(t *testing.T) {
	pts := []Point2D{{X: 0, Y: 0}, {X: 3, Y: 0}, {X: 3, Y: 4}}
	if l := PathLength(pts); l != 7 {
		t.Fatalf("expected length 7, got %v", l)
	}
	if l := PathLength(pts[:1]); l != 0 {
		t.Fatalf("single point should have zero length, got %v", l)
	}
}

func TestSimplifyPathKeepsEndpoints(t *testing.T) {
	// Nearly colinear points collapse to the two endpoints.
	path := []Point2D{{0, 0}, {1, 0.01}, {2, -0.01}, {3, 0}}
	out := SimplifyPath(path, 0.5)
	if len(out) != 2 {
		t.Fatalf("expected 2 points after simplification, got %d", len(out))
	}
	if out[0] != path[0] || out[1] != path[3] {
		t.Fatalf("endpoints not preserved: %+v", out)
	}
}

func TestSimplifyPathKeepsCorner(t *testing.T) {
	path := []Point2D{{0, 0}, {5, 5}, {10, 0}}
	out := SimplifyPath(path, 1.0)
	if len(out) != 3 {
		t.Fatalf("corner should survive simplification, got %d points", len(out))
	}
}

func TestPerpendicularDistanceDegenerate(t *testing.T) {
	a := Point2D{X: 1, Y: 1}
	d := PerpendicularDistance(Point2D{X: 4, Y: 5}, a, a)
	if math.Abs(d-5) > 1e-12 {
		t.Fatalf("degenerate segment should fall back to point distance, got %v", d)
	}
}
