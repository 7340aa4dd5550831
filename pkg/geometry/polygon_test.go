package geometry

import "testing"

func TestConvexHullDropsInteriorPoints(t *testing.T) {
	pts := []Point2D{
		{0, 0}, {10, 0}, {10, 10}, {0, 10},
		{5, 5}, {2, 3}, {7, 8},
	}
	hull := ConvexHull(pts)
	if len(hull) != 4 {
		t.Fatalf("expected the 4 square corners, got %d points: %+v", len(hull), hull)
	}
	for _, p := range hull {
		if p.X != 0 && p.X != 10 {
			t.Fatalf("interior point %+v survived in hull", p)
		}
	}
}

func TestConvexHullSmallInputs(t *testing.T) {
	pts := []Point2D{{1, 2}, {3, 4}}
	hull := ConvexHull(pts)
	if len(hull) != 2 {
		t.Fatalf("two points should pass through, got %d", len(hull))
	}
}

func TestPointInPolygon(t *testing.T) {
	square := []Point2D{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	if !PointInPolygon(Point2D{X: 5, Y: 5}, square) {
		t.Fatalf("center should be inside")
	}
	if PointInPolygon(Point2D{X: 15, Y: 5}, square) {
		t.Fatalf("point right of the square should be outside")
	}
	if PointInPolygon(Point2D{X: 5, Y: -1}, square) {
		t.Fatalf("point above the square should be outside")
	}
	if PointInPolygon(Point2D{X: 5, Y: 5}, square[:2]) {
		t.Fatalf("a two-point polygon contains nothing")
	}
}
