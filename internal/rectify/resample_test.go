package rectify

import (
	"bytes"
	"image"
	"image/color"
	"math"
	"testing"

	"score-dewarp/internal/features"
	"score-dewarp/internal/warp"
	"score-dewarp/pkg/geometry"
)

func checkerboard(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/7+y/5)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 200})
			} else {
				img.SetGray(x, y, color.Gray{Y: 40})
			}
		}
	}
	return img
}

func TestResampleIdentityIsExact(t *testing.T) {
	src := checkerboard(120, 90)
	out, err := Resample(src, warp.Identity(120, 90), DefaultOptions())
	if err != nil {
		t.Fatalf("resample: %v", err)
	}
	if !bytes.Equal(out.Pix, src.Pix) {
		t.Fatalf("identity resampling changed pixels")
	}
}

func TestResampleDeterministicAcrossWorkerCounts(t *testing.T) {
	src := checkerboard(200, 160)

	// A fitted field from bowed staff lines, so every worker computes real
	// interpolated coordinates rather than the identity shortcut.
	set := &features.CurveSet{}
	for _, base := range []float64{50, 110} {
		var pts []geometry.Point2D
		for x := 0; x < 200; x++ {
			y := base + 8*math.Sin(math.Pi*float64(x)/200)
			pts = append(pts, geometry.Point2D{X: float64(x), Y: y})
		}
		c, err := features.NewCurve(features.RoleStaff, pts)
		if err != nil {
			t.Fatalf("curve construction: %v", err)
		}
		set.Staff = append(set.Staff, c)
	}
	field, _, err := warp.NewFitter(warp.DefaultOptions()).Fit(set, 200, 160)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}

	var first []byte
	for _, workers := range []int{1, 3, 8} {
		out, err := Resample(src, field, Options{FillValue: 255, Workers: workers})
		if err != nil {
			t.Fatalf("resample with %d workers: %v", workers, err)
		}
		if first == nil {
			first = out.Pix
			continue
		}
		if !bytes.Equal(first, out.Pix) {
			t.Fatalf("output depends on worker count %d", workers)
		}
	}
}

func TestResampleOutOfBoundsGetsExactFill(t *testing.T) {
	// A source smaller than the field canvas: everything past the source
	// extent is definitively out of bounds.
	src := checkerboard(50, 50)
	field := warp.Identity(80, 80)

	out, err := Resample(src, field, Options{FillValue: 17})
	if err != nil {
		t.Fatalf("resample: %v", err)
	}
	for y := 0; y < 80; y++ {
		for x := 0; x < 80; x++ {
			outOfBounds := x > 49 || y > 49
			v := out.GrayAt(x, y).Y
			if outOfBounds && v != 17 {
				t.Fatalf("out-of-bounds pixel (%d,%d) = %d, want fill 17", x, y, v)
			}
			if !outOfBounds && v == 17 {
				// 17 is not a checkerboard value; fill must not bleed inward.
				t.Fatalf("fill value bled into in-bounds pixel (%d,%d)", x, y)
			}
		}
	}
}

func TestResampleRejectsEmptyInput(t *testing.T) {
	if _, err := Resample(nil, warp.Identity(10, 10), DefaultOptions()); err == nil {
		t.Fatalf("nil source must be rejected")
	}
	if _, err := Resample(image.NewGray(image.Rect(0, 0, 10, 10)), nil, DefaultOptions()); err == nil {
		t.Fatalf("nil field must be rejected")
	}
}
