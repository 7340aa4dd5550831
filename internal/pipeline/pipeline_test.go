package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
	"time"

	"score-dewarp/internal/features"
	"score-dewarp/internal/segment"
)

// scenePage builds a 200x300 page whose three staff lines sit exactly on
// their ruled positions, paired with a ground-truth mask that also carries
// curved page margins. The margins exist only in the mask, so boundary
// correction must not disturb already straight content.
func mustMask(t *testing.T, w, h int) *segment.ClassMask {
	t.Helper()
	mask, err := segment.NewClassMask(w, h)
	if err != nil {
		t.Fatalf("new mask: %v", err)
	}
	return mask
}

func scenePage(t *testing.T) (*image.Gray, *segment.ClassMask) {
	t.Helper()
	const w, h = 200, 300
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	mask := mustMask(t, w, h)

	lineRows := []int{75, 150, 225}
	for _, y0 := range lineRows {
		for x := 10; x <= 190; x++ {
			for _, y := range []int{y0, y0 + 1} {
				img.SetGray(x, y, color.Gray{Y: 0})
				mask.Set(x, y, segment.Staff)
			}
		}
	}
	for y := 0; y < h; y++ {
		lx := int(math.Round(8 + 6*math.Sin(math.Pi*float64(y)/float64(h))))
		rx := int(math.Round(192 - 6*math.Sin(math.Pi*float64(y)/float64(h))))
		mask.Set(lx, y, segment.Margin)
		mask.Set(rx, y, segment.Margin)
	}
	return img, mask
}

func TestRunStraightPage(t *testing.T) {
	img, mask := scenePage(t)
	p := New(segment.NewStub(mask), DefaultConfig())

	res, err := p.Run(context.Background(), img)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	out := res.Binary
	if out.Bounds().Dx() != 200 || out.Bounds().Dy() != 300 {
		t.Fatalf("output extent %v, want 200x300", out.Bounds())
	}

	for _, v := range out.Pix {
		if v != 0 && v != 255 {
			t.Fatalf("binarized output carries gray value %d", v)
		}
	}

	// Dark content must stay concentrated around the original rows. A row is
	// "dark" when at least a third of the staff span is black.
	darkRows := make([]int, 0, 8)
	for y := 0; y < 300; y++ {
		black := 0
		for x := 10; x <= 190; x++ {
			if out.GrayAt(x, y).Y == 0 {
				black++
			}
		}
		if black > 60 {
			darkRows = append(darkRows, y)
		}
	}
	if len(darkRows) == 0 {
		t.Fatalf("no dark rows in output")
	}
	for _, y := range darkRows {
		best := 300
		for _, want := range []int{75, 76, 150, 151, 225, 226} {
			if d := abs(y - want); d < best {
				best = d
			}
		}
		if best > 1 {
			t.Fatalf("dark row %d is %d px from any expected row", y, best)
		}
	}

	d := res.Diagnostics
	if d.StaffCurves != 3 {
		t.Fatalf("staff curve count = %d, want 3", d.StaffCurves)
	}
	if d.BoundaryCurves != 2 {
		t.Fatalf("boundary curve count = %d, want 2", d.BoundaryCurves)
	}
	if d.Mask == nil || d.Curves == nil || d.Field == nil || d.Rectified == nil {
		t.Fatalf("diagnostics missing intermediate artifacts: %+v", d)
	}
	if d.LowConfidence {
		t.Fatalf("clean page flagged low confidence: %v", d.Warnings)
	}
}

func TestRunInsufficientFeatures(t *testing.T) {
	img, _ := scenePage(t)
	empty := mustMask(t, 200, 300)
	p := New(segment.NewStub(empty), DefaultConfig())

	_, err := p.Run(context.Background(), img)
	if !errors.Is(err, ErrInsufficientFeatures) {
		t.Fatalf("empty mask: err = %v, want ErrInsufficientFeatures", err)
	}
	var se *StageError
	if !errors.As(err, &se) || se.Stage != "features" {
		t.Fatalf("err = %v, want StageError for features stage", err)
	}
}

func TestRunInputInvalid(t *testing.T) {
	p := New(segment.NewStub(mustMask(t, 8, 8)), DefaultConfig())

	if _, err := p.Run(context.Background(), nil); !errors.Is(err, ErrInputInvalid) {
		t.Fatalf("nil image: err = %v, want ErrInputInvalid", err)
	}
	empty := image.NewGray(image.Rect(0, 0, 0, 0))
	if _, err := p.Run(context.Background(), empty); !errors.Is(err, ErrInputInvalid) {
		t.Fatalf("empty image: err = %v, want ErrInputInvalid", err)
	}
}

type stallBackend struct{ mask *segment.ClassMask }

func (s *stallBackend) Classify(ctx context.Context, img image.Image) (*segment.ClassMask, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Second):
		return s.mask, nil
	}
}

func (s *stallBackend) InputStride() int { return 1 }

func TestRunSegmentTimeout(t *testing.T) {
	img, mask := scenePage(t)
	cfg := DefaultConfig().WithSegmentTimeout(20 * time.Millisecond)
	p := New(&stallBackend{mask: mask}, cfg)

	_, err := p.Run(context.Background(), img)
	if !errors.Is(err, ErrSegmentationFailure) {
		t.Fatalf("stalled backend: err = %v, want ErrSegmentationFailure", err)
	}
	var se *StageError
	if !errors.As(err, &se) || se.Stage != "segment" {
		t.Fatalf("err = %v, want StageError for segment stage", err)
	}
}

func TestRunMaskExtentMismatch(t *testing.T) {
	img, _ := scenePage(t)
	wrong := mustMask(t, 100, 100)
	p := New(&fixedBackend{mask: wrong}, DefaultConfig())

	_, err := p.Run(context.Background(), img)
	if !errors.Is(err, ErrSegmentationFailure) {
		t.Fatalf("wrong extent: err = %v, want ErrSegmentationFailure", err)
	}
}

// fixedBackend returns the same mask regardless of the requested bounds,
// bypassing the Stub's cropping.
type fixedBackend struct{ mask *segment.ClassMask }

func (f *fixedBackend) Classify(ctx context.Context, img image.Image) (*segment.ClassMask, error) {
	return f.mask, nil
}

func (f *fixedBackend) InputStride() int { return 1 }

func TestConfigSetters(t *testing.T) {
	base := DefaultConfig()
	mod := base.
		WithMinCurveLength(0.5).
		WithOutlierRejection(2.0).
		WithFillValue(128).
		WithBinarizeWindow(15).
		WithSegmentTimeout(time.Second)

	if mod.Extract.MinCurveFrac != 0.5 || mod.Fit.OutlierCutoff != 2.0 ||
		mod.Rectify.FillValue != 128 || mod.Binarize.Window != 15 ||
		mod.SegmentTimeout != time.Second {
		t.Fatalf("setters did not apply: %+v", mod)
	}
	if base.Extract.MinCurveFrac == 0.5 {
		t.Fatalf("setter mutated the receiver")
	}
	if base.Extract.MinCurveFrac != features.DefaultOptions().MinCurveFrac {
		t.Fatalf("base config drifted from defaults")
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
