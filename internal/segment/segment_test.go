package segment

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"
)

func grayPage(w, h int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := range g.Pix {
		g.Pix[i] = 255
	}
	return g
}

func TestMaskFromLabelsRejectsUnknownLabel(t *testing.T) {
	raw := make([]uint8, 4*4)
	raw[5] = 9
	if _, err := MaskFromLabels(4, 4, raw); err == nil {
		t.Fatalf("expected error for unknown label")
	}
}

func TestMaskFromLabelsRejectsWrongSize(t *testing.T) {
	if _, err := MaskFromLabels(4, 4, make([]uint8, 15)); err == nil {
		t.Fatalf("expected error for short buffer")
	}
}

func TestMaskCrop(t *testing.T) {
	mask, err := NewClassMask(10, 10)
	if err != nil {
		t.Fatalf("new mask: %v", err)
	}
	mask.Set(4, 5, Staff)
	crop, err := mask.Crop(2, 3, 5, 5)
	if err != nil {
		t.Fatalf("crop: %v", err)
	}
	if crop.Width != 5 || crop.Height != 5 {
		t.Fatalf("unexpected crop extent %dx%d", crop.Width, crop.Height)
	}
	if crop.At(2, 2) != Staff {
		t.Fatalf("staff pixel not carried into crop")
	}
}

func TestAdapterSingleTileMatchesStub(t *testing.T) {
	truth, _ := NewClassMask(64, 48)
	for x := 10; x < 50; x++ {
		truth.Set(x, 20, Staff)
	}
	adapter := NewAdapter(NewStub(truth), AdapterOptions{TileSize: 128, TileOverlap: 16})

	mask, err := adapter.Classify(context.Background(), grayPage(64, 48))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if mask.Width != 64 || mask.Height != 48 {
		t.Fatalf("mask extent %dx%d, want 64x48", mask.Width, mask.Height)
	}
	if mask.At(30, 20) != Staff {
		t.Fatalf("staff label lost")
	}
}

func TestAdapterTiledStitchMatchesGroundTruth(t *testing.T) {
	const w, h = 150, 90
	truth, _ := NewClassMask(w, h)
	for x := 0; x < w; x++ {
		truth.Set(x, 30, Staff)
		truth.Set(x, 60, Staff)
	}
	for y := 0; y < h; y++ {
		truth.Set(3, y, Margin)
		truth.Set(w-4, y, Margin)
	}

	adapter := NewAdapter(NewStub(truth), AdapterOptions{TileSize: 64, TileOverlap: 16})
	mask, err := adapter.Classify(context.Background(), grayPage(w, h))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if got, want := mask.At(x, y), truth.At(x, y); got != want {
				t.Fatalf("stitched label mismatch at (%d,%d): got %v want %v", x, y, got, want)
			}
		}
	}
}

// splitVoteBackend labels the leftmost tile Staff and every other tile Ink,
// so overlap pixels receive one vote for each.
type splitVoteBackend struct{}

func (splitVoteBackend) Classify(ctx context.Context, img image.Image) (*ClassMask, error) {
	b := img.Bounds()
	label := Staff
	if b.Min.X != 0 {
		label = Ink
	}
	mask, err := NewClassMask(b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			mask.Set(x, y, label)
		}
	}
	return mask, nil
}
func (splitVoteBackend) InputStride() int { return 1 }

func TestAdapterStitchTieResolvesToLowestLabel(t *testing.T) {
	// 96 px wide with 64 px tiles and 32 px overlap yields exactly two tiles,
	// x in [0,64) and [32,96). Pixels in [32,64) get one Staff and one Ink
	// vote; the tie must resolve to the lower label so stitching stays
	// deterministic.
	adapter := NewAdapter(splitVoteBackend{}, AdapterOptions{TileSize: 64, TileOverlap: 32})
	mask, err := adapter.Classify(context.Background(), grayPage(96, 64))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	for _, tc := range []struct {
		x    int
		want Label
	}{
		{10, Staff},
		{40, Staff}, // overlap tie
		{70, Ink},
	} {
		if got := mask.At(tc.x, 10); got != tc.want {
			t.Fatalf("label at x=%d: got %v want %v", tc.x, got, tc.want)
		}
	}
}

type wrongShapeBackend struct{}

func (wrongShapeBackend) Classify(ctx context.Context, img image.Image) (*ClassMask, error) {
	return NewClassMask(7, 7)
}
func (wrongShapeBackend) InputStride() int { return 1 }

func TestAdapterRejectsWrongShapeMask(t *testing.T) {
	adapter := NewAdapter(wrongShapeBackend{}, DefaultAdapterOptions())
	_, err := adapter.Classify(context.Background(), grayPage(64, 48))
	if !errors.Is(err, ErrSegmentationFailure) {
		t.Fatalf("expected ErrSegmentationFailure, got %v", err)
	}
}

type slowBackend struct{}

func (slowBackend) Classify(ctx context.Context, img image.Image) (*ClassMask, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Second):
	}
	b := img.Bounds()
	return NewClassMask(b.Dx(), b.Dy())
}
func (slowBackend) InputStride() int { return 1 }

func TestAdapterTimeoutIsSegmentationFailure(t *testing.T) {
	adapter := NewAdapter(slowBackend{}, DefaultAdapterOptions())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := adapter.Classify(ctx, grayPage(64, 48))
	if !errors.Is(err, ErrSegmentationFailure) {
		t.Fatalf("expected ErrSegmentationFailure on timeout, got %v", err)
	}
}
