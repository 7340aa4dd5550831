package binarize

import (
	"image"
	"image/color"
	"testing"
)

// page builds a light page with dark horizontal lines and a left-to-right
// illumination gradient.
func page(w, h int, lines []int, gradient bool) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := 230
			if gradient {
				v -= x / 8 // gets darker toward the right edge
			}
			img.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}
	for _, ly := range lines {
		for x := 5; x < w-5; x++ {
			img.SetGray(x, ly, color.Gray{Y: 30})
		}
	}
	return img
}

func TestBinarizeOutputIsTwoValued(t *testing.T) {
	img := page(200, 150, []int{40, 75, 110}, true)
	out, err := Binarize(img, DefaultOptions())
	if err != nil {
		t.Fatalf("binarize: %v", err)
	}
	for i, v := range out.Pix {
		if v != 0 && v != 255 {
			t.Fatalf("intermediate gray level %d survived at index %d", v, i)
		}
	}
}

func TestBinarizePreservesThinLines(t *testing.T) {
	img := page(200, 150, []int{75}, false)
	out, err := Binarize(img, DefaultOptions())
	if err != nil {
		t.Fatalf("binarize: %v", err)
	}
	dark := 0
	for x := 20; x < 180; x++ {
		if out.GrayAt(x, 75).Y == 0 {
			dark++
		}
	}
	if dark < 150 {
		t.Fatalf("staff line eroded: only %d/160 pixels kept", dark)
	}
	// Paper well away from the line stays white.
	if out.GrayAt(100, 20).Y != 255 {
		t.Fatalf("paper misclassified as ink")
	}
}

func TestBinarizeRejectsBadWindow(t *testing.T) {
	img := page(50, 50, nil, false)
	if _, err := Binarize(img, Options{Window: 4, Bias: 10}); err == nil {
		t.Fatalf("even window must be rejected")
	}
	if _, err := Binarize(img, Options{Window: 1, Bias: 10}); err == nil {
		t.Fatalf("tiny window must be rejected")
	}
	if _, err := Binarize(nil, DefaultOptions()); err == nil {
		t.Fatalf("nil image must be rejected")
	}
}
