package segment

import (
	"context"
	"image"
	"image/color"
	"testing"
)

func TestHeuristicSeparatesStaffFromInk(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 160, 120))
	for i := range img.Pix {
		img.Pix[i] = 235
	}
	// A long line spanning most of the width and a short dash.
	for x := 5; x < 155; x++ {
		img.SetGray(x, 40, color.Gray{Y: 20})
	}
	for x := 70; x < 85; x++ {
		img.SetGray(x, 80, color.Gray{Y: 20})
	}

	mask, err := NewHeuristic().Classify(context.Background(), img)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if mask.Width != 160 || mask.Height != 120 {
		t.Fatalf("mask extent %dx%d, want 160x120", mask.Width, mask.Height)
	}
	if got := mask.At(80, 40); got != Staff {
		t.Fatalf("long run labeled %v, want staff", got)
	}
	if got := mask.At(75, 80); got != Ink {
		t.Fatalf("short dash labeled %v, want ink", got)
	}
	if got := mask.At(10, 10); got != Background {
		t.Fatalf("blank paper labeled %v, want background", got)
	}
}
