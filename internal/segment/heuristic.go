package segment

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"score-dewarp/internal/imaging"
	"score-dewarp/pkg/geometry"
)

// Heuristic is a model-free Classifier for use when no trained network is
// available (manual harnesses, smoke tests on real scans). It thresholds ink
// with Otsu, promotes long horizontal dark runs to Staff, and marks the
// outline of the largest bright region as Margin. It is a stand-in, not a
// substitute for a trained segmenter.
type Heuristic struct {
	// StaffRunFrac is the minimum dark-run length, as a fraction of image
	// width, for a run to count as staff line rather than ink.
	StaffRunFrac float64
}

// NewHeuristic creates a heuristic classifier with default tuning.
func NewHeuristic() *Heuristic {
	return &Heuristic{
		// Staff lines span most of the page width; 0.3 tolerates breaks from
		// noteheads and barlines crossing the line.
		StaffRunFrac: 0.3,
	}
}

// InputStride implements Classifier.
func (h *Heuristic) InputStride() int { return 1 }

// Classify implements Classifier.
func (h *Heuristic) Classify(ctx context.Context, img image.Image) (*ClassMask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	gray := imaging.ToGray(img)
	b := gray.Bounds()
	w, hgt := b.Dx(), b.Dy()

	mat := imaging.GrayToMat(gray)
	defer mat.Close()

	// Ink mask: dark pixels under the Otsu threshold.
	ink := gocv.NewMat()
	defer ink.Close()
	gocv.Threshold(mat, &ink, 0, 255, gocv.ThresholdBinaryInv+gocv.ThresholdOtsu)

	mask, err := NewClassMask(w, hgt)
	if err != nil {
		return nil, err
	}

	minRun := int(h.StaffRunFrac * float64(w))
	if minRun < 8 {
		minRun = 8
	}

	for y := 0; y < hgt; y++ {
		runStart := -1
		for x := 0; x <= w; x++ {
			dark := x < w && ink.GetUCharAt(y, x) > 0
			if dark && runStart < 0 {
				runStart = x
			}
			if !dark && runStart >= 0 {
				label := Ink
				if x-runStart >= minRun {
					label = Staff
				}
				for rx := runStart; rx < x; rx++ {
					mask.Set(rx, y, label)
				}
				runStart = -1
			}
		}
	}

	if err := h.markPageOutline(mat, mask); err != nil {
		return nil, fmt.Errorf("page outline: %w", err)
	}
	return mask, nil
}

// markPageOutline finds the largest bright (paper) contour and labels its
// perimeter pixels Margin, so the extractor can straighten the page edges.
func (h *Heuristic) markPageOutline(gray gocv.Mat, mask *ClassMask) error {
	paper := gocv.NewMat()
	defer paper.Close()
	gocv.Threshold(gray, &paper, 0, 255, gocv.ThresholdBinary+gocv.ThresholdOtsu)

	contours := gocv.FindContours(paper, gocv.RetrievalExternal, gocv.ChainApproxNone)
	defer contours.Close()

	bestIdx := -1
	bestArea := 0.0
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if area > bestArea {
			bestArea = area
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		// No paper region found; the extractor will report the shortage.
		return nil
	}
	// A page outline smaller than a tenth of the image is a fragment, not a page.
	if bestArea < 0.1*float64(mask.Width*mask.Height) {
		return nil
	}

	contour := contours.At(bestIdx)
	outline := make([]geometry.Point2D, 0, contour.Size())
	for i := 0; i < contour.Size(); i++ {
		pt := contour.At(i)
		mask.Set(pt.X, pt.Y, Margin)
		outline = append(outline, geometry.Point2D{X: float64(pt.X), Y: float64(pt.Y)})
	}

	// Anything dark outside the page cannot be notation. The hull contains
	// the page even when its edges bow inward, so clearing outside it never
	// touches real content.
	hull := geometry.ConvexHull(outline)
	if len(hull) >= 3 {
		for y := 0; y < mask.Height; y++ {
			for x := 0; x < mask.Width; x++ {
				l := mask.At(x, y)
				if l != Ink && l != Staff {
					continue
				}
				if !geometry.PointInPolygon(geometry.Point2D{X: float64(x), Y: float64(y)}, hull) {
					mask.Set(x, y, Background)
				}
			}
		}
	}
	return nil
}
