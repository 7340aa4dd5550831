// Package binarize thresholds a rectified grayscale page into a clean
// bi-level image.
package binarize

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"score-dewarp/internal/imaging"
)

// Options configures binarization.
type Options struct {
	// Window is the side of the local adaptive-threshold window, odd, >= 3.
	Window int
	// Bias is subtracted from the local mean; higher values demand darker
	// pixels before calling them ink, which suppresses speckle.
	Bias float64
}

// DefaultOptions returns binarization defaults.
func DefaultOptions() Options {
	return Options{
		// 31 px spans several staff-line gaps at typical scan resolutions,
		// wide enough to ride over symbols, narrow enough to follow the
		// residual illumination gradient of a formerly curved page.
		Window: 31,
		Bias:   10,
	}
}

// Binarize combines a global Otsu threshold with a local adaptive mean
// threshold. A pixel is ink only if both agree (logical AND): the global
// pass anchors the decision to the page-wide ink/paper split, the local pass
// rejects slow illumination drift. Output is strictly two-valued, ink black
// (0) on white (255).
func Binarize(src *image.Gray, opts Options) (*image.Gray, error) {
	if src == nil {
		return nil, fmt.Errorf("nil image")
	}
	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("empty image")
	}
	if opts.Window < 3 {
		return nil, fmt.Errorf("window %d too small, need odd >= 3", opts.Window)
	}
	if opts.Window%2 == 0 {
		return nil, fmt.Errorf("window %d must be odd", opts.Window)
	}

	mat := imaging.GrayToMat(src)
	defer mat.Close()

	global := gocv.NewMat()
	defer global.Close()
	gocv.Threshold(mat, &global, 0, 255, gocv.ThresholdBinaryInv+gocv.ThresholdOtsu)

	local := gocv.NewMat()
	defer local.Close()
	gocv.AdaptiveThreshold(mat, &local, 255, gocv.AdaptiveThresholdMean,
		gocv.ThresholdBinaryInv, opts.Window, float32(opts.Bias))

	ink := gocv.NewMat()
	defer ink.Close()
	gocv.BitwiseAnd(global, local, &ink)

	// Ink is 255 in the combined mask; flip to black-on-white output.
	page := gocv.NewMat()
	defer page.Close()
	gocv.BitwiseNot(ink, &page)

	out, err := imaging.MatToGray(page)
	if err != nil {
		return nil, fmt.Errorf("convert binarized mat: %w", err)
	}
	return out, nil
}
