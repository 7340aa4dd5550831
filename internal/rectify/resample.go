// Package rectify resamples a source image through a deformation field into
// a corrected coordinate frame.
package rectify

import (
	"fmt"
	"image"
	"math"
	"runtime"
	"sync"

	"score-dewarp/internal/warp"
)

// Options configures resampling.
type Options struct {
	// FillValue is written wherever the field maps outside the source
	// image. White matches blank paper.
	FillValue uint8
	// Workers bounds the row-band worker pool; <= 0 uses GOMAXPROCS.
	Workers int
}

// DefaultOptions returns resampling defaults.
func DefaultOptions() Options {
	return Options{FillValue: 255}
}

// Resample produces the rectified image: for every output pixel it looks up
// the source coordinate through the field and samples the source bilinearly.
// Coordinates falling outside the source receive exactly FillValue, never a
// partial interpolation against it. Rows are distributed across workers, each
// writing a disjoint row range, so output is byte-identical regardless of
// scheduling.
func Resample(src *image.Gray, field *warp.Field, opts Options) (*image.Gray, error) {
	if src == nil {
		return nil, fmt.Errorf("nil source image")
	}
	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("empty source image")
	}
	if field == nil {
		return nil, fmt.Errorf("nil deformation field")
	}
	if b.Min != (image.Point{}) {
		// Re-anchor SubImages at the origin so row indexing stays direct.
		anchored := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		for y := 0; y < b.Dy(); y++ {
			copy(anchored.Pix[y*anchored.Stride:y*anchored.Stride+b.Dx()],
				src.Pix[y*src.Stride:y*src.Stride+b.Dx()])
		}
		src = anchored
		b = src.Bounds()
	}

	w, h := field.Width, field.Height
	out := image.NewGray(image.Rect(0, 0, w, h))

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > h {
		workers = h
	}

	band := (h + workers - 1) / workers
	var wg sync.WaitGroup
	for w0 := 0; w0 < workers; w0++ {
		y0 := w0 * band
		y1 := min(y0+band, h)
		if y0 >= y1 {
			break
		}
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			resampleRows(src, field, out, y0, y1, opts.FillValue)
		}(y0, y1)
	}
	wg.Wait()

	return out, nil
}

// resampleRows fills output rows [y0, y1).
func resampleRows(src *image.Gray, field *warp.Field, out *image.Gray, y0, y1 int, fill uint8) {
	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	maxX := float64(sw - 1)
	maxY := float64(sh - 1)

	for y := y0; y < y1; y++ {
		row := out.Pix[y*out.Stride:]
		for x := 0; x < field.Width; x++ {
			sx, sy := field.SourceCoord(float64(x), float64(y))
			if sx < 0 || sy < 0 || sx > maxX || sy > maxY {
				row[x] = fill
				continue
			}
			row[x] = sampleBilinear(src, sx, sy, sw, sh)
		}
	}
}

// sampleBilinear samples the source at a fractional coordinate known to be
// inside [0, w-1] x [0, h-1].
func sampleBilinear(src *image.Gray, sx, sy float64, w, h int) uint8 {
	ix := int(sx)
	iy := int(sy)
	fx := sx - float64(ix)
	fy := sy - float64(iy)

	ix1 := ix + 1
	if ix1 >= w {
		ix1 = w - 1
	}
	iy1 := iy + 1
	if iy1 >= h {
		iy1 = h - 1
	}

	p00 := float64(src.Pix[iy*src.Stride+ix])
	p10 := float64(src.Pix[iy*src.Stride+ix1])
	p01 := float64(src.Pix[iy1*src.Stride+ix])
	p11 := float64(src.Pix[iy1*src.Stride+ix1])

	top := p00 + fx*(p10-p00)
	bot := p01 + fx*(p11-p01)
	v := top + fy*(bot-top)

	return uint8(math.Round(v))
}
