package segment

import (
	"context"
	"fmt"
	"image"

	"score-dewarp/internal/imaging"
)

// AdapterOptions configures tiling of large pages before classification.
type AdapterOptions struct {
	TileSize    int // Tiles are TileSize x TileSize; pages that fit go in one call
	TileOverlap int // Overlap between adjacent tiles, stitched by majority vote
}

// DefaultAdapterOptions returns tiling defaults.
func DefaultAdapterOptions() AdapterOptions {
	return AdapterOptions{
		// 1024 keeps single-page scans at 300 DPI down to ~12 tiles while
		// staying below typical inference memory limits.
		TileSize:    1024,
		TileOverlap: 64,
	}
}

// Adapter normalizes pipeline input for a Classifier: it converts to
// grayscale, tiles pages larger than the backend can take in one call,
// resizes tiles to the backend's stride granularity, and stitches
// overlapping tile predictions back to the original resolution by per-pixel
// majority vote.
type Adapter struct {
	backend Classifier
	opts    AdapterOptions
}

// NewAdapter wraps a classifier backend.
func NewAdapter(backend Classifier, opts AdapterOptions) *Adapter {
	if opts.TileSize <= 0 {
		opts.TileSize = DefaultAdapterOptions().TileSize
	}
	if opts.TileOverlap < 0 || opts.TileOverlap >= opts.TileSize {
		opts.TileOverlap = DefaultAdapterOptions().TileOverlap
	}
	return &Adapter{backend: backend, opts: opts}
}

// Classify produces a class mask with the same extent as img. Any backend
// error, malformed mask, or context cancellation is reported as a
// segmentation failure.
func (a *Adapter) Classify(ctx context.Context, img image.Image) (*ClassMask, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrSegmentationFailure)
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrSegmentationFailure)
	}

	gray := imaging.ToGray(img)

	if w <= a.opts.TileSize && h <= a.opts.TileSize {
		mask, err := a.classifyTile(ctx, gray, image.Rect(0, 0, w, h))
		if err != nil {
			return nil, err
		}
		return mask, nil
	}
	return a.classifyTiled(ctx, gray, w, h)
}

// classifyTile runs the backend on one region of the page, resizing to the
// backend stride if needed and reprojecting the mask back to tile resolution.
func (a *Adapter) classifyTile(ctx context.Context, gray *image.Gray, tile image.Rectangle) (*ClassMask, error) {
	sub := gray.SubImage(tile).(*image.Gray)
	tw, th := tile.Dx(), tile.Dy()

	stride := a.backend.InputStride()
	if stride <= 0 {
		stride = 1
	}

	input := sub
	iw, ih := tw, th
	if stride > 1 && (tw%stride != 0 || th%stride != 0) {
		iw = roundUp(tw, stride)
		ih = roundUp(th, stride)
		resized, err := imaging.ResizeGray(imaging.ToGray(sub), iw, ih)
		if err != nil {
			return nil, fmt.Errorf("%w: tile resize: %v", ErrSegmentationFailure, err)
		}
		input = resized
	}

	mask, err := a.backend.Classify(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSegmentationFailure, err)
	}
	if mask == nil {
		return nil, fmt.Errorf("%w: backend returned nil mask", ErrSegmentationFailure)
	}
	if mask.Width != iw || mask.Height != ih {
		return nil, fmt.Errorf("%w: mask extent %dx%d does not match input %dx%d",
			ErrSegmentationFailure, mask.Width, mask.Height, iw, ih)
	}

	if iw != tw || ih != th {
		// Labels are categorical, so reprojection uses nearest-neighbor.
		mask = resizeMaskNearest(mask, tw, th)
	}
	return mask, nil
}

// classifyTiled splits the page into overlapping tiles, classifies each, and
// stitches the results. Seam pixels covered by several tiles take the
// majority label; ties resolve to the lowest label index so stitching is
// deterministic.
func (a *Adapter) classifyTiled(ctx context.Context, gray *image.Gray, w, h int) (*ClassMask, error) {
	step := a.opts.TileSize - a.opts.TileOverlap
	votes := make([][numLabels]uint16, w*h)

	for ty := 0; ty < h; ty += step {
		for tx := 0; tx < w; tx += step {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrSegmentationFailure, err)
			}
			x1 := min(tx+a.opts.TileSize, w)
			y1 := min(ty+a.opts.TileSize, h)
			// Clamp the final tile backwards so every tile has full size and
			// edge pixels still get overlap coverage.
			x0 := max(0, x1-a.opts.TileSize)
			y0 := max(0, y1-a.opts.TileSize)

			mask, err := a.classifyTile(ctx, gray, image.Rect(x0, y0, x1, y1))
			if err != nil {
				return nil, err
			}
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					votes[y*w+x][mask.At(x-x0, y-y0)]++
				}
			}
			if x1 >= w {
				break
			}
		}
		if ty+a.opts.TileSize >= h {
			break
		}
	}

	out, err := NewClassMask(w, h)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSegmentationFailure, err)
	}
	for i, v := range votes {
		best := Background
		bestVotes := v[Background]
		for l := Label(1); l < numLabels; l++ {
			if v[l] > bestVotes {
				best = l
				bestVotes = v[l]
			}
		}
		out.labels[i] = best
	}
	return out, nil
}

// resizeMaskNearest reprojects a label mask to a new extent.
func resizeMaskNearest(mask *ClassMask, width, height int) *ClassMask {
	out := &ClassMask{Width: width, Height: height, labels: make([]Label, width*height)}
	for y := 0; y < height; y++ {
		sy := y * mask.Height / height
		for x := 0; x < width; x++ {
			sx := x * mask.Width / width
			out.labels[y*width+x] = mask.labels[sy*mask.Width+sx]
		}
	}
	return out
}

func roundUp(v, multiple int) int {
	if v%multiple == 0 {
		return v
	}
	return (v/multiple + 1) * multiple
}
