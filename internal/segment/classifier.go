package segment

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// ErrSegmentationFailure is returned when the external classifier is
// unavailable, times out, or produces a malformed mask. It is fatal for the
// run: all downstream geometry depends on the mask.
var ErrSegmentationFailure = errors.New("segmentation failure")

// Classifier is the capability boundary to the external segmentation model.
// Implementations must return a mask with the same spatial extent as the
// input image. The input may be a SubImage whose bounds carry its position
// within a larger page; implementations that work tile-by-tile may ignore the
// offset, ground-truth stubs use it to crop.
type Classifier interface {
	Classify(ctx context.Context, img image.Image) (*ClassMask, error)

	// InputStride reports the dimension granularity the model requires
	// (e.g. 32 for a 5-level encoder-decoder). 1 means any size.
	InputStride() int
}

// Stub is a Classifier backed by a fixed ground-truth mask. It serves tests
// and offline experiments; position information comes from the bounds of the
// image passed to Classify.
type Stub struct {
	Mask *ClassMask
}

// NewStub creates a stub classifier returning crops of the given mask.
func NewStub(mask *ClassMask) *Stub {
	return &Stub{Mask: mask}
}

// Classify returns the portion of the ground-truth mask covered by the
// bounds of img.
func (s *Stub) Classify(ctx context.Context, img image.Image) (*ClassMask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Mask == nil {
		return nil, fmt.Errorf("stub has no mask")
	}
	b := img.Bounds()
	if b.Min.X == 0 && b.Min.Y == 0 && b.Dx() == s.Mask.Width && b.Dy() == s.Mask.Height {
		return s.Mask, nil
	}
	crop, err := s.Mask.Crop(b.Min.X, b.Min.Y, b.Dx(), b.Dy())
	if err != nil {
		return nil, fmt.Errorf("stub crop: %w", err)
	}
	return crop, nil
}

// InputStride implements Classifier.
func (s *Stub) InputStride() int { return 1 }
