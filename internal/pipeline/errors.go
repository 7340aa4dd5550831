package pipeline

import (
	"errors"
	"fmt"

	"score-dewarp/internal/features"
	"score-dewarp/internal/segment"
)

// Failure kinds. Segmentation and feature kinds are re-exported from their
// producing packages so callers match on one set.
var (
	// ErrInputInvalid marks an empty or nil input image, rejected before any
	// stage runs.
	ErrInputInvalid = errors.New("input invalid")

	// ErrSegmentationFailure marks an unavailable classifier or malformed
	// mask. Fatal: all downstream geometry depends on the mask.
	ErrSegmentationFailure = segment.ErrSegmentationFailure

	// ErrInsufficientFeatures marks a mask with too few usable curves to fit
	// a warp. Fatal: guessing a degenerate warp would be worse than failing.
	ErrInsufficientFeatures = features.ErrInsufficientFeatures
)

// StageError wraps a failure with the pipeline stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}
