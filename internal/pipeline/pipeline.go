// Package pipeline runs the dewarping sequence: segmentation, curve
// extraction, warp fitting, rectification, binarization. Each stage consumes
// the previous stage's artifact and produces a new one; nothing is mutated
// after creation, so intermediates can be handed out for diagnostics.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/sirupsen/logrus"

	"score-dewarp/internal/binarize"
	"score-dewarp/internal/features"
	"score-dewarp/internal/imaging"
	"score-dewarp/internal/rectify"
	"score-dewarp/internal/segment"
	"score-dewarp/internal/warp"
)

// Diagnostics exposes intermediate artifacts and fit quality for inspection
// without re-running the pipeline.
type Diagnostics struct {
	Input     *image.Gray
	Mask      *segment.ClassMask
	Curves    *features.CurveSet
	Field     *warp.Field
	Rectified *image.Gray

	StaffCurves    int
	BoundaryCurves int
	Residuals      warp.Stats

	// LowConfidence is set when the run produced a usable result that should
	// be reviewed: residuals above the sanity bound or crossing curves.
	LowConfidence bool
	Warnings      []string
}

// Result is a completed run: the final bi-level page plus diagnostics.
type Result struct {
	Binary      *image.Gray
	Diagnostics Diagnostics
}

// Pipeline dewarps one page per Run call. Instances hold no mutable state
// between runs, so independent images may be processed by concurrent
// pipelines.
type Pipeline struct {
	adapter   *segment.Adapter
	extractor *features.Extractor
	fitter    *warp.Fitter
	cfg       Config
	log       *logrus.Entry
}

// New builds a pipeline around a classifier backend.
func New(classifier segment.Classifier, cfg Config) *Pipeline {
	return &Pipeline{
		adapter:   segment.NewAdapter(classifier, cfg.Segment),
		extractor: features.NewExtractor(cfg.Extract),
		fitter:    warp.NewFitter(cfg.Fit),
		cfg:       cfg,
		log:       logrus.WithField("component", "pipeline"),
	}
}

// Run dewarps one image. Fatal failures return a StageError identifying the
// stage and kind; degraded-but-usable results return normally with
// Diagnostics.LowConfidence set.
func (p *Pipeline) Run(ctx context.Context, img image.Image) (*Result, error) {
	if img == nil {
		return nil, stageErr("input", fmt.Errorf("%w: nil image", ErrInputInvalid))
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, stageErr("input", fmt.Errorf("%w: empty image %dx%d", ErrInputInvalid, w, h))
	}

	gray := imaging.ToGray(img)

	mask, err := p.classify(ctx, gray)
	if err != nil {
		return nil, stageErr("segment", err)
	}
	if mask.Width != w || mask.Height != h {
		return nil, stageErr("segment", fmt.Errorf("%w: mask extent %dx%d for %dx%d image",
			ErrSegmentationFailure, mask.Width, mask.Height, w, h))
	}

	start := time.Now()
	curves, err := p.extractor.Extract(mask)
	if err != nil {
		return nil, stageErr("features", err)
	}
	p.log.WithFields(logrus.Fields{
		"staff":     len(curves.Staff),
		"boundary":  len(curves.Boundary),
		"crossings": curves.Crossings,
		"took":      time.Since(start),
	}).Debug("curves extracted")

	if err := ctx.Err(); err != nil {
		return nil, stageErr("features", err)
	}

	start = time.Now()
	field, stats, err := p.fitter.Fit(curves, w, h)
	if err != nil {
		return nil, stageErr("warp", err)
	}
	p.log.WithFields(logrus.Fields{
		"rms":  stats.RMS,
		"max":  stats.Max,
		"took": time.Since(start),
	}).Debug("field fitted")

	if err := ctx.Err(); err != nil {
		return nil, stageErr("warp", err)
	}

	start = time.Now()
	rectified, err := rectify.Resample(gray, field, p.cfg.Rectify)
	if err != nil {
		return nil, stageErr("rectify", err)
	}
	p.log.WithField("took", time.Since(start)).Debug("resampled")

	start = time.Now()
	binary, err := binarize.Binarize(rectified, p.cfg.Binarize)
	if err != nil {
		return nil, stageErr("binarize", err)
	}
	p.log.WithField("took", time.Since(start)).Debug("binarized")

	diag := Diagnostics{
		Input:          gray,
		Mask:           mask,
		Curves:         curves,
		Field:          field,
		Rectified:      rectified,
		StaffCurves:    len(curves.Staff),
		BoundaryCurves: len(curves.Boundary),
		Residuals:      stats,
	}
	if stats.Degenerate {
		diag.LowConfidence = true
		diag.Warnings = append(diag.Warnings,
			fmt.Sprintf("fit residual RMS %.2f px exceeds sanity bound", stats.RMS))
	}
	if curves.Crossings > 0 {
		diag.LowConfidence = true
		diag.Warnings = append(diag.Warnings,
			fmt.Sprintf("%d staff curve pairs cross within the page", curves.Crossings))
	}

	return &Result{Binary: binary, Diagnostics: diag}, nil
}

// classify invokes the segmentation adapter under the configured timeout.
// The call is synchronous and never retried; retry policy belongs to the
// caller around the whole Run.
func (p *Pipeline) classify(ctx context.Context, gray *image.Gray) (*segment.ClassMask, error) {
	if p.cfg.SegmentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.SegmentTimeout)
		defer cancel()
	}
	start := time.Now()
	mask, err := p.adapter.Classify(ctx, gray)
	if err != nil {
		return nil, err
	}
	p.log.WithField("took", time.Since(start)).Debug("segmented")
	return mask, nil
}
