package pipeline

import (
	"time"

	"score-dewarp/internal/binarize"
	"score-dewarp/internal/features"
	"score-dewarp/internal/rectify"
	"score-dewarp/internal/segment"
	"score-dewarp/internal/warp"
)

// Config collects the tunables of one pipeline instance.
type Config struct {
	Segment segment.AdapterOptions
	// SegmentTimeout bounds the single classifier invocation; zero means no
	// timeout beyond the caller's context. The call is not retried here.
	SegmentTimeout time.Duration

	Extract  features.Options
	Fit      warp.Options
	Rectify  rectify.Options
	Binarize binarize.Options
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Segment:        segment.DefaultAdapterOptions(),
		SegmentTimeout: 2 * time.Minute,
		Extract:        features.DefaultOptions(),
		Fit:            warp.DefaultOptions(),
		Rectify:        rectify.DefaultOptions(),
		Binarize:       binarize.DefaultOptions(),
	}
}

// WithMinCurveLength returns a copy with the minimum staff curve length as a
// fraction of image width.
func (c Config) WithMinCurveLength(frac float64) Config {
	c.Extract.MinCurveFrac = frac
	return c
}

// WithOutlierRejection returns a copy with the outlier rejection strength in
// MAD multiples; lower is stricter.
func (c Config) WithOutlierRejection(cutoff float64) Config {
	c.Fit.OutlierCutoff = cutoff
	return c
}

// WithFillValue returns a copy with the value written for out-of-bounds
// samples.
func (c Config) WithFillValue(v uint8) Config {
	c.Rectify.FillValue = v
	return c
}

// WithBinarizeWindow returns a copy with the local threshold window size.
func (c Config) WithBinarizeWindow(window int) Config {
	c.Binarize.Window = window
	return c
}

// WithSegmentTimeout returns a copy with the classifier invocation timeout.
func (c Config) WithSegmentTimeout(d time.Duration) Config {
	c.SegmentTimeout = d
	return c
}
