package features

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sort"

	"gocv.io/x/gocv"

	"score-dewarp/internal/segment"
	"score-dewarp/pkg/geometry"
)

// ErrInsufficientFeatures is returned when the mask yields too few usable
// curves for warp fitting to proceed. The error text carries the counts.
var ErrInsufficientFeatures = errors.New("insufficient features")

// Options configures curve extraction.
type Options struct {
	MinCurveFrac float64 // Minimum staff curve x-span as a fraction of image width

	// Run linking tolerances. Base values accept noisy starts; once a curve
	// has accumulated TightenAfter points the tight values apply, so an
	// established curve cannot be pulled away by nearby clutter.
	BaseDistTol   float64 // px, vertical distance from predicted position
	TightDistTol  float64
	BaseSlopeTol  float64 // rad, allowed local slope change
	TightSlopeTol float64
	TightenAfter  int

	MaxGapColumns int // Columns a curve may skip (ink crossing the line)

	CleanupIterations int // Morphological close iterations on the staff mask

	BoundaryEpsilon float64 // Douglas-Peucker tolerance for page-edge curves
	MinBoundaryFrac float64 // Minimum row coverage for a usable page edge
}

// DefaultOptions returns extraction defaults. The tolerances assume roughly
// 300 DPI scans with staff lines 1-3 px thick.
func DefaultOptions() Options {
	return Options{
		MinCurveFrac:      0.25,
		BaseDistTol:       3.0,
		TightDistTol:      1.5,
		BaseSlopeTol:      0.2,
		TightSlopeTol:     0.1,
		TightenAfter:      20,
		MaxGapColumns:     12,
		CleanupIterations: 1,
		BoundaryEpsilon:   0.75,
		MinBoundaryFrac:   0.3,
	}
}

// Extractor turns class masks into ordered curve sets.
type Extractor struct {
	opts Options
}

// NewExtractor creates an extractor with the given options.
func NewExtractor(opts Options) *Extractor {
	return &Extractor{opts: opts}
}

// Extract scans the mask for staff-line runs, grows them into curves, and
// derives page-edge curves from the margin class. It fails with
// ErrInsufficientFeatures when neither staff nor boundary curves are found.
func (e *Extractor) Extract(mask *segment.ClassMask) (*CurveSet, error) {
	if mask == nil || mask.Width == 0 || mask.Height == 0 {
		return nil, fmt.Errorf("empty class mask")
	}

	staffGrid := e.staffGrid(mask)
	staff := e.growStaffCurves(staffGrid, mask.Width, mask.Height)
	boundary := e.extractBoundary(mask)

	if len(staff) == 0 && len(boundary) == 0 {
		return nil, fmt.Errorf("%w: 0 staff curves, 0 boundary curves", ErrInsufficientFeatures)
	}

	set := &CurveSet{Staff: staff, Boundary: boundary}
	set.sortAndCheck()
	return set, nil
}

// staffGrid renders the staff class to a binary grid, optionally closing
// small gaps so ink crossing a line does not split it into fragments.
func (e *Extractor) staffGrid(mask *segment.ClassMask) []bool {
	w, h := mask.Width, mask.Height
	grid := make([]bool, w*h)

	if e.opts.CleanupIterations <= 0 {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				grid[y*w+x] = mask.At(x, y) == segment.Staff
			}
		}
		return grid
	}

	mat := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8U)
	defer mat.Close()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if mask.At(x, y) == segment.Staff {
				mat.SetUCharAt(y, x, 255)
			}
		}
	}

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: 3, Y: 3})
	defer kernel.Close()
	for i := 0; i < e.opts.CleanupIterations; i++ {
		gocv.MorphologyEx(mat, &mat, gocv.MorphClose, kernel)
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			grid[y*w+x] = mat.GetUCharAt(y, x) > 0
		}
	}
	return grid
}

// run is one vertical span of staff pixels within a column.
type run struct {
	x  int
	cy float64 // center y of the span
}

// growState tracks a candidate curve through the column sweep.
type growState int

const (
	stateSeeking growState = iota // one point, slope unknown
	stateExtending
	stateTerminated
)

// candidate is a staff curve being grown column by column.
type candidate struct {
	state    growState
	points   []geometry.Point2D
	slope    float64
	accepted int
}

func (c *candidate) lastPoint() geometry.Point2D {
	return c.points[len(c.points)-1]
}

// slopeBaseline is how many points back the tangent baseline reaches.
const slopeBaseline = 12

func (c *candidate) anchorPoint() geometry.Point2D {
	i := len(c.points) - slopeBaseline
	if i < 0 {
		i = 0
	}
	return c.points[i]
}

// predict extrapolates the candidate's tangent to column x.
func (c *candidate) predict(x int) float64 {
	last := c.lastPoint()
	return last.Y + c.slope*(float64(x)-last.X)
}

// growStaffCurves sweeps columns left to right, matching each column's
// vertical runs against active candidates. Matching is an explicit state
// machine per candidate, not a backtracking search: each column either
// extends a candidate, leaves it in a gap, or terminates it.
func (e *Extractor) growStaffCurves(grid []bool, w, h int) []Curve {
	var active []*candidate
	var done []*candidate

	for x := 0; x < w; x++ {
		runs := columnRuns(grid, w, h, x)
		matchedRuns := make([]bool, len(runs))

		// Collect every (candidate, run) pairing inside tolerance, then
		// assign greedily preferring the smallest slope change. The
		// smoothness prior outranks absolute distance when several runs are
		// plausible continuations.
		type pairing struct {
			cand        *candidate
			runIdx      int
			slopeChange float64
			dist        float64
		}
		var pairings []pairing

		for _, c := range active {
			if c.state == stateTerminated {
				continue
			}
			distTol, slopeTol := e.tolerances(c)
			pred := c.predict(x)
			anchor := c.anchorPoint()
			bdx := float64(x) - anchor.X

			for ri, r := range runs {
				dist := math.Abs(r.cy - pred)
				if dist > distTol {
					continue
				}
				// Slope measured over a multi-column baseline; a one-column
				// baseline would be dominated by run-center quantization.
				newSlope := (r.cy - anchor.Y) / bdx
				change := math.Abs(newSlope - c.slope)
				if c.state == stateExtending && change > slopeTol {
					continue
				}
				pairings = append(pairings, pairing{cand: c, runIdx: ri, slopeChange: change, dist: dist})
			}
		}

		sort.Slice(pairings, func(a, b int) bool {
			if pairings[a].slopeChange != pairings[b].slopeChange {
				return pairings[a].slopeChange < pairings[b].slopeChange
			}
			return pairings[a].dist < pairings[b].dist
		})

		taken := make(map[*candidate]bool)
		for _, p := range pairings {
			if taken[p.cand] || matchedRuns[p.runIdx] {
				continue
			}
			taken[p.cand] = true
			matchedRuns[p.runIdx] = true
			e.accept(p.cand, x, runs[p.runIdx].cy)
		}

		// Unmatched candidates age out after MaxGapColumns of silence.
		next := active[:0]
		for _, c := range active {
			if !taken[c] && float64(x)-c.lastPoint().X > float64(e.opts.MaxGapColumns) {
				c.state = stateTerminated
				done = append(done, c)
				continue
			}
			next = append(next, c)
		}
		active = next

		// Unmatched runs seed new candidates.
		for ri, r := range runs {
			if !matchedRuns[ri] {
				active = append(active, &candidate{
					state:  stateSeeking,
					points: []geometry.Point2D{{X: float64(r.x), Y: r.cy}},
				})
			}
		}
	}
	done = append(done, active...)

	minSpan := e.opts.MinCurveFrac * float64(w)
	var curves []Curve
	for _, c := range done {
		if len(c.points) < 2 {
			continue
		}
		span := c.points[len(c.points)-1].X - c.points[0].X
		if span < minSpan {
			// Short fragments are noise (ink, torn line ends), not staff lines.
			continue
		}
		curve, err := NewCurve(RoleStaff, c.points)
		if err != nil {
			continue
		}
		curves = append(curves, curve)
	}
	return curves
}

// accept extends a candidate with an observed run center and updates its
// tangent estimate.
func (e *Extractor) accept(c *candidate, x int, cy float64) {
	anchor := c.anchorPoint()
	newSlope := (cy - anchor.Y) / (float64(x) - anchor.X)

	switch c.state {
	case stateSeeking:
		c.slope = newSlope
		c.state = stateExtending
	default:
		// Exponential smoothing keeps the tangent stable against single-pixel
		// jitter while still following genuine page curvature.
		c.slope = 0.7*c.slope + 0.3*newSlope
	}
	c.points = append(c.points, geometry.Point2D{X: float64(x), Y: cy})
	c.accepted++
}

// tolerances returns the distance and slope tolerance for a candidate,
// tightening as confidence accumulates.
func (e *Extractor) tolerances(c *candidate) (dist, slope float64) {
	if c.accepted >= e.opts.TightenAfter {
		return e.opts.TightDistTol, e.opts.TightSlopeTol
	}
	return e.opts.BaseDistTol, e.opts.BaseSlopeTol
}

// columnRuns finds vertical spans of staff pixels in column x.
func columnRuns(grid []bool, w, h, x int) []run {
	var runs []run
	start := -1
	for y := 0; y <= h; y++ {
		on := y < h && grid[y*w+x]
		if on && start < 0 {
			start = y
		}
		if !on && start >= 0 {
			runs = append(runs, run{x: x, cy: float64(start+y-1) / 2})
			start = -1
		}
	}
	return runs
}

// extractBoundary derives left and right page-edge curves from the margin
// class: per row, the outermost margin pixels. Edges covering too few rows
// are discarded as unusable.
func (e *Extractor) extractBoundary(mask *segment.ClassMask) []Curve {
	w, h := mask.Width, mask.Height

	var left, right []geometry.Point2D
	for y := 0; y < h; y++ {
		minX, maxX := -1, -1
		for x := 0; x < w; x++ {
			if mask.At(x, y) == segment.Margin {
				if minX < 0 {
					minX = x
				}
				maxX = x
			}
		}
		if minX < 0 {
			continue
		}
		left = append(left, geometry.Point2D{X: float64(minX), Y: float64(y)})
		if maxX > minX {
			right = append(right, geometry.Point2D{X: float64(maxX), Y: float64(y)})
		}
	}

	minRows := int(e.opts.MinBoundaryFrac * float64(h))
	var curves []Curve
	for _, pts := range [][]geometry.Point2D{left, right} {
		if len(pts) < minRows || len(pts) < 2 {
			continue
		}
		simplified := geometry.SimplifyPath(pts, e.opts.BoundaryEpsilon)
		curve, err := NewCurve(RoleBoundary, simplified)
		if err != nil {
			continue
		}
		curves = append(curves, curve)
	}

	// A page outline thinner than a few pixels produces two edges tracing the
	// same stroke; keep only one of them.
	if len(curves) == 2 && math.Abs(curves[0].MeanOffset()-curves[1].MeanOffset()) < 5 {
		curves = curves[:1]
	}
	return curves
}
