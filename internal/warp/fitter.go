package warp

import (
	"fmt"
	"math"

	"score-dewarp/internal/features"
)

// Options configures deformation-field fitting.
type Options struct {
	Degree        int     // maximum polynomial degree per curve
	OutlierCutoff float64 // MAD multiples beyond which samples lose influence
	MaxIterations int     // reweighting iteration cap
	LatticeStep   int     // field lattice spacing, px
	ResidualWarn  float64 // px; pooled RMS above this flags a degenerate fit
}

// DefaultOptions returns fitting defaults.
func DefaultOptions() Options {
	return Options{
		Degree:        3,
		OutlierCutoff: 3.0,
		MaxIterations: 8,
		LatticeStep:   16,
		ResidualWarn:  1.5,
	}
}

// Stats aggregates residual statistics across all fitted curves.
type Stats struct {
	RMS      float64 // pooled root-mean-square residual, px
	Max      float64 // worst inlier residual, px
	PerCurve []FitStats

	// Degenerate is set when residuals exceed the sanity bound. The field is
	// still returned; callers decide whether to accept the low-confidence
	// result.
	Degenerate bool
}

// Fitter builds deformation fields from curve sets.
type Fitter struct {
	opts Options
}

// NewFitter creates a fitter with the given options. Non-positive fields
// fall back to defaults so a partially filled Options cannot disable the
// robust fit.
func NewFitter(opts Options) *Fitter {
	def := DefaultOptions()
	if opts.Degree < 1 {
		opts.Degree = def.Degree
	}
	if opts.OutlierCutoff <= 0 {
		opts.OutlierCutoff = def.OutlierCutoff
	}
	if opts.MaxIterations < 1 {
		opts.MaxIterations = def.MaxIterations
	}
	if opts.LatticeStep < 1 {
		opts.LatticeStep = def.LatticeStep
	}
	if opts.ResidualWarn <= 0 {
		opts.ResidualWarn = def.ResidualWarn
	}
	return &Fitter{opts: opts}
}

// staffModel is one fitted staff curve: a smooth y(x) plus the flat row the
// rectified curve should land on.
type staffModel struct {
	fit    polyFit
	target float64
}

// edgeModel is one fitted page edge: a smooth x(y) plus its straightened
// column.
type edgeModel struct {
	fit    polyFit
	target float64
}

// Fit converts the curve set into a deformation field over a width x height
// canvas. Staff curves supply the vertical correction, page edges the
// horizontal one; the two are composed, not independently applied. Regions
// without curve coverage extend the nearest correction with influence
// decaying to identity at the canvas border, so edge pixels never map far
// outside the source.
func (f *Fitter) Fit(set *features.CurveSet, width, height int) (*Field, Stats, error) {
	if set == nil || set.Total() == 0 {
		return nil, Stats{}, fmt.Errorf("empty curve set")
	}
	if width <= 0 || height <= 0 {
		return nil, Stats{}, fmt.Errorf("invalid canvas extent %dx%d", width, height)
	}

	var stats Stats

	staff := make([]staffModel, 0, len(set.Staff))
	for _, c := range set.Staff {
		m, fs, err := f.fitStaff(c)
		if err != nil {
			return nil, stats, fmt.Errorf("staff curve fit: %w", err)
		}
		stats.PerCurve = append(stats.PerCurve, fs)
		staff = append(staff, m)
	}

	edges := make([]edgeModel, 0, len(set.Boundary))
	for _, c := range set.Boundary {
		m, fs, err := f.fitEdge(c)
		if err != nil {
			return nil, stats, fmt.Errorf("boundary curve fit: %w", err)
		}
		stats.PerCurve = append(stats.PerCurve, fs)
		edges = append(edges, m)
	}
	left, right := splitEdges(edges, width)

	field := newLattice(width, height, f.opts.LatticeStep)
	for j := 0; j < field.gh; j++ {
		y := float64(j * field.Step)
		for i := 0; i < field.gw; i++ {
			x := float64(i * field.Step)

			sy := y + verticalDisp(staff, x, y, height)

			// Horizontal correction is evaluated at the vertically corrected
			// position so corners are not corrected twice.
			ey := clampFloat(sy, 0, float64(height-1))
			sx := x + horizontalDisp(left, right, x, ey, width)

			field.setNode(i, j, sx, sy)
		}
	}

	// The smoothness of the per-curve fits makes folds unlikely, but clamping
	// lattice columns makes the no-fold invariant unconditional.
	field.enforceMonotonicY(1e-3)

	stats.RMS, stats.Max = pool(stats.PerCurve)
	stats.Degenerate = stats.RMS > f.opts.ResidualWarn
	return field, stats, nil
}

// fitStaff fits a staff curve's y(x) and its rectified target row.
func (f *Fitter) fitStaff(c features.Curve) (staffModel, FitStats, error) {
	ts := make([]float64, len(c.Points))
	vs := make([]float64, len(c.Points))
	for i, p := range c.Points {
		ts[i] = p.X
		vs[i] = p.Y
	}
	fit, fs, err := fitPolynomialRobust(ts, vs, f.degreeFor(len(ts)), f.opts.OutlierCutoff, f.opts.MaxIterations)
	if err != nil {
		return staffModel{}, fs, err
	}

	// The curve straightens onto the mean of its own smooth fit, which keeps
	// staff spacing close to the printed original.
	sum := 0.0
	for _, t := range ts {
		sum += fit.eval(t)
	}
	return staffModel{fit: fit, target: sum / float64(len(ts))}, fs, nil
}

// fitEdge fits a page edge's x(y) and its straightened target column.
func (f *Fitter) fitEdge(c features.Curve) (edgeModel, FitStats, error) {
	ts := make([]float64, len(c.Points))
	vs := make([]float64, len(c.Points))
	for i, p := range c.Points {
		ts[i] = p.Y
		vs[i] = p.X
	}
	fit, fs, err := fitPolynomialRobust(ts, vs, f.degreeFor(len(ts)), f.opts.OutlierCutoff, f.opts.MaxIterations)
	if err != nil {
		return edgeModel{}, fs, err
	}
	sum := 0.0
	for _, t := range ts {
		sum += fit.eval(t)
	}
	return edgeModel{fit: fit, target: sum / float64(len(ts))}, fs, nil
}

// degreeFor lowers the polynomial degree on short support; a cubic through a
// dozen points models noise, not page curvature.
func (f *Fitter) degreeFor(samples int) int {
	degree := f.opts.Degree
	switch {
	case samples < 10:
		degree = 1
	case samples < 30 && degree > 2:
		degree = 2
	}
	return degree
}

// verticalDisp computes the vertical source displacement at canvas (x, y).
// Between staff anchors the displacement interpolates linearly; above the
// first and below the last it decays to zero at the canvas border. A single
// staff curve yields its displacement uniformly (a global correction).
func verticalDisp(staff []staffModel, x, y float64, height int) float64 {
	switch len(staff) {
	case 0:
		return 0
	case 1:
		return staff[0].fit.eval(x) - staff[0].target
	}

	first := staff[0]
	last := staff[len(staff)-1]

	if y <= first.target {
		d := first.fit.eval(x) - first.target
		if first.target <= 0 {
			return d
		}
		return d * (y / first.target)
	}
	if y >= last.target {
		d := last.fit.eval(x) - last.target
		rest := float64(height-1) - last.target
		if rest <= 0 {
			return d
		}
		return d * ((float64(height-1) - y) / rest)
	}

	for k := 0; k < len(staff)-1; k++ {
		a, b := staff[k], staff[k+1]
		if y > b.target {
			continue
		}
		da := a.fit.eval(x) - a.target
		db := b.fit.eval(x) - b.target
		span := b.target - a.target
		if span <= 0 {
			return da
		}
		u := (y - a.target) / span
		return da + u*(db-da)
	}
	return last.fit.eval(x) - last.target
}

// horizontalDisp computes the horizontal source displacement at canvas x and
// (already vertically corrected) y. With both page edges available, columns
// remap linearly between the two straightened edges; with one, its shift
// decays to identity toward the opposite border.
func horizontalDisp(left, right *edgeModel, x, y float64, width int) float64 {
	switch {
	case left == nil && right == nil:
		return 0
	case left != nil && right != nil:
		lt, rt := left.target, right.target
		if rt-lt < 1 {
			return left.fit.eval(y) - lt
		}
		u := (x - lt) / (rt - lt)
		src := left.fit.eval(y) + u*(right.fit.eval(y)-left.fit.eval(y))
		return src - x
	}

	edge := left
	if edge == nil {
		edge = right
	}
	d := edge.fit.eval(y) - edge.target

	far := 0.0
	if edge.target < float64(width-1)/2 {
		far = float64(width - 1)
	}
	den := edge.target - far
	if den == 0 {
		return d
	}
	falloff := clampFloat((x-far)/den, 0, 1)
	return d * falloff
}

// splitEdges assigns fitted edges to the left and right page sides. Two
// edges whose straightened columns nearly coincide trace the same stroke;
// only the first is kept.
func splitEdges(edges []edgeModel, width int) (left, right *edgeModel) {
	switch len(edges) {
	case 0:
		return nil, nil
	case 1:
		e := edges[0]
		if e.target < float64(width)/2 {
			return &e, nil
		}
		return nil, &e
	}
	a, b := edges[0], edges[1]
	if a.target > b.target {
		a, b = b, a
	}
	if b.target-a.target < 1 {
		return &a, nil
	}
	return &a, &b
}

// pool combines per-curve residual statistics.
func pool(perCurve []FitStats) (rms, maxRes float64) {
	if len(perCurve) == 0 {
		return 0, 0
	}
	sumSq := 0.0
	for _, fs := range perCurve {
		sumSq += fs.RMS * fs.RMS
		maxRes = math.Max(maxRes, fs.Max)
	}
	return math.Sqrt(sumSq / float64(len(perCurve))), maxRes
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
