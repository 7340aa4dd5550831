// Package warp fits a smooth deformation model from extracted curves and
// exposes it as a dense, fold-free mapping from rectified-canvas coordinates
// to source-image coordinates.
package warp

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// madScale converts median absolute deviation to a sigma-equivalent scale
// for normally distributed residuals.
const madScale = 1.4826

// polyFit is a fitted 1D polynomial over a normalized parameter. Inputs are
// centered and scaled to [-1, 1] before solving so the normal system stays
// well conditioned at cubic degree.
type polyFit struct {
	coeffs []float64
	mid    float64
	half   float64
}

// eval evaluates the polynomial by Horner's rule.
func (p polyFit) eval(t float64) float64 {
	u := 0.0
	if p.half != 0 {
		u = (t - p.mid) / p.half
	}
	v := 0.0
	for i := len(p.coeffs) - 1; i >= 0; i-- {
		v = v*u + p.coeffs[i]
	}
	return v
}

// FitStats reports the quality of one robust curve fit.
type FitStats struct {
	RMS        float64 // root-mean-square inlier residual, px
	Max        float64 // largest inlier residual, px
	Outliers   int     // samples driven to zero weight
	Iterations int     // reweighting iterations used
}

// fitPolynomialRobust fits value = poly(t) by iteratively reweighted least
// squares. Residuals beyond cutoff MAD-sigmas get zero weight, so a handful
// of misdetected points cannot bend the fit. The loop is a fixed point with
// an explicit iteration cap; it terminates when no weight flips.
func fitPolynomialRobust(ts, vs []float64, degree int, cutoff float64, maxIter int) (polyFit, FitStats, error) {
	n := len(ts)
	if n != len(vs) {
		return polyFit{}, FitStats{}, fmt.Errorf("sample count mismatch: %d vs %d", n, len(vs))
	}
	if n < 2 {
		return polyFit{}, FitStats{}, fmt.Errorf("need at least 2 samples, got %d", n)
	}
	if degree >= n {
		degree = n - 1
	}
	if degree < 1 {
		degree = 1
	}

	minT, maxT := ts[0], ts[0]
	for _, t := range ts[1:] {
		minT = math.Min(minT, t)
		maxT = math.Max(maxT, t)
	}
	fit := polyFit{
		mid:  (minT + maxT) / 2,
		half: (maxT - minT) / 2,
	}
	if fit.half == 0 {
		return polyFit{}, FitStats{}, fmt.Errorf("degenerate sample support")
	}

	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1
	}
	residuals := make([]float64, n)
	stats := FitStats{}

	for iter := 0; iter < maxIter; iter++ {
		stats.Iterations = iter + 1

		coeffs, err := solveWeighted(ts, vs, weights, degree, fit.mid, fit.half)
		if err != nil {
			return polyFit{}, stats, err
		}
		fit.coeffs = coeffs

		for i := range ts {
			residuals[i] = vs[i] - fit.eval(ts[i])
		}

		sigma := madScale * weightedMedianAbs(residuals, weights)
		if sigma < 1e-9 {
			// Inliers sit on the curve already; further reweighting is noise.
			break
		}

		flips := 0
		for i, r := range residuals {
			w := 1.0
			if math.Abs(r) > cutoff*sigma {
				w = 0
			}
			if w != weights[i] {
				flips++
			}
			weights[i] = w
		}
		if flips == 0 {
			break
		}
	}

	inliers := 0
	sumSq := 0.0
	for i, r := range residuals {
		if weights[i] == 0 {
			stats.Outliers++
			continue
		}
		inliers++
		sumSq += r * r
		stats.Max = math.Max(stats.Max, math.Abs(r))
	}
	if inliers > 0 {
		stats.RMS = math.Sqrt(sumSq / float64(inliers))
	}
	return fit, stats, nil
}

// solveWeighted solves the weighted least-squares polynomial system with QR
// factorization. Zero-weight rows stay in the system as zero rows.
func solveWeighted(ts, vs, weights []float64, degree int, mid, half float64) ([]float64, error) {
	n := len(ts)
	cols := degree + 1

	active := 0
	for _, w := range weights {
		if w > 0 {
			active++
		}
	}
	if active < cols {
		// Too many samples rejected; fall back to a line through what's left.
		cols = 2
		if active < 2 {
			return nil, fmt.Errorf("only %d usable samples after reweighting", active)
		}
	}

	A := mat.NewDense(n, cols, nil)
	b := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		sw := math.Sqrt(weights[i])
		u := (ts[i] - mid) / half
		pow := 1.0
		for j := 0; j < cols; j++ {
			A.Set(i, j, sw*pow)
			pow *= u
		}
		b.SetVec(i, sw*vs[i])
	}

	var qr mat.QR
	qr.Factorize(A)

	var params mat.VecDense
	if err := qr.SolveVecTo(&params, false, b); err != nil {
		return nil, fmt.Errorf("least squares solve: %w", err)
	}

	coeffs := make([]float64, cols)
	for j := 0; j < cols; j++ {
		coeffs[j] = params.AtVec(j)
	}
	return coeffs, nil
}

// weightedMedianAbs returns the median absolute residual over positive-weight
// samples.
func weightedMedianAbs(residuals, weights []float64) float64 {
	abs := make([]float64, 0, len(residuals))
	for i, r := range residuals {
		if weights[i] > 0 {
			abs = append(abs, math.Abs(r))
		}
	}
	if len(abs) == 0 {
		return 0
	}
	sort.Float64s(abs)
	return stat.Quantile(0.5, stat.Empirical, abs, nil)
}
