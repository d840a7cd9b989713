package center

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"tomorecon/internal/models"
	"tomorecon/pkg/recon"
)

// entropyBins is the number of histogram bins of the entropy objective
const entropyBins = 64

// Minimizer finds a local minimum of f near init, to within tol.
type Minimizer func(f func(float64) float64, init, tol float64) (float64, error)

// NelderMead is the default Minimizer, a one dimensional Nelder-Mead
// simplex search with an initial simplex of a few pixels.
func NelderMead(f func(float64) float64, init, tol float64) (float64, error) {
	problem := optimize.Problem{
		Func: func(x []float64) float64 { return f(x[0]) },
	}
	settings := &optimize.Settings{
		FuncEvaluations: 80,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-9,
			Iterations: 8,
		},
	}
	method := &optimize.NelderMead{SimplexSize: math.Max(8*tol, 1)}

	result, err := optimize.Minimize(problem, []float64{init}, settings, method)
	if result == nil {
		return 0, fmt.Errorf("entropy minimisation failed: %w", err)
	}
	return result.X[0], nil
}

// EntropySearch finds the center of one sinogram by minimising the entropy
// of the histogram of its reconstruction.
type EntropySearch struct {
	// Minimize defaults to NelderMead
	Minimize Minimizer

	Budget models.ComputeBudget
}

// Find searches near init for the center of sino, which holds
// len(theta) rows of nCols values.
func (e EntropySearch) Find(sino []float64, nCols int, theta []float64, init, tol float64) (float64, error) {
	if nCols < 1 || len(sino) != len(theta)*nCols {
		return 0, fmt.Errorf("%w: %d values for %d angles of %d columns", ErrGeometry, len(sino), len(theta), nCols)
	}
	minimize := e.Minimize
	if minimize == nil {
		minimize = NelderMead
	}

	opts := recon.Options{Algorithm: recon.Gridrec, Filter: recon.Shepp, Budget: e.Budget}

	// The histogram range is fixed by the reconstruction at the seed so
	// every candidate is binned the same way
	ref, err := recon.Kernel{}.ReconstructSlice(sino, nCols, theta, recon.Centers{Scalar: init}, opts)
	if err != nil {
		return 0, err
	}
	inner := circle(ref, nCols)
	sort.Float64s(inner)
	lo := stat.Quantile(0.005, stat.Empirical, inner, nil)
	hi := stat.Quantile(0.995, stat.Empirical, inner, nil)
	if !(hi > lo) {
		return init, nil
	}

	var evalErr error
	objective := func(c float64) float64 {
		img, err := recon.Kernel{}.ReconstructSlice(sino, nCols, theta, recon.Centers{Scalar: c}, opts)
		if err != nil {
			evalErr = err
			return math.Inf(1)
		}
		return histogramEntropy(circle(img, nCols), lo, hi)
	}

	c, err := minimize(objective, init, tol)
	if evalErr != nil {
		return 0, evalErr
	}
	if err != nil {
		return 0, err
	}
	return c, nil
}

// circle returns the pixels of an n x n image inside the inscribed circle.
func circle(img []float64, n int) []float64 {
	r := 0.95 * float64(n) / 2
	out := make([]float64, 0, len(img))
	for iy := 0; iy < n; iy++ {
		for ix := 0; ix < n; ix++ {
			x := float64(ix) + 0.5 - float64(n)/2
			y := float64(iy) + 0.5 - float64(n)/2
			if x*x+y*y <= r*r {
				out = append(out, img[iy*n+ix])
			}
		}
	}
	return out
}

// histogramEntropy bins x over [lo, hi], clipping values outside it, and
// returns the Shannon entropy of the bin frequencies.
func histogramEntropy(x []float64, lo, hi float64) float64 {
	if len(x) == 0 {
		return 0
	}
	clipped := make([]float64, len(x))
	for i, v := range x {
		clipped[i] = math.Min(math.Max(v, lo), hi)
	}
	sort.Float64s(clipped)

	dividers := floats.Span(make([]float64, entropyBins+1), lo, hi)
	dividers[entropyBins] = math.Nextafter(hi, math.Inf(1))
	counts := stat.Histogram(nil, dividers, clipped, nil)
	floats.Scale(1/floats.Sum(counts), counts)
	return stat.Entropy(counts)
}
