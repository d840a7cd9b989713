package center

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Correlate0180 estimates the center from a projection and the projection
// taken half a turn later. The partner is mirrored left to right and
// cross-correlated with proj, row by row; the offset o of the correlation
// peak gives center = nCols/2 + o/2. The result is rounded to a multiple
// of tol when tol > 0.
//
// Both projections hold nRows rows of nCols values.
func Correlate0180(proj, partner []float64, nRows, nCols int, tol float64) (float64, error) {
	if nRows < 1 || nCols < 1 || len(proj) != nRows*nCols || len(partner) != nRows*nCols {
		return 0, fmt.Errorf("%w: projections of %d and %d values for %d x %d", ErrGeometry, len(proj), len(partner), nRows, nCols)
	}

	size := nextPow2(2 * nCols)
	fft := fourier.NewFFT(size)

	a := make([]float64, size)
	b := make([]float64, size)
	ca := make([]complex128, size/2+1)
	cb := make([]complex128, size/2+1)
	cross := make([]complex128, size/2+1)

	for r := 0; r < nRows; r++ {
		row := proj[r*nCols : (r+1)*nCols]
		mirror := partner[r*nCols : (r+1)*nCols]
		for i := range a {
			a[i], b[i] = 0, 0
		}
		copy(a, row)
		for i := 0; i < nCols; i++ {
			b[i] = mirror[nCols-1-i]
		}
		fft.Coefficients(ca, a)
		fft.Coefficients(cb, b)
		for k := range cross {
			cross[k] += ca[k] * complex(real(cb[k]), -imag(cb[k]))
		}
	}

	corr := fft.Sequence(nil, cross)
	at := func(o int) float64 {
		if o < 0 {
			o += size
		}
		return corr[o]
	}

	best := 0
	for o := -(nCols - 1); o <= nCols-1; o++ {
		if at(o) > at(best) {
			best = o
		}
	}

	offset := float64(best)
	if best > -(nCols-1) && best < nCols-1 {
		offset += parabolicPeak(at(best-1), at(best), at(best+1))
	}

	c := float64(nCols)/2 + offset/2
	if tol > 0 {
		c = math.Round(c/tol) * tol
	}
	return c, nil
}

// parabolicPeak returns the sub-sample position, in [-0.5, 0.5], of the
// vertex of the parabola through three samples around a maximum.
func parabolicPeak(left, mid, right float64) float64 {
	denom := left - 2*mid + right
	if denom >= 0 {
		return 0
	}
	d := 0.5 * (left - right) / denom
	return math.Max(-0.5, math.Min(0.5, d))
}
