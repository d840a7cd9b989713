package center

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// voRatio bounds the object to this fraction of the detector width
	voRatio = 0.5

	// voSearch limits the coarse search to this many pixels either side of
	// the middle column
	voSearch = 50

	voDrop = 20
)

// VoSearch finds the center of a sinogram covering [0, pi) with Nghia Vo's
// Fourier method. The sinogram is extended to 360 degrees with its mirror
// image shifted by a trial amount; at the right shift the 360 degree
// sinogram is continuous, and a double wedge of its 2D spectrum around the
// angular frequency axis holds almost no energy. A coarse search in whole
// pixels of shift is refined in steps of 2*tol.
//
// sino holds nAngles rows of nCols values.
func VoSearch(sino []float64, nAngles, nCols int, tol float64) (float64, error) {
	if nAngles < 2 || nCols < 4 || len(sino) != nAngles*nCols {
		return 0, fmt.Errorf("%w: %d values for %d angles of %d columns", ErrGeometry, len(sino), nAngles, nCols)
	}

	v := newVoMetric(sino, nAngles, nCols)

	radius := nCols / 2
	if radius > 2*voSearch {
		radius = 2 * voSearch
	}
	best, bestScore := 0.0, math.Inf(1)
	for s := -radius; s <= radius; s++ {
		if score := v.score(float64(s)); score < bestScore {
			best, bestScore = float64(s), score
		}
	}

	if tol > 0 {
		step := 2 * tol
		start := best - 1
		for k := 0; float64(k)*step <= 2+1e-9; k++ {
			s := start + float64(k)*step
			if score := v.score(s); score < bestScore {
				best, bestScore = s, score
			}
		}
	}

	return float64(nCols)/2 + best/2, nil
}

// voMetric holds the buffers for scoring trial shifts of one sinogram.
type voMetric struct {
	sino    []float64
	nAngles int
	nCols   int

	rows    *fourier.FFT
	cols    *fourier.CmplxFFT
	mask    [][]bool
	rowIn   []float64
	rowOut  []complex128
	spect   []complex128
	column  []complex128
	colSpec []complex128
	flipped []float64
}

func newVoMetric(sino []float64, nAngles, nCols int) *voMetric {
	nRows := 2 * nAngles
	half := nCols/2 + 1

	v := &voMetric{
		sino:    sino,
		nAngles: nAngles,
		nCols:   nCols,
		rows:    fourier.NewFFT(nCols),
		cols:    fourier.NewCmplxFFT(nRows),
		rowIn:   make([]float64, nCols),
		rowOut:  make([]complex128, half),
		spect:   make([]complex128, nRows*half),
		column:  make([]complex128, nRows),
		colSpec: make([]complex128, nRows),
		flipped: make([]float64, nCols),
	}

	drop := voDrop
	if drop > nRows/16 {
		drop = nRows / 16
	}
	slope := float64(nRows-1) / (float64(nRows) * 2 * math.Pi) * float64(nCols) / (0.5 * voRatio * float64(nCols))

	v.mask = make([][]bool, nRows)
	for i := range v.mask {
		ky := i
		if ky > nRows/2 {
			ky -= nRows
		}
		v.mask[i] = make([]bool, half)
		for kx := 0; kx < half; kx++ {
			if kx <= 1 || abs(ky) <= drop {
				continue
			}
			v.mask[i][kx] = float64(kx) <= float64(abs(ky))*slope
		}
	}
	return v
}

// score returns the mean spectral magnitude inside the mask for a shift s
// of the mirrored half.
func (v *voMetric) score(s float64) float64 {
	half := v.nCols/2 + 1
	nRows := 2 * v.nAngles

	for a := 0; a < v.nAngles; a++ {
		row := v.sino[a*v.nCols : (a+1)*v.nCols]
		v.rows.Coefficients(v.rowOut, row)
		copy(v.spect[a*half:(a+1)*half], v.rowOut)

		for j := 0; j < v.nCols; j++ {
			v.flipped[j] = row[v.nCols-1-j]
		}
		for j := 0; j < v.nCols; j++ {
			v.rowIn[j] = sampleClamped(v.flipped, float64(j)-s)
		}
		v.rows.Coefficients(v.rowOut, v.rowIn)
		copy(v.spect[(v.nAngles+a)*half:(v.nAngles+a+1)*half], v.rowOut)
	}

	var sum float64
	var count int
	for kx := 0; kx < half; kx++ {
		for i := 0; i < nRows; i++ {
			v.column[i] = v.spect[i*half+kx]
		}
		v.cols.Coefficients(v.colSpec, v.column)
		for i := 0; i < nRows; i++ {
			if v.mask[i][kx] {
				sum += cmplx.Abs(v.colSpec[i])
				count++
			}
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// sampleClamped linearly interpolates x at fractional index t, holding the
// edge values beyond either end.
func sampleClamped(x []float64, t float64) float64 {
	if t <= 0 {
		return x[0]
	}
	last := len(x) - 1
	if t >= float64(last) {
		return x[last]
	}
	i := int(t)
	w := t - float64(i)
	return (1-w)*x[i] + w*x[i+1]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
