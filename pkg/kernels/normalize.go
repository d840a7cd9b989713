package kernels

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"tomorecon/internal/models"
)

// denominatorFloor keeps flat - dark away from zero
const denominatorFloor = 1e-6

var ErrNoFlat = errors.New("no flat field")

// meanFrame averages the frames of a (frame, row, column) reference volume
// into one row x column image.
func meanFrame(ref *models.Volume) []float64 {
	n := ref.Shape[1] * ref.Shape[2]
	out := make([]float64, n)
	for f := 0; f < ref.Shape[0]; f++ {
		floats.Add(out, ref.Plane(f))
	}
	if ref.Shape[0] > 1 {
		floats.Scale(1/float64(ref.Shape[0]), out)
	}
	return out
}

// Normalize applies (raw - dark) / (flat - dark) to every projection, with
// the denominator floored at a small positive value. Multi-frame flat and
// dark volumes are averaged first. A nil dark is treated as zero.
func Normalize(v, flat, dark *models.Volume, budget models.ComputeBudget) (*models.Volume, error) {
	if flat == nil {
		return v, ErrNoFlat
	}
	shape := [2]int{v.Shape[1], v.Shape[2]}
	if [2]int{flat.Shape[1], flat.Shape[2]} != shape {
		return v, fmt.Errorf("%w: flat %v for projections %v", ErrShape, flat.Shape, v.Shape)
	}

	f := meanFrame(flat)
	d := make([]float64, len(f))
	if dark != nil {
		if [2]int{dark.Shape[1], dark.Shape[2]} != shape {
			return v, fmt.Errorf("%w: dark %v for projections %v", ErrShape, dark.Shape, v.Shape)
		}
		d = meanFrame(dark)
	}

	denom := make([]float64, len(f))
	for i := range f {
		denom[i] = f[i] - d[i]
		if denom[i] < denominatorFloor {
			denom[i] = denominatorFloor
		}
	}

	parallel(v.Shape[0], budget, func(a int) {
		plane := v.Plane(a)
		floats.Sub(plane, d)
		floats.Div(plane, denom)
	})
	return v, nil
}

// NormalizeBackground divides every projection row by a linear ramp running
// from the mean of its air leftmost columns to the mean of its air
// rightmost columns, so that unobstructed air reads 1 on both sides.
func NormalizeBackground(v *models.Volume, air int, budget models.ComputeBudget) (*models.Volume, error) {
	nCols := v.Shape[2]
	if air <= 0 {
		return v, nil
	}
	if 2*air > nCols {
		return v, fmt.Errorf("%d air pixels on each side of %d columns", air, nCols)
	}

	nRows := v.Shape[1]
	parallel(v.Shape[0], budget, func(a int) {
		plane := v.Plane(a)
		for r := 0; r < nRows; r++ {
			line := plane[r*nCols : (r+1)*nCols]
			left := floats.Sum(line[:air]) / float64(air)
			right := floats.Sum(line[nCols-air:]) / float64(air)
			for c := range line {
				t := 0.0
				if nCols > 1 {
					t = float64(c) / float64(nCols-1)
				}
				bg := left + t*(right-left)
				if bg > denominatorFloor {
					line[c] /= bg
				}
			}
		}
	})
	return v, nil
}
