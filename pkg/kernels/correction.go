package kernels

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"tomorecon/internal/models"
)

var (
	ErrEvenKernel = errors.New("kernel size must be odd and positive")
	ErrShape      = errors.New("reference frame shape mismatch")
)

// RemoveOutliers replaces every pixel that differs from the median of its
// size x size neighbourhood in the same projection by more than threshold
// with that median. size must be odd. It returns the number of pixels
// replaced.
func RemoveOutliers(v *models.Volume, threshold float64, size int, budget models.ComputeBudget) (*models.Volume, int, error) {
	if size < 1 || size%2 == 0 {
		return v, 0, fmt.Errorf("%w: %d", ErrEvenKernel, size)
	}
	if threshold <= 0 || size == 1 {
		return v, 0, nil
	}

	nRows, nCols := v.Shape[1], v.Shape[2]
	counts := make([]int, v.Shape[0])
	parallel(v.Shape[0], budget, func(a int) {
		plane := v.Plane(a)
		med := medianFilter2D(plane, nRows, nCols, size)
		for i, x := range plane {
			if math.Abs(x-med[i]) > threshold {
				plane[i] = med[i]
				counts[a]++
			}
		}
	})

	total := 0
	for _, c := range counts {
		total += c
	}
	return v, total, nil
}

// medianFilter2D returns the size x size median of an nRows x nCols image,
// with the window clipped at the borders.
func medianFilter2D(img []float64, nRows, nCols, size int) []float64 {
	half := size / 2
	out := make([]float64, len(img))
	window := make([]float64, 0, size*size)
	for r := 0; r < nRows; r++ {
		for c := 0; c < nCols; c++ {
			window = window[:0]
			for dr := -half; dr <= half; dr++ {
				rr := r + dr
				if rr < 0 || rr >= nRows {
					continue
				}
				for dc := -half; dc <= half; dc++ {
					cc := c + dc
					if cc < 0 || cc >= nCols {
						continue
					}
					window = append(window, img[rr*nCols+cc])
				}
			}
			out[r*nCols+c] = median(window)
		}
	}
	return out
}

// median returns the median of values, reordering them.
func median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sort.Float64s(values)
	if n%2 == 0 {
		return (values[n/2-1] + values[n/2]) / 2
	}
	return values[n/2]
}

// medianFilter1D returns the running median of x over an odd window, with
// the window clipped at both ends.
func medianFilter1D(x []float64, size int) []float64 {
	half := size / 2
	out := make([]float64, len(x))
	window := make([]float64, 0, size)
	for i := range x {
		window = window[:0]
		for j := i - half; j <= i+half; j++ {
			if j >= 0 && j < len(x) {
				window = append(window, x[j])
			}
		}
		out[i] = median(window)
	}
	return out
}

// RemoveStripes suppresses vertical stripes in every sinogram with a
// smoothing filter on the column profile: the mean of each detector column
// over all angles is median-smoothed over size columns, and the difference
// between the profile and its smoothed version is subtracted from every
// angle. size must be odd.
func RemoveStripes(v *models.Volume, size int, budget models.ComputeBudget) (*models.Volume, error) {
	if size < 1 || size%2 == 0 {
		return v, fmt.Errorf("%w: %d", ErrEvenKernel, size)
	}
	if size == 1 {
		return v, nil
	}

	nA, nRows, nCols := v.Shape[0], v.Shape[1], v.Shape[2]
	parallel(nRows, budget, func(row int) {
		profile := make([]float64, nCols)
		for a := 0; a < nA; a++ {
			start := v.Index(a, row, 0)
			for c, x := range v.Data[start : start+nCols] {
				profile[c] += x
			}
		}
		for c := range profile {
			profile[c] /= float64(nA)
		}
		smooth := medianFilter1D(profile, size)
		for a := 0; a < nA; a++ {
			start := v.Index(a, row, 0)
			line := v.Data[start : start+nCols]
			for c := range line {
				line[c] -= profile[c] - smooth[c]
			}
		}
	})
	return v, nil
}

// RemoveRings suppresses ring artifacts in reconstructed slices. The radial
// profile of each slice about its centre is median-smoothed over size
// radial bins and the difference is subtracted again at every pixel, so
// rings get the same treatment stripes get in the sinogram. size must be
// odd.
func RemoveRings(v *models.Volume, size int, budget models.ComputeBudget) (*models.Volume, error) {
	if size < 1 || size%2 == 0 {
		return v, fmt.Errorf("%w: %d", ErrEvenKernel, size)
	}
	if size == 1 {
		return v, nil
	}

	ny, nx := v.Shape[1], v.Shape[2]
	cy, cx := float64(ny)/2, float64(nx)/2
	nBins := int(math.Ceil(math.Hypot(cx, cy))) + 1

	radius := func(iy, ix int) float64 {
		return math.Hypot(float64(ix)+0.5-cx, float64(iy)+0.5-cy)
	}

	parallel(v.Shape[0], budget, func(z int) {
		plane := v.Plane(z)
		sum := make([]float64, nBins)
		n := make([]float64, nBins)
		for iy := 0; iy < ny; iy++ {
			for ix := 0; ix < nx; ix++ {
				b := int(radius(iy, ix))
				sum[b] += plane[iy*nx+ix]
				n[b]++
			}
		}
		profile := make([]float64, 0, nBins)
		used := make([]int, 0, nBins)
		for b := range sum {
			if n[b] > 0 {
				profile = append(profile, sum[b]/n[b])
				used = append(used, b)
			}
		}
		smooth := medianFilter1D(profile, size)

		ring := make([]float64, nBins)
		for i, b := range used {
			ring[b] = profile[i] - smooth[i]
		}
		for iy := 0; iy < ny; iy++ {
			for ix := 0; ix < nx; ix++ {
				plane[iy*nx+ix] -= ring[int(radius(iy, ix))]
			}
		}
	})
	return v, nil
}
