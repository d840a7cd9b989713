// Package recon is the in-process reconstruction kernel. It turns the
// sinograms of a normalized projection volume into square slices using
// either filtered back-projection or one of the iterative algorithms, with
// a rotation center that may vary per projection angle.
package recon

import (
	"errors"
	"fmt"
	"runtime"

	"tomorecon/internal/models"
)

var (
	ErrGeometry   = errors.New("sinogram geometry mismatch")
	ErrIterations = errors.New("iterative algorithm needs at least one iteration")
)

// Kernel reconstructs volumes. The zero value is ready to use.
type Kernel struct{}

// Reconstruct reconstructs every detector row of a projection volume.
//
// Parameters:
//   - v: projections with shape (nAngles, nRows, nCols)
//   - theta: one angle in radians per projection
//   - c: rotation center, scalar or one per angle, in column coordinates of v
//   - opts: algorithm, filter, iteration count and compute budget
//
// Returns:
//   - A volume of shape (nRows, nCols, nCols) labelled with SliceAxes
func (Kernel) Reconstruct(v *models.Volume, theta []float64, c Centers, opts Options) (*models.Volume, error) {
	nA, nRows, nC := v.Shape[0], v.Shape[1], v.Shape[2]
	if err := check(nA, nC, theta, c, opts); err != nil {
		return nil, err
	}

	out := models.NewVolume(nRows, nC, nC, models.SliceAxes)
	p := newProjector(nC, nC, theta, c)

	workers := opts.Budget.CoreCount
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	chunk := opts.Budget.ChunkCount
	if chunk < 1 {
		chunk = 1
	}

	// Each job is a range of rows; workers write disjoint planes of out
	type job struct{ start, end int }
	jobs := make(chan job)
	done := make(chan struct{})

	for w := 0; w < workers; w++ {
		go func() {
			for j := range jobs {
				for row := j.start; row < j.end; row++ {
					copy(out.Plane(row), slice(p, v.Sinogram(row), opts))
				}
			}
			done <- struct{}{}
		}()
	}

	for start := 0; start < nRows; start += chunk {
		end := start + chunk
		if end > nRows {
			end = nRows
		}
		jobs <- job{start, end}
	}
	close(jobs)

	for w := 0; w < workers; w++ {
		<-done
	}

	return out, nil
}

// ReconstructSlice reconstructs one sinogram of nAngles x nCols values into
// an nCols x nCols slice. sino is not modified.
func (Kernel) ReconstructSlice(sino []float64, nCols int, theta []float64, c Centers, opts Options) ([]float64, error) {
	if nCols < 1 || len(sino) != len(theta)*nCols {
		return nil, fmt.Errorf("%w: %d values for %d angles of %d columns", ErrGeometry, len(sino), len(theta), nCols)
	}
	if err := check(len(theta), nCols, theta, c, opts); err != nil {
		return nil, err
	}
	p := newProjector(nCols, nCols, theta, c)
	return slice(p, append([]float64(nil), sino...), opts), nil
}

func check(nA, nC int, theta []float64, c Centers, opts Options) error {
	if nA == 0 || nC == 0 {
		return fmt.Errorf("%w: empty sinogram", ErrGeometry)
	}
	if len(theta) != nA {
		return fmt.Errorf("%w: %d angles for %d projections", ErrGeometry, len(theta), nA)
	}
	if c.Schedule != nil && len(c.Schedule) != nA {
		return fmt.Errorf("%w: %d centers for %d projections", ErrGeometry, len(c.Schedule), nA)
	}
	if int(opts.Algorithm) < 0 || int(opts.Algorithm) >= len(algorithmNames) {
		return fmt.Errorf("%w: %v", ErrUnknownAlgorithm, opts.Algorithm)
	}
	if int(opts.Filter) < 0 || int(opts.Filter) >= len(filterNames) {
		return fmt.Errorf("%w: %v", ErrUnknownFilter, opts.Filter)
	}
	if !opts.Algorithm.Analytic() && opts.Iterations < 1 {
		return fmt.Errorf("%w: %s with %d", ErrIterations, opts.Algorithm, opts.Iterations)
	}
	return nil
}

// slice reconstructs one sinogram, which it may overwrite.
func slice(p *projector, sino []float64, opts Options) []float64 {
	if opts.Algorithm.Analytic() {
		return filteredBackProjection(p, sino, opts.Filter)
	}
	return iterative(p, sino, opts.Algorithm, opts.Iterations)
}
