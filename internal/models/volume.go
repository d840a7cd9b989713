package models

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Axes labels the semantic meaning of the three axes of a Volume.
// The same buffer layout is used for both labellings; only the meaning changes.
type Axes int

const (
	// ProjectionAxes is (angle, row, column): raw, corrected or normalized projections.
	ProjectionAxes Axes = iota

	// SliceAxes is (depth-row, y, x): reconstructed slices.
	SliceAxes
)

func (a Axes) String() string {
	switch a {
	case ProjectionAxes:
		return "angle,row,column"
	case SliceAxes:
		return "depth,y,x"
	}
	return fmt.Sprintf("Axes(%d)", int(a))
}

// Volume represents a 3D array of real values
type Volume struct {
	// Data is the 3D volume data as a 1D array in row-major order,
	// axis 2 varying fastest
	Data []float64

	// Shape is the extent of each axis
	Shape [3]int

	// Axes tells how the three axes are to be interpreted
	Axes Axes
}

// NewVolume allocates a zero-filled volume with the given shape.
func NewVolume(n0, n1, n2 int, axes Axes) *Volume {
	return &Volume{
		Data:  make([]float64, n0*n1*n2),
		Shape: [3]int{n0, n1, n2},
		Axes:  axes,
	}
}

// Len returns the number of voxels
func (v *Volume) Len() int {
	return v.Shape[0] * v.Shape[1] * v.Shape[2]
}

// Index returns the offset of (i, j, k) in Data
func (v *Volume) Index(i, j, k int) int {
	return (i*v.Shape[1]+j)*v.Shape[2] + k
}

func (v *Volume) At(i, j, k int) float64 { return v.Data[v.Index(i, j, k)] }

func (v *Volume) Set(i, j, k int, val float64) { v.Data[v.Index(i, j, k)] = val }

// Plane returns the i-th plane along axis 0. The returned slice aliases Data.
func (v *Volume) Plane(i int) []float64 {
	n := v.Shape[1] * v.Shape[2]
	return v.Data[i*n : (i+1)*n]
}

// Clone returns a deep copy of the volume.
func (v *Volume) Clone() *Volume {
	c := &Volume{Shape: v.Shape, Axes: v.Axes, Data: make([]float64, len(v.Data))}
	copy(c.Data, v.Data)
	return c
}

// Extrema returns the minimum and maximum values in the volume, ignoring NaN.
// An empty or all-NaN volume reports (0, 0).
func (v *Volume) Extrema() (min, max float64) {
	if len(v.Data) == 0 {
		return 0, 0
	}
	if !floats.HasNaN(v.Data) {
		return floats.Min(v.Data), floats.Max(v.Data)
	}
	min, max = math.Inf(1), math.Inf(-1)
	for _, x := range v.Data {
		if math.IsNaN(x) {
			continue
		}
		min = math.Min(min, x)
		max = math.Max(max, x)
	}
	if math.IsInf(min, 1) {
		return 0, 0
	}
	return min, max
}

// Sinogram copies the sinogram of detector row `row` out of a projection
// volume. The result has nAngles rows of nCols values each.
func (v *Volume) Sinogram(row int) []float64 {
	nA, nC := v.Shape[0], v.Shape[2]
	sino := make([]float64, nA*nC)
	for a := 0; a < nA; a++ {
		copy(sino[a*nC:(a+1)*nC], v.Data[v.Index(a, row, 0):v.Index(a, row, 0)+nC])
	}
	return sino
}

// Projection copies the projection at angle index a into a new (rows x cols) array.
func (v *Volume) Projection(a int) []float64 {
	p := make([]float64, v.Shape[1]*v.Shape[2])
	copy(p, v.Plane(a))
	return p
}

// PadColumns returns a new volume with n columns of edge padding added on
// both sides of axis 2. Each padded value replicates the nearest edge value.
func (v *Volume) PadColumns(n int) *Volume {
	if n <= 0 {
		return v.Clone()
	}
	n0, n1, n2 := v.Shape[0], v.Shape[1], v.Shape[2]
	out := NewVolume(n0, n1, n2+2*n, v.Axes)
	for i := 0; i < n0; i++ {
		for j := 0; j < n1; j++ {
			src := v.Data[v.Index(i, j, 0) : v.Index(i, j, 0)+n2]
			dst := out.Data[out.Index(i, j, 0) : out.Index(i, j, 0)+n2+2*n]
			for k := 0; k < n; k++ {
				dst[k] = src[0]
				dst[n+n2+k] = src[n2-1]
			}
			copy(dst[n:n+n2], src)
		}
	}
	return out
}

// Crop returns a new volume with `cols` values removed from each edge of
// axis 2 and `rows` values removed from each edge of axis 1.
func (v *Volume) Crop(cols, rows int) (*Volume, error) {
	if cols < 0 || rows < 0 {
		return nil, fmt.Errorf("negative crop (%d, %d)", cols, rows)
	}
	n0, n1, n2 := v.Shape[0], v.Shape[1], v.Shape[2]
	m1, m2 := n1-2*rows, n2-2*cols
	if m1 <= 0 || m2 <= 0 {
		return nil, fmt.Errorf("crop of %d columns and %d rows leaves nothing of shape %v", cols, rows, v.Shape)
	}
	out := NewVolume(n0, m1, m2, v.Axes)
	for i := 0; i < n0; i++ {
		for j := 0; j < m1; j++ {
			start := v.Index(i, j+rows, cols)
			copy(out.Data[out.Index(i, j, 0):out.Index(i, j, 0)+m2], v.Data[start:start+m2])
		}
	}
	return out, nil
}

// FloorNegatives replaces every negative value with floor and returns the
// number of values replaced.
func (v *Volume) FloorNegatives(floor float64) int {
	n := 0
	for i, x := range v.Data {
		if x < 0 {
			v.Data[i] = floor
			n++
		}
	}
	return n
}

// MinusLog applies x = -ln(x) in place.
func (v *Volume) MinusLog() {
	for i, x := range v.Data {
		v.Data[i] = -math.Log(x)
	}
}

// ReplaceNaN replaces NaN values with val and returns how many were replaced.
func (v *Volume) ReplaceNaN(val float64) int {
	n := 0
	for i, x := range v.Data {
		if math.IsNaN(x) {
			v.Data[i] = val
			n++
		}
	}
	return n
}
