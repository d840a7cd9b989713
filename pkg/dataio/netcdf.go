// Package dataio reads acquisitions from disk and writes exported volumes.
//
// Acquisitions come from netCDF classic files (variables data, flat, dark
// and theta) or FITS files (primary image plus FLAT and DARK extensions).
// Exports go to a single netCDF container or to one TIFF or FITS file per
// slice.
package dataio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/cdf"

	"tomorecon/internal/models"
	"tomorecon/pkg/export"
)

var (
	ErrUnknownExtension = errors.New("unrecognised file extension")
	ErrMissingVariable  = errors.New("missing variable")
)

// Import reads an acquisition, choosing the reader from the file extension.
func Import(path string) (*models.Acquisition, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".nc", ".cdf", ".netcdf", ".volume", ".vol":
		return ImportNetCDF(path)
	case ".fits", ".fit", ".fts":
		return ImportFITS(path)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownExtension, path)
}

// ImportNetCDF reads an acquisition from a netCDF classic file. The
// projections are the variable data(angle, row, column), or volume as
// written by the packed writer. flat and dark are optional
// (frame, row, column) variables; a missing flat reads as ones and a
// missing dark as zeros. theta is optional and in radians; when absent the
// angles are evenly spaced over [0, pi).
func ImportNetCDF(path string) (*models.Acquisition, error) {
	ff, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening acquisition: %w", err)
	}
	defer ff.Close()

	f, err := cdf.Open(ff)
	if err != nil {
		return nil, fmt.Errorf("reading netCDF header of %s: %w", path, err)
	}

	vars := make(map[string]bool)
	for _, v := range f.Header.Variables() {
		vars[v] = true
	}

	name := "data"
	if !vars[name] {
		name = "volume"
	}
	if !vars[name] {
		return nil, fmt.Errorf("%w: data in %s", ErrMissingVariable, path)
	}

	data, dims, err := readVariable(f, name)
	if err != nil {
		return nil, err
	}
	if len(dims) != 3 {
		return nil, fmt.Errorf("%s has %d dimensions, want 3", name, len(dims))
	}
	vol := &models.Volume{Data: data, Shape: [3]int{dims[0], dims[1], dims[2]}, Axes: models.ProjectionAxes}

	flat, err := readReference(f, vars, "flat", vol, 1)
	if err != nil {
		return nil, err
	}
	dark, err := readReference(f, vars, "dark", vol, 0)
	if err != nil {
		return nil, err
	}

	theta := evenTheta(dims[0], 0, math.Pi)
	if vars["theta"] {
		theta, _, err = readVariable(f, "theta")
		if err != nil {
			return nil, err
		}
		if len(theta) != dims[0] {
			return nil, fmt.Errorf("theta has %d angles for %d projections", len(theta), dims[0])
		}
	}

	return newAcquisition(path, vol, flat, dark, theta), nil
}

// readReference reads a flat or dark variable, or substitutes a single
// frame filled with fill.
func readReference(f *cdf.File, vars map[string]bool, name string, vol *models.Volume, fill float64) (*models.Volume, error) {
	if !vars[name] {
		ref := models.NewVolume(1, vol.Shape[1], vol.Shape[2], models.ProjectionAxes)
		if fill != 0 {
			for i := range ref.Data {
				ref.Data[i] = fill
			}
		}
		return ref, nil
	}
	data, dims, err := readVariable(f, name)
	if err != nil {
		return nil, err
	}
	switch len(dims) {
	case 2:
		return &models.Volume{Data: data, Shape: [3]int{1, dims[0], dims[1]}}, nil
	case 3:
		return &models.Volume{Data: data, Shape: [3]int{dims[0], dims[1], dims[2]}}, nil
	}
	return nil, fmt.Errorf("%s has %d dimensions, want 2 or 3", name, len(dims))
}

// readVariable reads a whole numeric variable as float64.
func readVariable(f *cdf.File, name string) ([]float64, []int, error) {
	dims := f.Header.Lengths(name)
	r := f.Reader(name, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, nil, fmt.Errorf("reading variable %s: %w", name, err)
	}

	var out []float64
	switch b := buf.(type) {
	case []float64:
		out = b
	case []float32:
		out = make([]float64, len(b))
		for i, x := range b {
			out[i] = float64(x)
		}
	case []int32:
		out = make([]float64, len(b))
		for i, x := range b {
			out[i] = float64(x)
		}
	case []int16:
		out = make([]float64, len(b))
		for i, x := range b {
			out[i] = float64(x)
		}
	case []int8:
		out = make([]float64, len(b))
		for i, x := range b {
			out[i] = float64(x)
		}
	default:
		return nil, nil, fmt.Errorf("variable %s has unsupported type %T", name, buf)
	}
	return out, dims, nil
}

func evenTheta(n int, lo, hi float64) []float64 {
	theta := make([]float64, n)
	for i := range theta {
		theta[i] = lo + (hi-lo)*float64(i)/float64(n)
	}
	return theta
}

func newAcquisition(path string, vol, flat, dark *models.Volume, theta []float64) *models.Acquisition {
	lo, hi := vol.Extrema()
	return &models.Acquisition{
		Path:     filepath.Dir(path),
		Filename: filepath.Base(path),
		NCols:    vol.Shape[2],
		NRows:    vol.Shape[1],
		NAngles:  vol.Shape[0],
		DataMax:  hi,
		DataMin:  lo,
		Volume:   vol,
		Flat:     flat,
		Dark:     dark,
		Theta:    theta,
	}
}

// axisNames gives the netCDF dimension names for each labelling.
func axisNames(a models.Axes) []string {
	if a == models.SliceAxes {
		return []string{"z", "y", "x"}
	}
	return []string{"angle", "row", "column"}
}

// writeNetCDF writes c as the float32 variable volume of a netCDF classic
// file, with the mapped value range and axis labels as attributes.
func writeNetCDF(c *export.Converted, path string) error {
	if c.Dtype != export.Float32 {
		return fmt.Errorf("%w: netCDF volume with %s", export.ErrUnsupportedCombination, c.Dtype)
	}

	dims := axisNames(c.Axes)
	h := cdf.NewHeader(dims, []int{c.Shape[0], c.Shape[1], c.Shape[2]})
	h.AddVariable("volume", dims, []float32{0})
	h.AddAttribute("volume", "axes", c.Axes.String())
	h.AddAttribute("volume", "valid_min", []float64{c.Min})
	h.AddAttribute("volume", "valid_max", []float64{c.Max})
	h.AddAttribute("", "source", "tomorecon")
	h.Define()
	for _, err := range h.Check() {
		return fmt.Errorf("defining netCDF volume: %w", err)
	}

	ff, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating netCDF volume: %w", err)
	}
	defer ff.Close()

	f, err := cdf.Create(ff, h)
	if err != nil {
		return fmt.Errorf("writing netCDF header: %w", err)
	}
	w := f.Writer("volume", []int{0, 0, 0}, []int{c.Shape[0], c.Shape[1], c.Shape[2]})
	if _, err := w.Write(c.F32); err != nil {
		return fmt.Errorf("writing netCDF volume: %w", err)
	}
	return ff.Close()
}
