// Package export prepares a volume for writing: pad cropping, conversion
// to the target sample type and the format/type compatibility rules.
package export

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"tomorecon/internal/models"
)

var (
	ErrUnknownDtype  = errors.New("unknown export dtype")
	ErrUnknownFormat = errors.New("unknown export format")
	ErrUnknownScale  = errors.New("unknown export scale mode")

	// ErrUnsupportedCombination is returned for a format that cannot hold
	// the requested sample type
	ErrUnsupportedCombination = errors.New("unsupported format and dtype combination")
)

// Dtype is the sample type of an exported volume.
type Dtype int

const (
	Uint8 Dtype = iota
	Uint16
	Float32
)

var dtypeNames = [...]string{
	Uint8:   "u1",
	Uint16:  "u2",
	Float32: "f4",
}

func (d Dtype) String() string {
	if d < 0 || int(d) >= len(dtypeNames) {
		return fmt.Sprintf("Dtype(%d)", int(d))
	}
	return dtypeNames[d]
}

// Unsigned reports whether d is an unsigned integer type.
func (d Dtype) Unsigned() bool { return d == Uint8 || d == Uint16 }

// maxLevel is the largest integer value of an unsigned type.
func (d Dtype) maxLevel() float64 {
	switch d {
	case Uint8:
		return math.MaxUint8
	case Uint16:
		return math.MaxUint16
	}
	return 0
}

// ParseDtype accepts u1, u2, f4 and the aliases uint8, uint16, float32.
func ParseDtype(s string) (Dtype, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "u1", "uint8":
		return Uint8, nil
	case "u2", "uint16":
		return Uint16, nil
	case "f4", "float32":
		return Float32, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDtype, s)
}

// Format is the on-disk layout of an exported volume.
type Format int

const (
	// ImageStack writes one image file per slice
	ImageStack Format = iota

	// PackedVolume writes a single netCDF container
	PackedVolume
)

var formatNames = [...]string{
	ImageStack:   "tiff",
	PackedVolume: "volume",
}

func (f Format) String() string {
	if f < 0 || int(f) >= len(formatNames) {
		return fmt.Sprintf("Format(%d)", int(f))
	}
	return formatNames[f]
}

// ParseFormat accepts tiff (or stack) and volume (or vol).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tiff", "tif", "stack":
		return ImageStack, nil
	case "volume", "vol":
		return PackedVolume, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Check rejects combinations the writers cannot store. The packed
// container is netCDF classic, which has no unsigned types.
func Check(f Format, d Dtype) error {
	if int(f) < 0 || int(f) >= len(formatNames) {
		return fmt.Errorf("%w: %v", ErrUnknownFormat, f)
	}
	if int(d) < 0 || int(d) >= len(dtypeNames) {
		return fmt.Errorf("%w: %v", ErrUnknownDtype, d)
	}
	if f == PackedVolume && d.Unsigned() {
		return fmt.Errorf("%w: %s cannot hold %s", ErrUnsupportedCombination, f, d)
	}
	return nil
}

// ScaleMode decides which float range maps onto an unsigned type.
type ScaleMode int

const (
	// ScaleObserved maps the volume's own minimum and maximum
	ScaleObserved ScaleMode = iota

	// ScaleFixed maps a caller-supplied range
	ScaleFixed
)

var scaleNames = [...]string{
	ScaleObserved: "observed",
	ScaleFixed:    "fixed",
}

func (m ScaleMode) String() string {
	if m < 0 || int(m) >= len(scaleNames) {
		return fmt.Sprintf("ScaleMode(%d)", int(m))
	}
	return scaleNames[m]
}

func ParseScaleMode(s string) (ScaleMode, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for i, n := range scaleNames {
		if n == key {
			return ScaleMode(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownScale, s)
}

// Scale is the float to integer mapping policy.
type Scale struct {
	Mode ScaleMode

	// Min and Max are used with ScaleFixed
	Min float64
	Max float64
}

// Converted is a volume in its export sample type. Exactly one of U8, U16
// and F32 is set.
type Converted struct {
	Dtype Dtype
	Axes  models.Axes
	Shape [3]int

	U8  []uint8
	U16 []uint16
	F32 []float32

	// Min and Max are the float values mapped to 0 and the largest level
	Min float64
	Max float64
}

// Plane returns the samples of plane i along axis 0 as float64, in the
// exported units.
func (c *Converted) Plane(i int) []float64 {
	n := c.Shape[1] * c.Shape[2]
	out := make([]float64, n)
	for j := range out {
		k := i*n + j
		switch c.Dtype {
		case Uint8:
			out[j] = float64(c.U8[k])
		case Uint16:
			out[j] = float64(c.U16[k])
		default:
			out[j] = float64(c.F32[k])
		}
	}
	return out
}

// Convert maps v onto dtype d. Float32 is a plain narrowing. For the
// unsigned types, [lo, hi] (observed or fixed) maps linearly onto
// [0, max level], values are rounded to the nearest level and clipped to
// the range, and NaN becomes 0. A degenerate range (hi <= lo) yields all
// zeros.
func Convert(v *models.Volume, d Dtype, s Scale) (*Converted, error) {
	if int(d) < 0 || int(d) >= len(dtypeNames) {
		return nil, fmt.Errorf("%w: %v", ErrUnknownDtype, d)
	}
	c := &Converted{Dtype: d, Axes: v.Axes, Shape: v.Shape}

	if d == Float32 {
		c.F32 = make([]float32, len(v.Data))
		for i, x := range v.Data {
			c.F32[i] = float32(x)
		}
		c.Min, c.Max = v.Extrema()
		return c, nil
	}

	switch s.Mode {
	case ScaleObserved:
		c.Min, c.Max = v.Extrema()
	case ScaleFixed:
		c.Min, c.Max = s.Min, s.Max
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownScale, s.Mode)
	}

	top := d.maxLevel()
	level := func(x float64) float64 {
		if math.IsNaN(x) || c.Max <= c.Min {
			return 0
		}
		l := math.Round((x - c.Min) / (c.Max - c.Min) * top)
		return math.Max(0, math.Min(top, l))
	}

	if d == Uint8 {
		c.U8 = make([]uint8, len(v.Data))
		for i, x := range v.Data {
			c.U8[i] = uint8(level(x))
		}
	} else {
		c.U16 = make([]uint16, len(v.Data))
		for i, x := range v.Data {
			c.U16[i] = uint16(level(x))
		}
	}
	return c, nil
}

// CropPadding removes pad values from each edge of the columns, and of
// the rows too when v holds reconstructed slices.
func CropPadding(v *models.Volume, pad int) (*models.Volume, error) {
	if pad == 0 {
		return v, nil
	}
	rows := 0
	if v.Axes == models.SliceAxes {
		rows = pad
	}
	return v.Crop(pad, rows)
}
