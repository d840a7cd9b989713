package dataio

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/astrogo/fitsio"

	"tomorecon/internal/models"
	"tomorecon/pkg/export"
)

// ImportFITS reads an acquisition from a FITS file. The primary HDU holds
// the projections with NAXIS1 = columns, NAXIS2 = rows, NAXIS3 = angles.
// Image extensions named FLAT and DARK hold the reference frames. The
// angles are evenly spaced over [THETAMIN, THETAMAX) in radians, from the
// primary header when present and [0, pi) otherwise. BSCALE and BZERO are
// applied.
func ImportFITS(path string) (*models.Acquisition, error) {
	ff, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening acquisition: %w", err)
	}
	defer ff.Close()

	f, err := fitsio.Open(ff)
	if err != nil {
		return nil, fmt.Errorf("reading FITS file %s: %w", path, err)
	}
	defer f.Close()

	var vol, flat, dark *models.Volume
	var primary fitsio.Image
	for i, hdu := range f.HDUs() {
		img, ok := hdu.(fitsio.Image)
		if !ok {
			continue
		}
		switch {
		case i == 0:
			primary = img
			if vol, err = readImage(img); err != nil {
				return nil, fmt.Errorf("reading projections: %w", err)
			}
		case hdu.Name() == "FLAT":
			if flat, err = readImage(img); err != nil {
				return nil, fmt.Errorf("reading flat: %w", err)
			}
		case hdu.Name() == "DARK":
			if dark, err = readImage(img); err != nil {
				return nil, fmt.Errorf("reading dark: %w", err)
			}
		}
	}
	if vol == nil || len(vol.Data) == 0 {
		return nil, fmt.Errorf("%w: no projections in %s", ErrMissingVariable, path)
	}
	vol.Axes = models.ProjectionAxes

	if flat == nil {
		flat = models.NewVolume(1, vol.Shape[1], vol.Shape[2], models.ProjectionAxes)
		for i := range flat.Data {
			flat.Data[i] = 1
		}
	}
	if dark == nil {
		dark = models.NewVolume(1, vol.Shape[1], vol.Shape[2], models.ProjectionAxes)
	}

	lo := cardFloat(primary.Header(), "THETAMIN", 0)
	hi := cardFloat(primary.Header(), "THETAMAX", math.Pi)
	return newAcquisition(path, vol, flat, dark, evenTheta(vol.Shape[0], lo, hi)), nil
}

// readImage reads a 2 or 3 axis image into a volume, one plane per frame.
func readImage(img fitsio.Image) (*models.Volume, error) {
	hdr := img.Header()
	axes := hdr.Axes()
	shape := [3]int{1, 1, 1}
	switch len(axes) {
	case 2:
		shape = [3]int{1, axes[1], axes[0]}
	case 3:
		shape = [3]int{axes[2], axes[1], axes[0]}
	default:
		return nil, fmt.Errorf("image has %d axes, want 2 or 3", len(axes))
	}

	n := shape[0] * shape[1] * shape[2]
	data := make([]float64, n)
	switch hdr.Bitpix() {
	case 8:
		var raw []uint8
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, x := range raw {
			data[i] = float64(x)
		}
	case 16:
		var raw []int16
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, x := range raw {
			data[i] = float64(x)
		}
	case 32:
		var raw []int32
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, x := range raw {
			data[i] = float64(x)
		}
	case -32:
		var raw []float32
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, x := range raw {
			data[i] = float64(x)
		}
	case -64:
		var raw []float64
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		copy(data, raw)
	default:
		return nil, fmt.Errorf("unsupported BITPIX %d", hdr.Bitpix())
	}

	scale := cardFloat(hdr, "BSCALE", 1)
	zero := cardFloat(hdr, "BZERO", 0)
	if scale != 1 || zero != 0 {
		for i := range data {
			data[i] = zero + scale*data[i]
		}
	}
	return &models.Volume{Data: data, Shape: shape}, nil
}

// cardFloat returns the numeric value of a header card, or def.
func cardFloat(hdr *fitsio.Header, name string, def float64) float64 {
	card := hdr.Get(name)
	if card == nil {
		return def
	}
	switch v := card.Value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	}
	return def
}

// writeFITSSlice writes one float32 plane of c as a FITS primary image.
func writeFITSSlice(w io.Writer, c *export.Converted, plane int) error {
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()

	ny, nx := c.Shape[1], c.Shape[2]
	im := fitsio.NewImage(-32, []int{nx, ny})
	defer im.Close()

	err = im.Header().Append(
		fitsio.Card{Name: "PLANE", Value: plane, Comment: "index along the first axis"},
		fitsio.Card{Name: "DATAMIN", Value: c.Min},
		fitsio.Card{Name: "DATAMAX", Value: c.Max},
	)
	if err != nil {
		return err
	}

	n := nx * ny
	if err := im.Write(c.F32[plane*n : (plane+1)*n]); err != nil {
		return err
	}
	return fits.Write(im)
}
