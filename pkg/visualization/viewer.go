// Package visualization renders volume planes to grey images for
// inspection: reconstructed slices, slice previews, projections and
// sinograms.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"tomorecon/internal/models"
)

// Viewer renders planes of a volume. The axes follow the volume layout:
// z indexes the first axis (angle or slice), y the rows and x the columns.
type Viewer struct {
	// volume is the volume being viewed
	volume *models.Volume

	// lo and hi are the values mapped to black and white
	lo, hi float64
}

// NewViewer creates a viewer of v whose grey window spans the observed
// value range.
func NewViewer(v *models.Volume) *Viewer {
	lo, hi := v.Extrema()
	return &Viewer{volume: v, lo: lo, hi: hi}
}

// SetWindow maps lo to black and hi to white.
func (v *Viewer) SetWindow(lo, hi float64) {
	v.lo, v.hi = lo, hi
}

// Window returns the grey window.
func (v *Viewer) Window() (lo, hi float64) {
	return v.lo, v.hi
}

func (v *Viewer) grey(x float64) color.Gray16 {
	if v.hi <= v.lo || math.IsNaN(x) {
		return color.Gray16{}
	}
	t := (x - v.lo) / (v.hi - v.lo)
	return color.Gray16{Y: uint16(math.Round(math.Max(0, math.Min(1, t)) * 65535))}
}

// ExtractSlice extracts a 2D plane from the volume along the specified axis.
//
// Parameters:
//   - axis: "x", "y" or "z"
//   - position: index along that axis
//
// Returns:
//   - A grey image: (rows x columns) for z, (depth x columns) for y and
//     (rows x depth) for x
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	depth, height, width := v.volume.Shape[0], v.volume.Shape[1], v.volume.Shape[2]

	var img *image.Gray16
	switch axis {
	case "x", "X":
		// YZ plane, one column of every projection or slice
		if position >= width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, width)
		}
		img = image.NewGray16(image.Rect(0, 0, depth, height))
		for y := 0; y < height; y++ {
			for z := 0; z < depth; z++ {
				img.SetGray16(z, y, v.grey(v.volume.At(z, y, position)))
			}
		}

	case "y", "Y":
		// XZ plane; for projections this is the sinogram of row position
		if position >= height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, height)
		}
		img = image.NewGray16(image.Rect(0, 0, width, depth))
		for z := 0; z < depth; z++ {
			for x := 0; x < width; x++ {
				img.SetGray16(x, z, v.grey(v.volume.At(z, position, x)))
			}
		}

	case "z", "Z":
		if position >= depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, depth)
		}
		img = image.NewGray16(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				img.SetGray16(x, y, v.grey(v.volume.At(position, y, x)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// SaveSlice saves an extracted slice as PNG, or as JPEG when filename ends
// in .jpg or .jpeg.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
	default:
		err = png.Encode(file, img)
	}
	if err != nil {
		return err
	}
	return file.Close()
}

// SaveSliceSequence extracts every plane along axis and saves them as PNG
// files named slice_<axis>_<index>.png, returning the paths written.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.volume.Shape[2]
	case "y", "Y":
		maxPos = v.volume.Shape[1]
	case "z", "Z":
		maxPos = v.volume.Shape[0]
	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	paths := make([]string, 0, maxPos)
	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return paths, err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", strings.ToLower(axis), pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return paths, err
		}
		paths = append(paths, filename)
	}

	return paths, nil
}
