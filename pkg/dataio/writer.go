package dataio

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/tiff"

	"tomorecon/pkg/export"
)

// Writer writes converted volumes to disk. The zero value is ready to use.
type Writer struct{}

// Write stores c under base, which is a path without extension, and
// returns the files written.
//
// A PackedVolume becomes base.volume. An ImageStack becomes one file per
// plane along the first axis, base_00000.tiff onwards for unsigned types
// and base_00000.fits onwards for float32.
func (Writer) Write(c *export.Converted, format export.Format, base string) ([]string, error) {
	if err := export.Check(format, c.Dtype); err != nil {
		return nil, err
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if dir := filepath.Dir(base); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("error creating output directory: %w", err)
		}
	}

	if format == export.PackedVolume {
		path := base + ".volume"
		if err := writeNetCDF(c, path); err != nil {
			return nil, err
		}
		return []string{path}, nil
	}

	ext := ".tiff"
	if c.Dtype == export.Float32 {
		ext = ".fits"
	}
	paths := make([]string, 0, c.Shape[0])
	for i := 0; i < c.Shape[0]; i++ {
		path := fmt.Sprintf("%s_%05d%s", base, i, ext)
		if err := writeSlice(c, i, path); err != nil {
			return paths, fmt.Errorf("writing slice %d: %w", i, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeSlice(c *export.Converted, plane int, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if c.Dtype == export.Float32 {
		if err := writeFITSSlice(f, c, plane); err != nil {
			return err
		}
		return f.Close()
	}

	if err := tiff.Encode(f, planeImage(c, plane), &tiff.Options{Compression: tiff.Deflate, Predictor: true}); err != nil {
		return err
	}
	return f.Close()
}

// planeImage wraps one unsigned plane of c as a grey image.
func planeImage(c *export.Converted, plane int) image.Image {
	ny, nx := c.Shape[1], c.Shape[2]
	n := nx * ny
	rect := image.Rect(0, 0, nx, ny)

	if c.Dtype == export.Uint8 {
		img := image.NewGray(rect)
		copy(img.Pix, c.U8[plane*n:(plane+1)*n])
		return img
	}

	img := image.NewGray16(rect)
	for i, v := range c.U16[plane*n : (plane+1)*n] {
		img.Pix[2*i] = uint8(v >> 8)
		img.Pix[2*i+1] = uint8(v)
	}
	return img
}
