package kernels

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/gift"

	"tomorecon/internal/models"
)

var ErrUnknownPostFilter = errors.New("unknown post filter")

// PostFilter is the closed set of 2D filters applied to reconstructed slices.
type PostFilter int

const (
	NoFilter PostFilter = iota
	Gaussian
	Median
	Sobel
)

var postFilterNames = [...]string{
	NoFilter: "none",
	Gaussian: "gaussian",
	Median:   "median",
	Sobel:    "sobel",
}

func (f PostFilter) String() string {
	if f < 0 || int(f) >= len(postFilterNames) {
		return fmt.Sprintf("PostFilter(%d)", int(f))
	}
	return postFilterNames[f]
}

// ParsePostFilter accepts a filter tag, case-insensitively.
func ParsePostFilter(s string) (PostFilter, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for i, n := range postFilterNames {
		if n == key {
			return PostFilter(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPostFilter, s)
}

// FilterParams configures ApplyPostFilter.
type FilterParams struct {
	// Sigma is the Gaussian standard deviation in pixels
	Sigma float64

	// Size is the median window width, which must be odd
	Size int
}

// ApplyPostFilter runs f over every plane of v independently. Planes are
// quantised to 16 bits over their own value range for filtering and mapped
// back afterwards. Sobel output is the gradient magnitude in the units of
// the input.
func ApplyPostFilter(v *models.Volume, f PostFilter, p FilterParams, budget models.ComputeBudget) (*models.Volume, error) {
	var filter gift.Filter
	switch f {
	case NoFilter:
		return v, nil
	case Gaussian:
		if p.Sigma <= 0 {
			return v, fmt.Errorf("gaussian sigma must be positive, got %v", p.Sigma)
		}
		filter = gift.GaussianBlur(float32(p.Sigma))
	case Median:
		if p.Size < 1 || p.Size%2 == 0 {
			return v, fmt.Errorf("%w: %d", ErrEvenKernel, p.Size)
		}
		filter = gift.Median(p.Size, false)
	case Sobel:
		filter = gift.Sobel()
	default:
		return v, fmt.Errorf("%w: %v", ErrUnknownPostFilter, f)
	}

	g := gift.New(filter)
	ny, nx := v.Shape[1], v.Shape[2]
	parallel(v.Shape[0], budget, func(z int) {
		plane := v.Plane(z)
		q := newQuantizer(plane)
		src := q.encode(plane, nx, ny)
		dst := image.NewGray16(g.Bounds(src.Bounds()))
		g.Draw(dst, src)
		if f == Sobel {
			q = &quantizer{lo: 0, hi: q.hi - q.lo}
		}
		q.decode(dst, plane)
	})
	return v, nil
}

// quantizer maps a float range onto the 16-bit grey levels.
type quantizer struct {
	lo, hi float64
}

func newQuantizer(values []float64) *quantizer {
	q := &quantizer{}
	if len(values) == 0 {
		return q
	}
	q.lo, q.hi = values[0], values[0]
	for _, x := range values {
		if x < q.lo {
			q.lo = x
		}
		if x > q.hi {
			q.hi = x
		}
	}
	return q
}

func (q *quantizer) level(x float64) uint16 {
	if q.hi <= q.lo {
		return 0
	}
	t := (x - q.lo) / (q.hi - q.lo)
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return uint16(t*65535 + 0.5)
}

func (q *quantizer) encode(plane []float64, nx, ny int) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, nx, ny))
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			img.SetGray16(x, y, color.Gray16{Y: q.level(plane[y*nx+x])})
		}
	}
	return img
}

// decode writes img back into plane, which must be the same size.
func (q *quantizer) decode(img *image.Gray16, plane []float64) {
	b := img.Bounds()
	nx := b.Dx()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < nx; x++ {
			l := float64(img.Gray16At(b.Min.X+x, b.Min.Y+y).Y) / 65535
			plane[y*nx+x] = q.lo + l*(q.hi-q.lo)
		}
	}
}

// Rotate rotates every projection of v counter-clockwise by angle degrees
// about its centre, keeping the original size. Uncovered corners read 0.
func Rotate(v *models.Volume, angle float64, budget models.ComputeBudget) (*models.Volume, error) {
	if angle == 0 {
		return v, nil
	}
	ny, nx := v.Shape[1], v.Shape[2]

	parallel(v.Shape[0], budget, func(a int) {
		plane := v.Plane(a)
		q := newQuantizer(plane)
		if q.lo > 0 {
			q.lo = 0
		}
		if q.hi < 0 {
			q.hi = 0
		}
		bg := color.Gray16{Y: q.level(0)}
		g := gift.New(
			gift.Rotate(float32(angle), bg, gift.LinearInterpolation),
			gift.CropToSize(nx, ny, gift.CenterAnchor),
		)
		src := q.encode(plane, nx, ny)
		dst := image.NewGray16(g.Bounds(src.Bounds()))
		g.Draw(dst, src)
		q.decode(dst, plane)
	})
	return v, nil
}
