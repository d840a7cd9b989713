package recon

import (
	"math"
)

// projector is a pixel-driven parallel-beam projector for one N x N slice
// and an nAngles x nCols sinogram. Pixel and detector centres sit at
// half-integer coordinates, so a center of nCols/2 is the middle of the
// detector. Forward and back projection use the same linear interpolation
// weights, which makes back the exact adjoint of forward.
type projector struct {
	n       int
	nAngles int
	nCols   int
	cos     []float64
	sin     []float64
	centers []float64
}

func newProjector(n, nCols int, theta []float64, c Centers) *projector {
	p := &projector{
		n:       n,
		nAngles: len(theta),
		nCols:   nCols,
		cos:     make([]float64, len(theta)),
		sin:     make([]float64, len(theta)),
		centers: make([]float64, len(theta)),
	}
	for a, th := range theta {
		p.cos[a] = math.Cos(th)
		p.sin[a] = math.Sin(th)
		p.centers[a] = c.At(a)
	}
	return p
}

// sample returns the lower detector index and the weight of the upper one
// for pixel (ix, iy) at angle a.
func (p *projector) sample(a, ix, iy int) (int, float64) {
	half := float64(p.n) / 2
	x := float64(ix) + 0.5 - half
	y := float64(iy) + 0.5 - half
	u := p.centers[a] + x*p.cos[a] + y*p.sin[a] - 0.5
	i0 := math.Floor(u)
	return int(i0), u - i0
}

// back accumulates scale times the back projection of sino over the given
// angles into img.
func (p *projector) back(sino, img []float64, angles []int, scale float64) {
	for _, a := range angles {
		row := sino[a*p.nCols : (a+1)*p.nCols]
		for iy := 0; iy < p.n; iy++ {
			for ix := 0; ix < p.n; ix++ {
				i0, w := p.sample(a, ix, iy)
				var v float64
				if i0 >= 0 && i0 < p.nCols {
					v += (1 - w) * row[i0]
				}
				if i0+1 >= 0 && i0+1 < p.nCols {
					v += w * row[i0+1]
				}
				img[iy*p.n+ix] += scale * v
			}
		}
	}
}

// forward writes the projection of img at the given angles into sino,
// overwriting those rows.
func (p *projector) forward(img, sino []float64, angles []int) {
	for _, a := range angles {
		row := sino[a*p.nCols : (a+1)*p.nCols]
		for i := range row {
			row[i] = 0
		}
		for iy := 0; iy < p.n; iy++ {
			for ix := 0; ix < p.n; ix++ {
				x := img[iy*p.n+ix]
				if x == 0 {
					continue
				}
				i0, w := p.sample(a, ix, iy)
				if i0 >= 0 && i0 < p.nCols {
					row[i0] += (1 - w) * x
				}
				if i0+1 >= 0 && i0+1 < p.nCols {
					row[i0+1] += w * x
				}
			}
		}
	}
}

// allAngles returns 0..nAngles-1.
func (p *projector) allAngles() []int {
	out := make([]int, p.nAngles)
	for i := range out {
		out[i] = i
	}
	return out
}
