package recon

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// rampFilter holds the frequency response of one filter at one padded
// row length, ready to be applied to every projection of a sinogram.
type rampFilter struct {
	size     int
	fft      *fourier.FFT
	response []float64

	in    []float64
	coeff []complex128
}

// newRampFilter builds the response for rows of nCols values. Rows are
// zero-padded to the next power of two at or above 2*nCols so the circular
// convolution does not wrap. The ramp is taken from the DFT of the
// band-limited spatial kernel rather than sampled |f| directly, which keeps
// the zero-frequency term right.
func newRampFilter(nCols int, f Filter) *rampFilter {
	size := 2
	for size < 2*nCols {
		size <<= 1
	}

	fft := fourier.NewFFT(size)
	response := make([]float64, size/2+1)

	if f == NoFilter {
		for i := range response {
			response[i] = 1
		}
	} else {
		kernel := make([]float64, size)
		kernel[0] = 0.25
		for n := 1; n <= size/2; n += 2 {
			v := -1 / (math.Pi * math.Pi * float64(n) * float64(n))
			kernel[n] = v
			kernel[size-n] = v
		}
		coeff := fft.Coefficients(nil, kernel)
		for k := range response {
			w := 2 * float64(k) / float64(size)
			response[k] = real(coeff[k]) * window(f, w)
		}
	}

	return &rampFilter{
		size:     size,
		fft:      fft,
		response: response,
		in:       make([]float64, size),
		coeff:    make([]complex128, size/2+1),
	}
}

// window returns the apodisation of filter f at normalised frequency w,
// where w = 1 is the Nyquist frequency.
func window(f Filter, w float64) float64 {
	switch f {
	case Ramlak:
		return 1
	case Shepp:
		if w == 0 {
			return 1
		}
		x := math.Pi * w / 2
		return math.Sin(x) / x
	case Cosine:
		return math.Cos(math.Pi * w / 2)
	case Hann:
		return 0.5 * (1 + math.Cos(math.Pi*w))
	case Hamming:
		return 0.54 + 0.46*math.Cos(math.Pi*w)
	case Parzen:
		if w <= 0.5 {
			return 1 - 6*w*w + 6*w*w*w
		}
		return 2 * math.Pow(1-w, 3)
	case Butterworth:
		return 1 / (1 + math.Pow(w/0.5, 4))
	}
	return 1
}

// apply filters one projection row in place.
func (r *rampFilter) apply(row []float64) {
	copy(r.in, row)
	for i := len(row); i < r.size; i++ {
		r.in[i] = 0
	}
	r.fft.Coefficients(r.coeff, r.in)
	for k, h := range r.response {
		r.coeff[k] *= complex(h, 0)
	}
	r.fft.Sequence(r.in, r.coeff)

	// Sequence does not normalise
	scale := 1 / float64(r.size)
	for i := range row {
		row[i] = r.in[i] * scale
	}
}

// filteredBackProjection reconstructs one slice from a sinogram of
// nAngles x nCols values. sino is filtered in place.
func filteredBackProjection(p *projector, sino []float64, f Filter) []float64 {
	rf := newRampFilter(p.nCols, f)
	for a := 0; a < p.nAngles; a++ {
		rf.apply(sino[a*p.nCols : (a+1)*p.nCols])
	}
	img := make([]float64, p.n*p.n)
	p.back(sino, img, p.allAngles(), math.Pi/float64(p.nAngles))
	return img
}
