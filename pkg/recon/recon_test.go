package recon

import (
	"errors"
	"math"
	"testing"

	"tomorecon/internal/models"
)

// diskSinogram returns the exact parallel-beam sinogram of a centred disk of
// unit density and the given radius.
func diskSinogram(nAngles, nCols int, radius, center float64) ([]float64, []float64) {
	theta := make([]float64, nAngles)
	sino := make([]float64, nAngles*nCols)
	for a := range theta {
		theta[a] = math.Pi * float64(a) / float64(nAngles)
		for c := 0; c < nCols; c++ {
			s := float64(c) + 0.5 - center
			if d := radius*radius - s*s; d > 0 {
				sino[a*nCols+c] = 2 * math.Sqrt(d)
			}
		}
	}
	return sino, theta
}

func TestFilteredBackProjectionDisk(t *testing.T) {
	const n = 64
	sino, theta := diskSinogram(90, n, 16, n/2)

	img, err := Kernel{}.ReconstructSlice(sino, n, theta, Centers{Scalar: n / 2}, Options{Algorithm: FBP, Filter: Ramlak})
	if err != nil {
		t.Fatalf("ReconstructSlice failed: %v", err)
	}

	var inside float64
	for iy := n/2 - 2; iy < n/2+2; iy++ {
		for ix := n/2 - 2; ix < n/2+2; ix++ {
			inside += img[iy*n+ix]
		}
	}
	inside /= 16
	if math.Abs(inside-1) > 0.15 {
		t.Errorf("mean inside disk = %.3f, want about 1", inside)
	}

	outside := img[(n/2)*n+4]
	if math.Abs(outside) > 0.15 {
		t.Errorf("value outside disk = %.3f, want about 0", outside)
	}
}

func TestReconstructSliceLeavesInputUntouched(t *testing.T) {
	sino, theta := diskSinogram(20, 16, 4, 8)
	orig := append([]float64(nil), sino...)
	if _, err := (Kernel{}).ReconstructSlice(sino, 16, theta, Centers{Scalar: 8}, Options{Algorithm: Gridrec, Filter: Hann}); err != nil {
		t.Fatal(err)
	}
	for i := range sino {
		if sino[i] != orig[i] {
			t.Fatalf("sinogram value %d changed", i)
		}
	}
}

func TestScheduleMatchesScalarWhenConstant(t *testing.T) {
	sino, theta := diskSinogram(30, 32, 8, 16)
	sched := make([]float64, len(theta))
	for i := range sched {
		sched[i] = 16
	}
	opts := Options{Algorithm: FBP, Filter: Shepp}
	a, err := Kernel{}.ReconstructSlice(sino, 32, theta, Centers{Scalar: 16}, opts)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Kernel{}.ReconstructSlice(sino, 32, theta, Centers{Schedule: sched}, opts)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("pixel %d differs: %v != %v", i, a[i], b[i])
		}
	}
}

func residual(p *projector, x, b []float64) float64 {
	ax := make([]float64, len(b))
	p.forward(x, ax, p.allAngles())
	var sum float64
	for i := range b {
		d := ax[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func TestSIRTResidualDecreases(t *testing.T) {
	const n = 32
	sino, theta := diskSinogram(30, n, 8, n/2)
	p := newProjector(n, n, theta, Centers{Scalar: n / 2})

	r0 := residual(p, make([]float64, n*n), sino)
	r1 := residual(p, iterative(p, sino, SIRT, 1), sino)
	r10 := residual(p, iterative(p, sino, SIRT, 10), sino)
	if !(r1 < r0 && r10 < r1) {
		t.Errorf("residuals %.3f, %.3f, %.3f are not decreasing", r0, r1, r10)
	}
}

func TestEveryAlgorithmProducesFiniteSlices(t *testing.T) {
	const n = 16
	sino, theta := diskSinogram(12, n, 4, n/2)
	v := models.NewVolume(12, 3, n, models.ProjectionAxes)
	for a := 0; a < 12; a++ {
		for row := 0; row < 3; row++ {
			copy(v.Data[v.Index(a, row, 0):v.Index(a, row, 0)+n], sino[a*n:(a+1)*n])
		}
	}

	for _, alg := range Algorithms() {
		out, err := Kernel{}.Reconstruct(v, theta, Centers{Scalar: n / 2}, Options{
			Algorithm:  alg,
			Filter:     Hann,
			Iterations: 2,
			Budget:     models.ComputeBudget{CoreCount: 2, ChunkCount: 2},
		})
		if err != nil {
			t.Fatalf("%s: %v", alg, err)
		}
		if out.Shape != [3]int{3, n, n} || out.Axes != models.SliceAxes {
			t.Fatalf("%s: shape %v axes %v", alg, out.Shape, out.Axes)
		}
		for i, x := range out.Data {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				t.Fatalf("%s: voxel %d is %v", alg, i, x)
			}
		}
	}
}

func TestReconstructRejectsBadInput(t *testing.T) {
	v := models.NewVolume(4, 1, 8, models.ProjectionAxes)
	theta := []float64{0, 0.5, 1, 1.5}

	_, err := Kernel{}.Reconstruct(v, theta[:3], Centers{Scalar: 4}, Options{Algorithm: FBP})
	if !errors.Is(err, ErrGeometry) {
		t.Errorf("short theta: err = %v", err)
	}
	_, err = Kernel{}.Reconstruct(v, theta, Centers{Schedule: []float64{4}}, Options{Algorithm: FBP})
	if !errors.Is(err, ErrGeometry) {
		t.Errorf("short schedule: err = %v", err)
	}
	_, err = Kernel{}.Reconstruct(v, theta, Centers{Scalar: 4}, Options{Algorithm: SIRT})
	if !errors.Is(err, ErrIterations) {
		t.Errorf("zero iterations: err = %v", err)
	}
}

func TestParseAlgorithmAndFilter(t *testing.T) {
	tests := []struct {
		in   string
		want Algorithm
	}{
		{"gridrec", Gridrec},
		{"SIRT", SIRT},
		{"Simultaneous Algebraic", SIRT},
		{" ospml_hybrid ", OSPMLHybrid},
		{"tv", TV},
	}
	for _, tt := range tests {
		got, err := ParseAlgorithm(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseAlgorithm(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseAlgorithm("fourier magic"); !errors.Is(err, ErrUnknownAlgorithm) {
		t.Errorf("unknown algorithm: err = %v", err)
	}

	for _, f := range []Filter{NoFilter, Shepp, Cosine, Hann, Hamming, Ramlak, Parzen, Butterworth} {
		got, err := ParseFilter(f.String())
		if err != nil || got != f {
			t.Errorf("ParseFilter(%q) = %v, %v", f.String(), got, err)
		}
	}
	if _, err := ParseFilter("gauss"); !errors.Is(err, ErrUnknownFilter) {
		t.Errorf("unknown filter: err = %v", err)
	}
}

func TestWindowsAreOneAtZeroFrequency(t *testing.T) {
	for _, f := range []Filter{Shepp, Cosine, Hann, Hamming, Ramlak, Parzen, Butterworth} {
		if w := window(f, 0); math.Abs(w-1) > 1e-12 {
			t.Errorf("window(%s, 0) = %v", f, w)
		}
	}
}
