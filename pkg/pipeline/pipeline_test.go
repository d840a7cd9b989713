package pipeline

import (
	"bytes"
	"errors"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"tomorecon/internal/models"
	"tomorecon/pkg/center"
	"tomorecon/pkg/export"
	"tomorecon/pkg/kernels"
	"tomorecon/pkg/oplog"
	"tomorecon/pkg/recon"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// acquisition returns raw projections of constant value 0.5 with a unit
// flat and a zero dark.
func acquisition(nA, nR, nC int) *models.Acquisition {
	vol := models.NewVolume(nA, nR, nC, models.ProjectionAxes)
	for i := range vol.Data {
		vol.Data[i] = 0.5
	}
	flat := models.NewVolume(1, nR, nC, models.ProjectionAxes)
	for i := range flat.Data {
		flat.Data[i] = 1
	}
	theta := make([]float64, nA)
	for i := range theta {
		theta[i] = math.Pi * float64(i) / float64(nA)
	}
	return &models.Acquisition{
		Path:     "/data/scan.nc",
		Filename: "scan.nc",
		NCols:    nC,
		NRows:    nR,
		NAngles:  nA,
		DataMin:  0.5,
		DataMax:  0.5,
		Volume:   vol,
		Flat:     flat,
		Dark:     models.NewVolume(1, nR, nC, models.ProjectionAxes),
		Theta:    theta,
	}
}

// newSession returns a session that has imported acq.
func newSession(t *testing.T, acq *models.Acquisition, opts Options) *Session {
	t.Helper()
	opts.Logger = quietLogger()
	opts.Importer = ImporterFunc(func(string) (*models.Acquisition, error) { return acq, nil })
	s := NewSession(opts)
	if err := s.Import(acq.Path); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	return s
}

type stubRecon struct {
	calls   int
	centers recon.Centers
	err     error
}

func (r *stubRecon) Reconstruct(v *models.Volume, theta []float64, c recon.Centers, opts recon.Options) (*models.Volume, error) {
	r.calls++
	r.centers = c
	if r.err != nil {
		return nil, r.err
	}
	return models.NewVolume(v.Shape[1], v.Shape[2], v.Shape[2], models.SliceAxes), nil
}

func (r *stubRecon) ReconstructSlice(sino []float64, nCols int, theta []float64, c recon.Centers, opts recon.Options) ([]float64, error) {
	r.calls++
	r.centers = c
	out := make([]float64, nCols*nCols)
	for i := range out {
		out[i] = 1
	}
	return out, nil
}

type stubWriter struct {
	calls int
	got   *export.Converted
}

func (w *stubWriter) Write(c *export.Converted, format export.Format, base string) ([]string, error) {
	w.calls++
	w.got = c
	return []string{base + ".out"}, nil
}

type stubFinder struct {
	upper, lower float64
	calls        int
	seeds        []float64
	pairs        [][2]float64
}

func (f *stubFinder) next() float64 {
	f.calls++
	if f.calls == 1 {
		return f.upper
	}
	return f.lower
}

func (f *stubFinder) Entropy(sino []float64, nCols int, theta []float64, init, tol float64) (float64, error) {
	f.seeds = append(f.seeds, init)
	return f.next(), nil
}

func (f *stubFinder) Correlate0180(proj, partner []float64, nRows, nCols int, tol float64) (float64, error) {
	f.pairs = append(f.pairs, [2]float64{proj[0], partner[0]})
	return f.next(), nil
}

func (f *stubFinder) Vo(sino []float64, nAngles, nCols int, tol float64) (float64, error) {
	return f.next(), nil
}

// countingCorrector counts rotations and records post filter sizes.
type countingCorrector struct {
	KernelCorrector
	rotations []float64
	sizes     []int
}

func (k *countingCorrector) Rotate(v *models.Volume, angle float64, budget models.ComputeBudget) (*models.Volume, error) {
	k.rotations = append(k.rotations, angle)
	return v, nil
}

func (k *countingCorrector) PostFilter(v *models.Volume, f kernels.PostFilter, p kernels.FilterParams, budget models.ComputeBudget) (*models.Volume, error) {
	k.sizes = append(k.sizes, p.Size)
	return v, nil
}

func TestSchedule(t *testing.T) {
	sched := Schedule(10, 20, 4)
	want := []float64{10, 12.5, 15, 17.5}
	for i, w := range want {
		if sched[i] != w {
			t.Errorf("sched[%d] = %v, want %v", i, sched[i], w)
		}
	}

	for _, tc := range []struct{ upper, lower float64 }{{64, 66.5}, {70, 61}, {50, 50}} {
		n := 180
		sched := Schedule(tc.upper, tc.lower, n)
		if sched[0] != tc.upper {
			t.Errorf("first = %v, want %v", sched[0], tc.upper)
		}
		last := tc.lower - (tc.lower-tc.upper)/float64(n)
		if math.Abs(sched[n-1]-last) > 1e-9 {
			t.Errorf("last = %v, want %v", sched[n-1], last)
		}
		for i := 1; i < n; i++ {
			d := sched[i] - sched[i-1]
			switch {
			case tc.upper == tc.lower && d != 0:
				t.Fatalf("schedule not constant at %d", i)
			case tc.upper < tc.lower && d <= 0, tc.upper > tc.lower && d >= 0:
				t.Fatalf("schedule not monotonic at %d", i)
			}
		}
	}
}

func TestCenterScheduleNeedsCenters(t *testing.T) {
	s := newSession(t, acquisition(8, 4, 20), Options{})
	if _, err := s.CenterSchedule(); !errors.Is(err, ErrCentersNotResolved) {
		t.Fatalf("err = %v, want ErrCentersNotResolved", err)
	}

	if err := s.SetCenters(9, 11, 0, 3); err != nil {
		t.Fatal(err)
	}
	sched, err := s.CenterSchedule()
	if err != nil {
		t.Fatal(err)
	}
	if len(sched) != 8 || sched[0] != 9 || sched[4] != 10 {
		t.Errorf("schedule = %v", sched)
	}

	// the returned slice is a copy
	sched[0] = -1
	again, _ := s.CenterSchedule()
	if again[0] != 9 {
		t.Errorf("schedule aliased: %v", again[0])
	}
}

func TestKernelCoercionIsReported(t *testing.T) {
	var statuses []string
	var buf bytes.Buffer
	s := newSession(t, acquisition(8, 4, 20), Options{
		OpLog:  oplog.New(&buf),
		Status: func(msg string) { statuses = append(statuses, msg) },
	})

	if err := s.RemoveStripes(4); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, msg := range statuses {
		if msg == "Ring width 4 is not odd, using 5" {
			found = true
		}
	}
	if !found {
		t.Errorf("coercion not reported, statuses = %q", statuses)
	}
	if s.Status() != "Ring removed." {
		t.Errorf("status = %q", s.Status())
	}
	if s.State() != ArtifactCorrected {
		t.Errorf("state = %v", s.State())
	}
	if !strings.Contains(buf.String(), "remove_stripes width=5\n") {
		t.Errorf("operation log = %q", buf.String())
	}
}

func TestOddKernelLaw(t *testing.T) {
	for n := -2; n < 12; n++ {
		got, _ := kernels.OddKernel(n)
		if got%2 != 1 || got < n || got < 1 {
			t.Errorf("OddKernel(%d) = %d", n, got)
		}
		if n >= 1 && n%2 == 1 && got != n {
			t.Errorf("odd %d changed to %d", n, got)
		}
	}
}

func TestExportPackedUnsignedFails(t *testing.T) {
	for _, d := range []export.Dtype{export.Uint8, export.Uint16} {
		w := &stubWriter{}
		s := newSession(t, acquisition(8, 4, 20), Options{Writer: w})
		_, err := s.Export(ExportParams{Dtype: d, Format: export.PackedVolume, Scale: export.Scale{Mode: export.ScaleObserved}, Base: "out"})
		if !errors.Is(err, ErrUnsupportedFormatDtypeCombination) || !errors.Is(err, ErrPreconditionViolation) {
			t.Errorf("%v: err = %v", d, err)
		}
		if w.calls != 0 {
			t.Errorf("%v: writer called %d times", d, w.calls)
		}
		if s.Status() != "netCDF3 does not support unsigned images" {
			t.Errorf("status = %q", s.Status())
		}
	}

	w := &stubWriter{}
	s := newSession(t, acquisition(8, 4, 20), Options{Writer: w})
	if _, err := s.Export(ExportParams{Dtype: export.Float32, Format: export.PackedVolume, Base: "out"}); err != nil {
		t.Fatal(err)
	}
	if w.calls != 1 {
		t.Errorf("writer called %d times", w.calls)
	}
	if s.State() != Raw {
		t.Errorf("exporting projections changed state to %v", s.State())
	}
}

func TestReconstructWithoutCentersLeavesVolume(t *testing.T) {
	r := &stubRecon{}
	s := newSession(t, acquisition(8, 4, 20), Options{Reconstructor: r})

	// Centers take precedence over normalization
	if err := s.Reconstruct(ReconParams{Algorithm: recon.Gridrec}); !errors.Is(err, ErrCentersNotResolved) {
		t.Fatalf("raw err = %v", err)
	}

	if err := s.Normalize(NormalizeParams{NegativeFloor: 1e-6}); err != nil {
		t.Fatal(err)
	}
	before := append([]float64(nil), s.Dataset().Volume.Data...)

	err := s.Reconstruct(ReconParams{Algorithm: recon.Gridrec, Filter: recon.Hann})
	if !errors.Is(err, ErrCentersNotResolved) || !errors.Is(err, ErrPreconditionViolation) {
		t.Fatalf("err = %v", err)
	}
	after := s.Dataset().Volume.Data
	for i := range before {
		if math.Float64bits(before[i]) != math.Float64bits(after[i]) {
			t.Fatalf("volume changed at %d", i)
		}
	}
	if r.calls != 0 {
		t.Errorf("reconstructor called %d times", r.calls)
	}
	if s.State() != Normalized {
		t.Errorf("state = %v", s.State())
	}
}

func TestReconstructNeedsNormalizedVolume(t *testing.T) {
	r := &stubRecon{}
	s := newSession(t, acquisition(8, 4, 20), Options{Reconstructor: r})
	if err := s.SetCenters(10, 10, 0, 3); err != nil {
		t.Fatal(err)
	}
	if err := s.Reconstruct(ReconParams{Algorithm: recon.Gridrec}); !errors.Is(err, ErrNotNormalized) {
		t.Fatalf("err = %v", err)
	}
	if r.calls != 0 {
		t.Errorf("reconstructor called %d times", r.calls)
	}
}

func TestSliceOutOfRangeKeepsCenters(t *testing.T) {
	f := &stubFinder{upper: 1, lower: 2}
	s := newSession(t, acquisition(8, 4, 20), Options{Centers: f})
	if err := s.SetCenters(9.5, 10.5, 1, 2); err != nil {
		t.Fatal(err)
	}
	want, _ := s.ReportedCenters()

	for _, p := range []CenterParams{
		{Method: center.Vo, UpperSlice: 4, LowerSlice: 2, Tolerance: 0.25},
		{Method: center.Vo, UpperSlice: 0, LowerSlice: 9, Tolerance: 0.25},
	} {
		err := s.ResolveCenters(p)
		if !errors.Is(err, ErrSliceOutOfRange) {
			t.Errorf("%+v: err = %v", p, err)
		}
		if got, _ := s.ReportedCenters(); got != want {
			t.Errorf("centers changed to %+v", got)
		}
	}
	if err := s.SetCenters(1, 1, 0, 4); !errors.Is(err, ErrSliceOutOfRange) {
		t.Errorf("SetCenters err = %v", err)
	}
	if f.calls != 0 {
		t.Errorf("finder called %d times", f.calls)
	}
	if s.Status() != "Lower slice out of range." {
		t.Errorf("status = %q", s.Status())
	}
}

func TestNormalizePadTooSmall(t *testing.T) {
	s := newSession(t, acquisition(8, 4, 20), Options{})
	err := s.Normalize(NormalizeParams{PadSize: 20, NegativeFloor: 1e-6})
	if !errors.Is(err, ErrPadTooSmall) || !errors.Is(err, ErrPartialFailure) {
		t.Fatalf("err = %v", err)
	}
	ds := s.Dataset()
	if ds.PadAmount != 0 || ds.Volume.Shape[2] != 20 {
		t.Errorf("padded anyway: pad %d shape %v", ds.PadAmount, ds.Volume.Shape)
	}
	if s.State() != Normalized {
		t.Errorf("state = %v", s.State())
	}
	if s.Status() != "Pad size too small for dataset. Normalized but no padding." {
		t.Errorf("status = %q", s.Status())
	}
	// normalization itself was kept
	if got := ds.Volume.Data[0]; math.Abs(got-math.Ln2) > 1e-12 {
		t.Errorf("value = %v, want ln 2", got)
	}
}

func TestNormalizePadsAndShiftsCenters(t *testing.T) {
	s := newSession(t, acquisition(8, 4, 20), Options{})
	if err := s.Normalize(NormalizeParams{PadSize: 32, NegativeFloor: 1e-6}); err != nil {
		t.Fatal(err)
	}
	ds := s.Dataset()
	if ds.PadAmount != 6 || ds.Volume.Shape != [3]int{8, 4, 32} {
		t.Fatalf("pad %d shape %v", ds.PadAmount, ds.Volume.Shape)
	}
	if ds.Centers.Upper != 16 {
		t.Errorf("padded center = %v, want 16", ds.Centers.Upper)
	}
	if c, resolved := s.ReportedCenters(); c.Upper != 10 || c.Lower != 10 || resolved {
		t.Errorf("reported = %+v resolved %v", c, resolved)
	}
	if g := s.Geometry(); g.Cols != 20 || g.Rows != 4 || g.Depth != 8 {
		t.Errorf("geometry = %+v", g)
	}
	if ds.Dark != nil || ds.Flat != nil {
		t.Error("reference frames not released")
	}
	if s.Status() != "Preprocessing Complete" {
		t.Errorf("status = %q", s.Status())
	}

	if err := s.Normalize(NormalizeParams{}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second normalize err = %v", err)
	}
}

func TestNormalizeFloorIsConfigurable(t *testing.T) {
	acq := acquisition(2, 1, 4)
	for i := range acq.Dark.Data {
		acq.Dark.Data[i] = 0.6
	}
	s := newSession(t, acq, Options{})
	if err := s.Normalize(NormalizeParams{NegativeFloor: 1e-3, RetainFlat: true}); err != nil {
		t.Fatal(err)
	}
	ds := s.Dataset()
	for i, x := range ds.Volume.Data {
		if math.Abs(x-(-math.Log(1e-3))) > 1e-9 {
			t.Fatalf("value %d = %v", i, x)
		}
	}
	if ds.Flat == nil || ds.Dark != nil {
		t.Error("flat should be retained and dark released")
	}
}

type blockingCorrector struct {
	KernelCorrector
	started chan struct{}
	release chan struct{}
}

func (b *blockingCorrector) RemoveStripes(v *models.Volume, width int, budget models.ComputeBudget) (*models.Volume, error) {
	close(b.started)
	<-b.release
	return v, nil
}

func TestConcurrentStageIsRejected(t *testing.T) {
	b := &blockingCorrector{started: make(chan struct{}), release: make(chan struct{})}
	s := newSession(t, acquisition(8, 4, 20), Options{Corrector: b})

	done := make(chan error, 1)
	go func() { done <- s.RemoveStripes(3) }()
	<-b.started

	if !s.Busy() {
		t.Error("session not busy during a stage")
	}
	if err := s.Free(); !errors.Is(err, ErrBusy) {
		t.Errorf("Free err = %v", err)
	}
	if err := s.Normalize(NormalizeParams{}); !errors.Is(err, ErrBusy) {
		t.Errorf("Normalize err = %v", err)
	}

	close(b.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if s.Dataset() == nil {
		t.Fatal("dataset dropped by a rejected Free")
	}
	if err := s.Free(); err != nil {
		t.Fatal(err)
	}
}

func TestImportAndFree(t *testing.T) {
	s := newSession(t, acquisition(8, 4, 20), Options{})
	if s.State() != Raw || s.Status() != "Data Imported" {
		t.Errorf("state %v status %q", s.State(), s.Status())
	}
	if err := s.Import("again.nc"); !errors.Is(err, ErrDatasetLoaded) {
		t.Errorf("second import err = %v", err)
	}
	if err := s.Free(); err != nil {
		t.Fatal(err)
	}
	if s.State() != Empty || s.Status() != "Memory Cleared" || s.Dataset() != nil {
		t.Errorf("after free: state %v status %q", s.State(), s.Status())
	}
	if err := s.Normalize(NormalizeParams{}); !errors.Is(err, ErrNoDataset) {
		t.Errorf("normalize after free err = %v", err)
	}
	if err := s.Import("again.nc"); err != nil {
		t.Errorf("import after free: %v", err)
	}
}

func TestImportFailureIsKernelFailure(t *testing.T) {
	boom := errors.New("unreadable")
	s := NewSession(Options{
		Logger:   quietLogger(),
		Importer: ImporterFunc(func(string) (*models.Acquisition, error) { return nil, boom }),
	})
	err := s.Import("x.nc")
	if !errors.Is(err, boom) || !errors.Is(err, ErrExternalKernelFailure) {
		t.Errorf("err = %v", err)
	}
	var perr *Error
	if !errors.As(err, &perr) || perr.Stage != "import" || perr.Kind != ExternalKernelFailure {
		t.Errorf("error = %#v", err)
	}
	if s.State() != Empty {
		t.Errorf("state = %v", s.State())
	}
}

func TestReconstructKernelFailure(t *testing.T) {
	boom := errors.New("out of memory")
	r := &stubRecon{err: boom}
	s := newSession(t, acquisition(8, 4, 20), Options{Reconstructor: r})
	if err := s.Normalize(NormalizeParams{}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetCenters(10, 10, 0, 3); err != nil {
		t.Fatal(err)
	}
	err := s.Reconstruct(ReconParams{Algorithm: recon.SIRT, Iterations: 2})
	if !errors.Is(err, boom) || !errors.Is(err, ErrExternalKernelFailure) {
		t.Errorf("err = %v", err)
	}
	if s.State() != Centered {
		t.Errorf("state = %v", s.State())
	}
}

func TestStageSequence(t *testing.T) {
	r := &stubRecon{}
	w := &stubWriter{}
	k := &countingCorrector{}
	s := newSession(t, acquisition(8, 4, 20), Options{Reconstructor: r, Writer: w, Corrector: k})

	if err := s.PostFilter(kernels.Gaussian, kernels.FilterParams{Sigma: 1}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("post filter on projections err = %v", err)
	}
	if err := s.Normalize(NormalizeParams{PadSize: 32}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetCenters(10, 11, 0, 3); err != nil {
		t.Fatal(err)
	}
	if s.State() != Centered {
		t.Fatalf("state = %v", s.State())
	}
	if err := s.Reconstruct(ReconParams{Algorithm: recon.Gridrec, Filter: recon.Hann}); err != nil {
		t.Fatal(err)
	}
	if s.State() != Reconstructed {
		t.Fatalf("state = %v", s.State())
	}
	sched := r.centers.Schedule
	if len(sched) != 8 || sched[0] != 16 || sched[4] != 16.5 {
		t.Errorf("schedule = %v", sched)
	}
	g := s.Geometry()
	if g.Axes != models.SliceAxes || g.Depth != 4 || g.Rows != 20 || g.Cols != 20 {
		t.Errorf("geometry = %+v", g)
	}

	if err := s.PostFilter(kernels.Median, kernels.FilterParams{Size: 2}); err != nil {
		t.Fatal(err)
	}
	if len(k.sizes) != 1 || k.sizes[0] != 3 {
		t.Errorf("median sizes = %v", k.sizes)
	}
	if s.State() != PostFiltered {
		t.Fatalf("state = %v", s.State())
	}
	if err := s.RemoveStripes(3); !errors.Is(err, ErrInvalidState) {
		t.Errorf("stripe removal on slices err = %v", err)
	}

	if _, err := s.Export(ExportParams{Dtype: export.Uint8, Format: export.ImageStack, Scale: export.Scale{Mode: export.ScaleObserved}, Base: "slice"}); err != nil {
		t.Fatal(err)
	}
	if w.got.Shape != [3]int{4, 20, 20} || w.got.Dtype != export.Uint8 {
		t.Errorf("exported %v %v", w.got.Shape, w.got.Dtype)
	}
	if s.State() != Exported {
		t.Errorf("state = %v", s.State())
	}
	if err := s.RemoveRings(3); err != nil || s.State() != PostFiltered {
		t.Errorf("ring removal after export: %v, state %v", err, s.State())
	}
}

func TestResolveCentersDispatch(t *testing.T) {
	t.Run("entropy seeds padded centers", func(t *testing.T) {
		f := &stubFinder{upper: 17, lower: 18}
		s := newSession(t, acquisition(8, 4, 20), Options{Centers: f})
		if err := s.Normalize(NormalizeParams{PadSize: 32}); err != nil {
			t.Fatal(err)
		}
		err := s.ResolveCenters(CenterParams{Method: center.Entropy, UpperSlice: -1, LowerSlice: -1, Tolerance: 0.5})
		if err != nil {
			t.Fatal(err)
		}
		if len(f.seeds) != 2 || f.seeds[0] != 16 || f.seeds[1] != 16 {
			t.Errorf("seeds = %v", f.seeds)
		}
		c, resolved := s.ReportedCenters()
		if !resolved || c.Upper != 11 || c.Lower != 12 || c.UpperSlice != 1 || c.LowerSlice != 3 {
			t.Errorf("reported = %+v", c)
		}
		if s.State() != Centered || s.Status() != "Rotation Center found." {
			t.Errorf("state %v status %q", s.State(), s.Status())
		}
	})

	t.Run("0-180 pairs opposing projections", func(t *testing.T) {
		acq := acquisition(8, 4, 20)
		for a := 0; a < 8; a++ {
			plane := acq.Volume.Plane(a)
			for i := range plane {
				plane[i] = float64(a)
			}
		}
		f := &stubFinder{upper: 10, lower: 10}
		s := newSession(t, acq, Options{Centers: f})
		if err := s.ResolveCenters(CenterParams{Method: center.Correlation0180, UpperSlice: 1, LowerSlice: 3, Tolerance: 0.25}); err != nil {
			t.Fatal(err)
		}
		want := [][2]float64{{1, 5}, {3, 7}}
		if len(f.pairs) != 2 || f.pairs[0] != want[0] || f.pairs[1] != want[1] {
			t.Errorf("pairs = %v, want %v", f.pairs, want)
		}
		// centering raw data is allowed and keeps the state
		if s.State() != Raw {
			t.Errorf("state = %v", s.State())
		}
	})

	t.Run("unknown method", func(t *testing.T) {
		s := newSession(t, acquisition(8, 4, 20), Options{Centers: &stubFinder{}})
		err := s.ResolveCenters(CenterParams{Method: center.Method(7), UpperSlice: 0, LowerSlice: 1})
		if !errors.Is(err, center.ErrUnknownMethod) || !errors.Is(err, ErrPreconditionViolation) {
			t.Errorf("err = %v", err)
		}
	})
}

func TestPreviewDoesNotMutate(t *testing.T) {
	r := &stubRecon{}
	s := newSession(t, acquisition(8, 4, 20), Options{Reconstructor: r})
	if err := s.Normalize(NormalizeParams{PadSize: 32}); err != nil {
		t.Fatal(err)
	}
	before := s.Dataset().Volume

	img, err := s.PreviewSlice(2, 9.5, ReconParams{Algorithm: recon.FBP, Filter: recon.Shepp})
	if err != nil {
		t.Fatal(err)
	}
	if img.Shape != [3]int{1, 20, 20} || img.Axes != models.SliceAxes {
		t.Errorf("preview shape %v axes %v", img.Shape, img.Axes)
	}
	if r.centers.Scalar != 15.5 || r.centers.Schedule != nil {
		t.Errorf("preview centers = %+v", r.centers)
	}
	if s.Dataset().Volume != before || s.State() != Normalized {
		t.Error("preview changed the session")
	}

	if _, err := s.PreviewUpper(ReconParams{Algorithm: recon.FBP}); err != nil {
		t.Fatal(err)
	}
	if r.centers.Scalar != 16 {
		t.Errorf("upper preview center = %v, want 16", r.centers.Scalar)
	}
	if _, err := s.PreviewSlice(4, 10, ReconParams{}); !errors.Is(err, ErrSliceOutOfRange) {
		t.Errorf("err = %v", err)
	}
}

func TestCorrectTilt(t *testing.T) {
	want := math.Atan(0.1) * 180 / math.Pi
	if got := TiltAngle(models.CenterPair{UpperSlice: 0, LowerSlice: 10, Upper: 11, Lower: 10}); math.Abs(got-want) > 1e-12 {
		t.Errorf("TiltAngle = %v, want %v", got, want)
	}

	k := &countingCorrector{}
	s := newSession(t, acquisition(8, 4, 20), Options{Corrector: k})
	if err := s.CorrectTilt(); !errors.Is(err, ErrCentersNotResolved) {
		t.Errorf("err = %v", err)
	}
	if err := s.SetCenters(10, 10, 0, 3); err != nil {
		t.Fatal(err)
	}
	if err := s.CorrectTilt(); err != nil {
		t.Fatal(err)
	}
	if len(k.rotations) != 0 {
		t.Errorf("zero tilt rotated by %v", k.rotations)
	}
	if err := s.SetCenters(10.3, 10, 0, 3); err != nil {
		t.Fatal(err)
	}
	if err := s.CorrectTilt(); err != nil {
		t.Fatal(err)
	}
	if len(k.rotations) != 1 || math.Abs(k.rotations[0]-math.Atan(0.1)*180/math.Pi) > 1e-9 {
		t.Errorf("rotations = %v", k.rotations)
	}
	if err := s.SetCenters(10, 10, 2, 2); err != nil {
		t.Fatal(err)
	}
	if err := s.CorrectTilt(); !errors.Is(err, ErrDegenerateSlices) {
		t.Errorf("err = %v", err)
	}
}

func TestStateString(t *testing.T) {
	if Centered.String() != "centered" || State(42).String() != "State(42)" {
		t.Errorf("names: %v %v", Centered, State(42))
	}
	if !Centered.Projections() || Centered.Slices() || !Exported.Slices() {
		t.Error("state classification")
	}
}
