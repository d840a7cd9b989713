package pipeline

import (
	"errors"
	"fmt"

	"tomorecon/internal/models"
	"tomorecon/pkg/center"
	"tomorecon/pkg/export"
	"tomorecon/pkg/kernels"
	"tomorecon/pkg/oplog"
	"tomorecon/pkg/recon"
)

// PreviewFunc receives the slice produced by a replayed preview.
type PreviewFunc func(op string, slice *models.Volume) error

// Replay runs the logged operations against s in order. It stops at the
// first entry that fails, except for partial failures which are logged and
// skipped over. preview may be nil.
func (s *Session) Replay(entries []oplog.Entry, preview PreviewFunc) error {
	for _, e := range entries {
		err := s.replay(e, preview)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrPartialFailure) {
			s.log.WithField("line", e.Line).Warn(err)
			continue
		}
		return fmt.Errorf("line %d: %s: %w", e.Line, e.Op, err)
	}
	return nil
}

func (s *Session) replay(e oplog.Entry, preview PreviewFunc) error {
	r := entryReader{e: e}
	switch e.Op {
	case "import":
		path := e.Value("path", "")
		if path == "" {
			return errors.New("missing path")
		}
		return s.Import(path)

	case "free":
		return s.Free()

	case "remove_outliers":
		threshold, size := r.float("threshold", 0), r.int("size", 3)
		if r.err != nil {
			return r.err
		}
		return s.RemoveOutliers(threshold, size)

	case "remove_stripes", "remove_rings":
		width := r.int("width", 9)
		if r.err != nil {
			return r.err
		}
		if e.Op == "remove_rings" {
			return s.RemoveRings(width)
		}
		return s.RemoveStripes(width)

	case "normalize":
		p := NormalizeParams{
			BackgroundAir: r.bool("background", false),
			AirPixels:     r.int("air", 10),
			PadSize:       r.int("pad", 0),
			NegativeFloor: r.float("floor", 1e-6),
			RetainFlat:    r.bool("retain_flat", false),
		}
		if r.err != nil {
			return r.err
		}
		return s.Normalize(p)

	case "center":
		m, err := center.ParseMethod(e.Value("method", center.Vo.String()))
		if err != nil {
			return err
		}
		p := CenterParams{
			Method:     m,
			UpperSlice: r.int("upper_slice", -1),
			LowerSlice: r.int("lower_slice", -1),
			Tolerance:  r.float("tol", 0.25),
		}
		if r.err != nil {
			return r.err
		}
		return s.ResolveCenters(p)

	case "set_centers":
		upper, lower := r.float("upper", 0), r.float("lower", 0)
		us, ls := r.int("upper_slice", -1), r.int("lower_slice", -1)
		if r.err != nil {
			return r.err
		}
		return s.SetCenters(upper, lower, us, ls)

	case "tilt":
		return s.CorrectTilt()

	case "reconstruct", "preview", "preview_upper", "preview_lower":
		p, err := r.recon()
		if err != nil {
			return err
		}
		var slice *models.Volume
		switch e.Op {
		case "reconstruct":
			return s.Reconstruct(p)
		case "preview":
			row, c := r.int("row", 0), r.float("center", 0)
			if r.err != nil {
				return r.err
			}
			slice, err = s.PreviewSlice(row, c, p)
		case "preview_upper":
			slice, err = s.PreviewUpper(p)
		default:
			slice, err = s.PreviewLower(p)
		}
		if err != nil || preview == nil {
			return err
		}
		return preview(e.Op, slice)

	case "post_filter":
		f, err := kernels.ParsePostFilter(e.Value("filter", kernels.NoFilter.String()))
		if err != nil {
			return err
		}
		p := kernels.FilterParams{Sigma: r.float("sigma", 3), Size: r.int("size", 3)}
		if r.err != nil {
			return r.err
		}
		return s.PostFilter(f, p)

	case "export":
		p, err := r.export()
		if err != nil {
			return err
		}
		_, err = s.Export(p)
		return err
	}
	return fmt.Errorf("unknown operation %q", e.Op)
}

// entryReader keeps the first conversion error so a case can read all of
// its parameters before checking.
type entryReader struct {
	e   oplog.Entry
	err error
}

func (r *entryReader) keep(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *entryReader) float(key string, def float64) float64 {
	v, err := r.e.Float(key, def)
	r.keep(err)
	return v
}

func (r *entryReader) int(key string, def int) int {
	v, err := r.e.Int(key, def)
	r.keep(err)
	return v
}

func (r *entryReader) bool(key string, def bool) bool {
	v, err := r.e.Bool(key, def)
	r.keep(err)
	return v
}

func (r *entryReader) recon() (ReconParams, error) {
	a, err := recon.ParseAlgorithm(r.e.Value("algorithm", recon.Gridrec.String()))
	if err != nil {
		return ReconParams{}, err
	}
	f, err := recon.ParseFilter(r.e.Value("filter", recon.Hann.String()))
	if err != nil {
		return ReconParams{}, err
	}
	p := ReconParams{Algorithm: a, Filter: f, Iterations: r.int("iterations", 10)}
	return p, r.err
}

func (r *entryReader) export() (ExportParams, error) {
	d, err := export.ParseDtype(r.e.Value("dtype", export.Float32.String()))
	if err != nil {
		return ExportParams{}, err
	}
	f, err := export.ParseFormat(r.e.Value("format", export.PackedVolume.String()))
	if err != nil {
		return ExportParams{}, err
	}
	m, err := export.ParseScaleMode(r.e.Value("scale", export.ScaleObserved.String()))
	if err != nil {
		return ExportParams{}, err
	}
	p := ExportParams{
		Dtype:  d,
		Format: f,
		Scale:  export.Scale{Mode: m, Min: r.float("min", 0), Max: r.float("max", 1)},
		Base:   r.e.Value("base", "recon"),
	}
	return p, r.err
}
