package pipeline

import (
	"fmt"

	"tomorecon/internal/models"
	"tomorecon/pkg/export"
	"tomorecon/pkg/oplog"
	"tomorecon/pkg/recon"
)

// ReconParams selects the reconstruction.
type ReconParams struct {
	Algorithm recon.Algorithm

	// Filter is used by the analytic algorithms only
	Filter recon.Filter

	// Iterations is used by the iterative algorithms only
	Iterations int
}

func (p ReconParams) params() []oplog.Param {
	return []oplog.Param{
		oplog.P("algorithm", p.Algorithm),
		oplog.P("filter", p.Filter),
		oplog.P("iterations", p.Iterations),
	}
}

func (s *Session) reconOptions(p ReconParams) recon.Options {
	return recon.Options{
		Algorithm:  p.Algorithm,
		Filter:     p.Filter,
		Iterations: p.Iterations,
		Budget:     s.opts.Budget,
	}
}

// Reconstruct replaces the normalized projections with reconstructed
// slices, one per detector row, using the per-angle center schedule. It
// fails with ErrCentersNotResolved or ErrNotNormalized, in that order of
// precedence, without touching the volume. NaN values in the result are
// set to 0.
//
// The slices stay padded in memory; Geometry and Export remove the padding.
func (s *Session) Reconstruct(p ReconParams) error {
	return s.run("reconstruct", "Reconstructing.", func(c *call) error {
		c.record(p.params()...)
		ds, err := c.dataset()
		if err != nil {
			return err
		}
		if !ds.CentersResolved {
			return c.fail(PreconditionViolation, ErrCentersNotResolved)
		}
		if !s.state.normalized() {
			return c.fail(PreconditionViolation, fmt.Errorf("%w: volume is %v", ErrNotNormalized, s.state))
		}

		s.mu.Lock()
		sched := append([]float64(nil), s.scheduleLocked()...)
		s.mu.Unlock()

		out, err := s.opts.Reconstructor.Reconstruct(ds.Volume, ds.Theta, recon.Centers{Schedule: sched}, s.reconOptions(p))
		if err != nil {
			return c.fail(ExternalKernelFailure, err)
		}
		out.Axes = models.SliceAxes
		out.ReplaceNaN(0)

		s.commit(func() {
			ds.Volume = out
			ds.Flat = nil
			ds.RefreshExtrema()
			s.state = Reconstructed
			s.schedule = nil
		})
		g := ds.Geometry()
		c.log.WithField("shape", fmt.Sprintf("%dx%dx%d", g.Depth, g.Rows, g.Cols)).Debug("reconstructed")
		c.status = "Reconstruction Complete"
		return nil
	})
}

// PreviewSlice reconstructs detector row row alone at a center given in
// un-padded column space, without changing the session. The result is one
// slice with padding removed.
func (s *Session) PreviewSlice(row int, reported float64, p ReconParams) (*models.Volume, error) {
	var out *models.Volume
	err := s.run("preview", "Reconstructing slice.", func(c *call) error {
		c.record(append([]oplog.Param{oplog.P("row", row), oplog.P("center", reported)}, p.params()...)...)
		var err error
		out, err = s.preview(c, row, reported, p)
		return err
	})
	return out, err
}

// PreviewUpper reconstructs the upper reference row at the upper center.
func (s *Session) PreviewUpper(p ReconParams) (*models.Volume, error) {
	return s.previewReference("preview_upper", func(pair models.CenterPair) (int, float64) {
		return pair.UpperSlice, pair.Upper
	}, p)
}

// PreviewLower reconstructs the lower reference row at the lower center.
func (s *Session) PreviewLower(p ReconParams) (*models.Volume, error) {
	return s.previewReference("preview_lower", func(pair models.CenterPair) (int, float64) {
		return pair.LowerSlice, pair.Lower
	}, p)
}

func (s *Session) previewReference(stage string, pick func(models.CenterPair) (int, float64), p ReconParams) (*models.Volume, error) {
	var out *models.Volume
	err := s.run(stage, "Reconstructing slice.", func(c *call) error {
		c.record(p.params()...)
		ds, err := c.dataset()
		if err != nil {
			return err
		}
		row, padded := pick(ds.Centers)
		out, err = s.preview(c, row, padded-float64(ds.PadAmount), p)
		return err
	})
	return out, err
}

func (s *Session) preview(c *call, row int, reported float64, p ReconParams) (*models.Volume, error) {
	ds, err := c.projections()
	if err != nil {
		return nil, err
	}
	if !s.state.normalized() {
		return nil, c.fail(PreconditionViolation, fmt.Errorf("%w: volume is %v", ErrNotNormalized, s.state))
	}
	nRows, nCols := ds.Volume.Shape[1], ds.Volume.Shape[2]
	if row < 0 || row >= nRows {
		c.status = "Slice out of range."
		return nil, c.fail(PreconditionViolation, fmt.Errorf("%w: slice %d of %d rows", ErrSliceOutOfRange, row, nRows))
	}

	centers := recon.Centers{Scalar: reported + float64(ds.PadAmount)}
	img, err := s.opts.Reconstructor.ReconstructSlice(ds.Volume.Sinogram(row), nCols, ds.Theta, centers, s.reconOptions(p))
	if err != nil {
		return nil, c.fail(ExternalKernelFailure, err)
	}
	slice := &models.Volume{Data: img, Shape: [3]int{1, nCols, nCols}, Axes: models.SliceAxes}
	slice.ReplaceNaN(0)
	cropped, err := export.CropPadding(slice, ds.PadAmount)
	if err != nil {
		return nil, c.fail(PreconditionViolation, err)
	}
	c.log.WithField("row", row).WithField("center", reported).Debug("slice reconstructed")
	c.status = "Slice Reconstructed."
	return cropped, nil
}
