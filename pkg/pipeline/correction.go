package pipeline

import (
	"errors"

	"tomorecon/internal/models"
	"tomorecon/pkg/kernels"
	"tomorecon/pkg/oplog"
)

// ErrNoThreshold is returned by RemoveOutliers for a threshold <= 0.
var ErrNoThreshold = errors.New("provide expected difference between zinger and median data value")

// RemoveOutliers replaces zingers: pixels that differ from the median of
// their size x size neighbourhood by more than threshold. An even size is
// raised to the next odd value and reported on the status channel.
//
// Raw and artifact-corrected volumes become ArtifactCorrected; normalized
// volumes keep their state.
func (s *Session) RemoveOutliers(threshold float64, size int) error {
	return s.run("remove_outliers", "Correcting Zingers", func(c *call) error {
		coerced, changed := kernels.OddKernel(size)
		c.record(oplog.P("threshold", threshold), oplog.P("size", coerced))

		ds, err := c.projections()
		if err != nil {
			return err
		}
		if threshold <= 0 {
			c.status = "Provide expected difference b/n zinger and median data value"
			return c.fail(PreconditionViolation, ErrNoThreshold)
		}
		if changed {
			c.coerced("Zinger kernel size", size, coerced)
		}

		v, n, err := s.opts.Corrector.RemoveOutliers(ds.Volume, threshold, coerced, s.opts.Budget)
		if err != nil {
			return c.fail(ExternalKernelFailure, err)
		}
		c.log.WithField("replaced", n).Debug("zingers replaced")
		s.commitCorrection(ds, v)
		c.status = "Artifacts Removed."
		return nil
	})
}

// RemoveStripes suppresses the detector column stripes that become rings
// in reconstructions. An even width is raised to the next odd value. The
// stage works on whatever is in the volume; it is most effective on raw
// data, before normalization.
func (s *Session) RemoveStripes(width int) error {
	return s.run("remove_stripes", "Deringing", func(c *call) error {
		coerced, changed := kernels.OddKernel(width)
		c.record(oplog.P("width", coerced))

		ds, err := c.projections()
		if err != nil {
			return err
		}
		if changed {
			c.coerced("Ring width", width, coerced)
		}

		v, err := s.opts.Corrector.RemoveStripes(ds.Volume, coerced, s.opts.Budget)
		if err != nil {
			return c.fail(ExternalKernelFailure, err)
		}
		s.commitCorrection(ds, v)
		c.status = "Ring removed."
		return nil
	})
}

// commitCorrection installs a corrected projection volume.
func (s *Session) commitCorrection(ds *models.Dataset, v *models.Volume) {
	s.commit(func() {
		ds.Volume = v
		ds.RefreshExtrema()
		if s.state == Raw {
			s.state = ArtifactCorrected
		}
	})
}
