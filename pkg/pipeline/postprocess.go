package pipeline

import (
	"fmt"

	"tomorecon/internal/models"
	"tomorecon/pkg/kernels"
	"tomorecon/pkg/oplog"
)

// PostFilter applies one 2D filter to every reconstructed slice. An even
// median size is raised to the next odd value. Filters compound when
// applied again. Filter none changes nothing.
func (s *Session) PostFilter(f kernels.PostFilter, p kernels.FilterParams) error {
	return s.run("post_filter", "Filtering", func(c *call) error {
		size, changed := kernels.OddKernel(p.Size)
		if f != kernels.Median {
			size, changed = p.Size, false
		}
		c.record(oplog.P("filter", f), oplog.P("sigma", p.Sigma), oplog.P("size", size))

		ds, err := c.slices()
		if err != nil {
			return err
		}
		switch f {
		case kernels.NoFilter:
			c.status = "No filter applied."
			return nil
		case kernels.Gaussian, kernels.Median, kernels.Sobel:
		default:
			return c.fail(PreconditionViolation, fmt.Errorf("%w: %v", kernels.ErrUnknownPostFilter, f))
		}
		if changed {
			c.coerced("Median size", p.Size, size)
		}

		p.Size = size
		v, err := s.opts.Corrector.PostFilter(ds.Volume, f, p, s.opts.Budget)
		if err != nil {
			return c.fail(ExternalKernelFailure, err)
		}
		s.commitPostProcess(ds, v)
		c.status = "Data Filtered"
		return nil
	})
}

// RemoveRings runs the stripe removal pass again, on reconstructed slices.
// An even width is raised to the next odd value.
func (s *Session) RemoveRings(width int) error {
	return s.run("remove_rings", "Deringing", func(c *call) error {
		coerced, changed := kernels.OddKernel(width)
		c.record(oplog.P("width", coerced))

		ds, err := c.slices()
		if err != nil {
			return err
		}
		if changed {
			c.coerced("Ring width", width, coerced)
		}

		v, err := s.opts.Corrector.RemoveRings(ds.Volume, coerced, s.opts.Budget)
		if err != nil {
			return c.fail(ExternalKernelFailure, err)
		}
		s.commitPostProcess(ds, v)
		c.status = "Ring removed."
		return nil
	})
}

func (s *Session) commitPostProcess(ds *models.Dataset, v *models.Volume) {
	s.commit(func() {
		ds.Volume = v
		ds.RefreshExtrema()
		s.state = PostFiltered
	})
}
