package pipeline

import (
	"fmt"
	"math"

	"tomorecon/internal/models"
	"tomorecon/pkg/center"
	"tomorecon/pkg/oplog"
)

// CenterParams configures ResolveCenters.
type CenterParams struct {
	Method center.Method

	// UpperSlice and LowerSlice are detector rows; negative values keep
	// the dataset's current slices
	UpperSlice int
	LowerSlice int

	// Tolerance is the search tolerance in pixels
	Tolerance float64
}

// ResolveCenters measures the rotation center at the upper and lower
// reference rows. Centers are stored in padded column space; see
// ReportedCenters for the un-padded values. An out of range row fails with
// ErrSliceOutOfRange before anything is searched or changed.
//
// The entropy search is seeded with the current centers. The 0-180
// correlation pairs the projection at angle index row mod nAngles with the
// one half a turn later.
func (s *Session) ResolveCenters(p CenterParams) error {
	return s.run("center", "Centering", func(c *call) error {
		upper, lower := p.UpperSlice, p.LowerSlice
		if s.ds != nil {
			if upper < 0 {
				upper = s.ds.Centers.UpperSlice
			}
			if lower < 0 {
				lower = s.ds.Centers.LowerSlice
			}
		}
		c.record(
			oplog.P("method", p.Method),
			oplog.P("upper_slice", upper),
			oplog.P("lower_slice", lower),
			oplog.P("tol", p.Tolerance),
		)

		ds, err := c.projections()
		if err != nil {
			return err
		}
		switch p.Method {
		case center.Entropy, center.Correlation0180, center.Vo:
		default:
			return c.fail(PreconditionViolation, fmt.Errorf("%w: %v", center.ErrUnknownMethod, p.Method))
		}
		if err := c.checkSlices(ds, upper, lower); err != nil {
			return err
		}

		find := func(row int, seed float64) (float64, error) {
			v := ds.Volume
			nA, nRows, nCols := v.Shape[0], v.Shape[1], v.Shape[2]
			switch p.Method {
			case center.Entropy:
				return s.opts.Centers.Entropy(v.Sinogram(row), nCols, ds.Theta, seed, p.Tolerance)
			case center.Correlation0180:
				a := row % nA
				return s.opts.Centers.Correlate0180(v.Projection(a), v.Projection((a+nA/2)%nA), nRows, nCols, p.Tolerance)
			default:
				return s.opts.Centers.Vo(v.Sinogram(row), nA, nCols, p.Tolerance)
			}
		}

		uc, err := find(upper, ds.Centers.Upper)
		if err != nil {
			return c.fail(ExternalKernelFailure, fmt.Errorf("upper slice %d: %w", upper, err))
		}
		lc, err := find(lower, ds.Centers.Lower)
		if err != nil {
			return c.fail(ExternalKernelFailure, fmt.Errorf("lower slice %d: %w", lower, err))
		}

		s.setCenters(ds, models.CenterPair{UpperSlice: upper, LowerSlice: lower, Upper: uc, Lower: lc})
		pad := float64(ds.PadAmount)
		c.log.WithField("upper", uc-pad).WithField("lower", lc-pad).Debug("centers found")
		c.status = "Rotation Center found."
		return nil
	})
}

// SetCenters enters the rotation centers by hand, in un-padded column
// space.
func (s *Session) SetCenters(upper, lower float64, upperSlice, lowerSlice int) error {
	return s.run("set_centers", "Setting centers", func(c *call) error {
		c.record(
			oplog.P("upper", upper),
			oplog.P("lower", lower),
			oplog.P("upper_slice", upperSlice),
			oplog.P("lower_slice", lowerSlice),
		)
		ds, err := c.projections()
		if err != nil {
			return err
		}
		if err := c.checkSlices(ds, upperSlice, lowerSlice); err != nil {
			return err
		}
		pad := float64(ds.PadAmount)
		s.setCenters(ds, models.CenterPair{
			UpperSlice: upperSlice,
			LowerSlice: lowerSlice,
			Upper:      upper + pad,
			Lower:      lower + pad,
		})
		c.status = "Rotation Center set."
		return nil
	})
}

func (c *call) checkSlices(ds *models.Dataset, upper, lower int) error {
	nRows := ds.Volume.Shape[1]
	if upper < 0 || upper >= nRows {
		c.status = "Upper slice out of range."
		return c.fail(PreconditionViolation, fmt.Errorf("%w: upper slice %d of %d rows", ErrSliceOutOfRange, upper, nRows))
	}
	if lower < 0 || lower >= nRows {
		c.status = "Lower slice out of range."
		return c.fail(PreconditionViolation, fmt.Errorf("%w: lower slice %d of %d rows", ErrSliceOutOfRange, lower, nRows))
	}
	return nil
}

// setCenters stores padded-space centers and marks them resolved.
func (s *Session) setCenters(ds *models.Dataset, pair models.CenterPair) {
	s.commit(func() {
		ds.Centers = pair
		ds.CentersResolved = true
		if s.state == Normalized {
			s.state = Centered
		}
		s.schedule = nil
	})
}

// TiltAngle returns the detector tilt in degrees implied by two centers
// measured at two rows.
func TiltAngle(pair models.CenterPair) float64 {
	return math.Atan((pair.Upper-pair.Lower)/float64(pair.LowerSlice-pair.UpperSlice)) * 180 / math.Pi
}

// CorrectTilt rotates every projection about its centre by the tilt the
// resolved centers imply, keeping the shape. The centers themselves are
// kept.
func (s *Session) CorrectTilt() error {
	return s.run("tilt", "Correcting Tilt", func(c *call) error {
		c.record()
		ds, err := c.projections()
		if err != nil {
			return err
		}
		if !ds.CentersResolved {
			return c.fail(PreconditionViolation, ErrCentersNotResolved)
		}
		if ds.Centers.UpperSlice == ds.Centers.LowerSlice {
			return c.fail(PreconditionViolation, fmt.Errorf("%w: %d", ErrDegenerateSlices, ds.Centers.UpperSlice))
		}

		angle := TiltAngle(ds.Centers)
		c.log.WithField("angle", angle).Debug("tilt")
		if angle == 0 {
			c.status = "Tilt Corrected"
			return nil
		}

		v, err := s.opts.Corrector.Rotate(ds.Volume, angle, s.opts.Budget)
		if err != nil {
			return c.fail(ExternalKernelFailure, err)
		}
		s.commit(func() {
			ds.Volume = v
			ds.RefreshExtrema()
			s.schedule = nil
		})
		c.status = "Tilt Corrected"
		return nil
	})
}
