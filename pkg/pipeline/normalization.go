package pipeline

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"tomorecon/pkg/oplog"
)

// NormalizeParams configures Normalize.
type NormalizeParams struct {
	// BackgroundAir enables the secondary normalization to the outermost
	// AirPixels columns on each side
	BackgroundAir bool
	AirPixels     int

	// PadSize is the padded column count; 0 disables padding
	PadSize int

	// NegativeFloor replaces negative values before the negative log
	NegativeFloor float64

	// RetainFlat keeps the flat field after the stage; the dark is always released
	RetainFlat bool
}

// Normalize turns raw projections into absorption: flat/dark correction,
// optional background correction, optional edge padding, flooring of
// negative values, negative log and NaN cleanup, in that order.
//
// When PadSize does not exceed the column count the volume is left
// unpadded but the remaining steps still run, and the stage returns a
// PartialFailure wrapping ErrPadTooSmall. The volume is Normalized either
// way. Padding shifts the rotation centers into padded column space.
func (s *Session) Normalize(p NormalizeParams) error {
	return s.run("normalize", "Preprocessing", func(c *call) error {
		c.record(
			oplog.P("background", p.BackgroundAir),
			oplog.P("air", p.AirPixels),
			oplog.P("pad", p.PadSize),
			oplog.P("floor", p.NegativeFloor),
			oplog.P("retain_flat", p.RetainFlat),
		)

		ds, err := c.dataset()
		if err != nil {
			return err
		}
		if s.state != Raw && s.state != ArtifactCorrected {
			return c.fail(PreconditionViolation, fmt.Errorf("%w: volume is already %v", ErrInvalidState, s.state))
		}

		v, err := s.opts.Corrector.Normalize(ds.Volume, ds.Flat, ds.Dark, s.opts.Budget)
		if err != nil {
			return c.fail(ExternalKernelFailure, err)
		}
		if p.BackgroundAir {
			if v, err = s.opts.Corrector.NormalizeBackground(v, p.AirPixels, s.opts.Budget); err != nil {
				return c.fail(ExternalKernelFailure, err)
			}
		}

		var padErr error
		pad := 0
		if nCols := v.Shape[2]; p.PadSize > 0 {
			if p.PadSize <= nCols {
				padErr = fmt.Errorf("%w: pad size %d for %d columns", ErrPadTooSmall, p.PadSize, nCols)
			} else {
				pad = (p.PadSize - nCols) / 2
				v = v.PadColumns(pad)
			}
		}

		floored := v.FloorNegatives(p.NegativeFloor)
		v.MinusLog()
		nans := v.ReplaceNaN(0)
		c.log.WithFields(logrus.Fields{
			"npad":    pad,
			"floored": floored,
			"nan":     nans,
		}).Debug("normalized")

		s.commit(func() {
			ds.Volume = v
			ds.PadAmount = pad
			ds.Centers.Upper += float64(pad)
			ds.Centers.Lower += float64(pad)
			ds.Dark = nil
			if !p.RetainFlat {
				ds.Flat = nil
			}
			ds.RefreshExtrema()
			s.state = Normalized
			s.schedule = nil
		})

		if padErr != nil {
			c.status = "Pad size too small for dataset. Normalized but no padding."
			return c.fail(PartialFailure, padErr)
		}
		c.status = "Preprocessing Complete"
		return nil
	})
}
