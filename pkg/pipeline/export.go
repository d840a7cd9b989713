package pipeline

import (
	"tomorecon/pkg/export"
	"tomorecon/pkg/oplog"
)

// ExportParams configures Export.
type ExportParams struct {
	Dtype  export.Dtype
	Format export.Format

	// Scale maps floats onto the unsigned types
	Scale export.Scale

	// Base is the output path without extension
	Base string
}

// Export crops the padding, converts the volume to the target type and
// hands it to the writer. A packed volume with an unsigned type fails with
// ErrUnsupportedFormatDtypeCombination before any conversion. The session
// volume is not changed; reconstructed volumes become Exported.
func (s *Session) Export(p ExportParams) ([]string, error) {
	var paths []string
	err := s.run("export", "Saving", func(c *call) error {
		c.record(
			oplog.P("dtype", p.Dtype),
			oplog.P("format", p.Format),
			oplog.P("scale", p.Scale.Mode),
			oplog.P("min", p.Scale.Min),
			oplog.P("max", p.Scale.Max),
			oplog.P("base", p.Base),
		)
		ds, err := c.dataset()
		if err != nil {
			return err
		}
		if err := export.Check(p.Format, p.Dtype); err != nil {
			if p.Dtype.Unsigned() && p.Format == export.PackedVolume {
				c.status = "netCDF3 does not support unsigned images"
			}
			return c.fail(PreconditionViolation, err)
		}

		cropped, err := export.CropPadding(ds.Volume, ds.PadAmount)
		if err != nil {
			return c.fail(PreconditionViolation, err)
		}
		conv, err := export.Convert(cropped, p.Dtype, p.Scale)
		if err != nil {
			return c.fail(PreconditionViolation, err)
		}
		c.log.WithField("min", conv.Min).WithField("max", conv.Max).Debug("converted")

		if paths, err = s.opts.Writer.Write(conv, p.Format, p.Base); err != nil {
			return c.fail(ExternalKernelFailure, err)
		}
		if s.state.Slices() {
			s.commit(func() { s.state = Exported })
		}
		c.log.WithField("files", len(paths)).Debug("written")
		c.status = "Saving completed."
		return nil
	})
	return paths, err
}
