package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"tomorecon/internal/models"
	"tomorecon/pkg/center"
	"tomorecon/pkg/config"
	"tomorecon/pkg/export"
	"tomorecon/pkg/kernels"
	"tomorecon/pkg/oplog"
	"tomorecon/pkg/pipeline"
	"tomorecon/pkg/recon"
	"tomorecon/pkg/visualization"
)

var previewDir string

func init() {
	for _, fs := range []*pflag.FlagSet{runCmd.Flags(), replayCmd.Flags()} {
		fs.StringVar(&previewDir, "preview", "", "directory for PNG previews of the reference slices; empty skips them")
	}
}

var runCmd = &cobra.Command{
	Use:   "run <acquisition>",
	Short: "Reconstruct an acquisition with the configured settings",
	Long: `run imports a netCDF or FITS acquisition and takes it through artifact
          correction, normalization, center resolution, reconstruction,
          post-processing and export. Every stage is appended to the
          operation log so the session can be replayed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := planFromConfig(cfg)
		if err != nil {
			return err
		}
		s, closeLog, err := openSession(cfg)
		if err != nil {
			return err
		}
		defer closeLog()

		base := filepath.Join(cfg.Export.OutputDir, strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))+"_recon")
		return plan.execute(s, args[0], base, previewDir)
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay <logfile>",
	Short: "Re-run the operations recorded in an operation log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := oplog.ParseFile(args[0])
		if err != nil {
			return err
		}
		if filepath.Clean(args[0]) == filepath.Clean(cfg.Logging.OperationLog) {
			return fmt.Errorf("replaying %s would append to itself; set logging.operationLog elsewhere", args[0])
		}
		s, closeLog, err := openSession(cfg)
		if err != nil {
			return err
		}
		defer closeLog()

		logrus.WithField("operations", len(entries)).Info("replaying")
		return s.Replay(entries, func(op string, slice *models.Volume) error {
			return savePreview(previewDir, op, slice)
		})
	},
}

// openSession builds a session whose status updates go to the log and
// whose operations are appended to the configured operation log.
func openSession(cfg *config.Config) (*pipeline.Session, func(), error) {
	var ops *oplog.Log
	if cfg.Logging.OperationLog != "" {
		var err error
		if ops, err = oplog.Open(cfg.Logging.OperationLog); err != nil {
			return nil, nil, err
		}
	}
	s := pipeline.NewSession(pipeline.Options{
		Logger: logrus.StandardLogger(),
		OpLog:  ops,
		Status: func(status string) { logrus.Info(status) },
		Budget: models.ComputeBudget{
			CoreCount:  cfg.Processing.CoreCount,
			ChunkCount: cfg.Processing.ChunkCount,
		},
	})
	return s, func() {
		if err := ops.Close(); err != nil {
			logrus.WithError(err).Warn("closing operation log")
		}
	}, nil
}

// plan is the configuration resolved into stage parameters.
type plan struct {
	zingerThreshold float64
	zingerSize      int
	ringWidth       int
	normalize       pipeline.NormalizeParams
	center          pipeline.CenterParams
	recon           pipeline.ReconParams
	postFilter      kernels.PostFilter
	filterParams    kernels.FilterParams
	ringRemoval     bool
	export          pipeline.ExportParams
}

func planFromConfig(cfg *config.Config) (*plan, error) {
	method, err := center.ParseMethod(cfg.Centering.Method)
	if err != nil {
		return nil, err
	}
	alg, err := recon.ParseAlgorithm(cfg.Reconstruction.Algorithm)
	if err != nil {
		return nil, err
	}
	filter, err := recon.ParseFilter(cfg.Reconstruction.Filter)
	if err != nil {
		return nil, err
	}
	post, err := kernels.ParsePostFilter(cfg.PostProcess.Filter)
	if err != nil {
		return nil, err
	}
	dtype, err := export.ParseDtype(cfg.Export.Dtype)
	if err != nil {
		return nil, err
	}
	format, err := export.ParseFormat(cfg.Export.Format)
	if err != nil {
		return nil, err
	}
	scale, err := export.ParseScaleMode(cfg.Export.Scale)
	if err != nil {
		return nil, err
	}

	return &plan{
		zingerThreshold: cfg.Correction.ZingerThreshold,
		zingerSize:      cfg.Correction.ZingerKernelSize,
		ringWidth:       cfg.Correction.RingWidth,
		normalize: pipeline.NormalizeParams{
			BackgroundAir: cfg.Normalization.BackgroundAir,
			AirPixels:     cfg.Normalization.AirPixels,
			PadSize:       cfg.Normalization.PadSize,
			NegativeFloor: cfg.Normalization.NegativeFloor,
			RetainFlat:    cfg.Normalization.RetainFlat,
		},
		center: pipeline.CenterParams{
			Method:     method,
			UpperSlice: cfg.Centering.UpperSlice,
			LowerSlice: cfg.Centering.LowerSlice,
			Tolerance:  cfg.Centering.Tolerance,
		},
		recon: pipeline.ReconParams{
			Algorithm:  alg,
			Filter:     filter,
			Iterations: cfg.Reconstruction.Iterations,
		},
		postFilter:   post,
		filterParams: kernels.FilterParams{Sigma: cfg.PostProcess.GaussianSigma, Size: cfg.PostProcess.MedianSize},
		ringRemoval:  cfg.PostProcess.RingRemoval,
		export: pipeline.ExportParams{
			Dtype:  dtype,
			Format: format,
			Scale:  export.Scale{Mode: scale, Min: cfg.Export.FixedMin, Max: cfg.Export.FixedMax},
		},
	}, nil
}

// execute runs every configured stage over the acquisition at input and
// exports to base.
func (p *plan) execute(s *pipeline.Session, input, base, previews string) error {
	if err := s.Import(input); err != nil {
		return err
	}
	if p.zingerThreshold > 0 {
		if err := s.RemoveOutliers(p.zingerThreshold, p.zingerSize); err != nil {
			return err
		}
	}
	if p.ringWidth > 0 {
		if err := s.RemoveStripes(p.ringWidth); err != nil {
			return err
		}
	}
	if err := s.Normalize(p.normalize); err != nil {
		if !errors.Is(err, pipeline.ErrPartialFailure) {
			return err
		}
		logrus.WithError(err).Warn("continuing without padding")
	}
	if err := s.ResolveCenters(p.center); err != nil {
		return err
	}
	if c, ok := s.ReportedCenters(); ok {
		logrus.WithFields(logrus.Fields{
			"upper": c.Upper,
			"lower": c.Lower,
			"tilt":  pipeline.TiltAngle(c),
		}).Info("rotation centers")
	}

	if previews != "" {
		for op, preview := range map[string]func(pipeline.ReconParams) (*models.Volume, error){
			"preview_upper": s.PreviewUpper,
			"preview_lower": s.PreviewLower,
		} {
			slice, err := preview(p.recon)
			if err != nil {
				return err
			}
			if err := savePreview(previews, op, slice); err != nil {
				return err
			}
		}
	}

	if err := s.Reconstruct(p.recon); err != nil {
		return err
	}
	if p.postFilter != kernels.NoFilter {
		if err := s.PostFilter(p.postFilter, p.filterParams); err != nil {
			return err
		}
	}
	if p.ringRemoval && p.ringWidth > 0 {
		if err := s.RemoveRings(p.ringWidth); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(base), 0755); err != nil {
		return err
	}
	ep := p.export
	ep.Base = base
	paths, err := s.Export(ep)
	if err != nil {
		return err
	}
	logrus.WithField("files", len(paths)).Info("export written")
	return nil
}

// savePreview writes slice as dir/<op>.png. An empty dir discards it.
func savePreview(dir, op string, slice *models.Volume) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	v := visualization.NewViewer(slice)
	img, err := v.ExtractSlice("z", 0)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, op+".png")
	if err := v.SaveSlice(img, path); err != nil {
		return err
	}
	logrus.WithField("path", path).Debug("preview saved")
	return nil
}
