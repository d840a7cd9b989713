// Package pipeline is the volume processing controller. A Session owns one
// dataset and sequences the stages over its volume: artifact correction,
// normalization, center resolution, reconstruction, post-processing and
// export. Stages run one at a time; a stage called while another holds the
// session fails with ErrBusy.
package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"tomorecon/internal/models"
	"tomorecon/pkg/dataio"
	"tomorecon/pkg/oplog"
	"tomorecon/pkg/recon"
)

// StatusFunc observes every status update.
type StatusFunc func(status string)

// Options configures a Session. Nil collaborators get the in-process
// defaults.
type Options struct {
	// Logger defaults to the logrus standard logger
	Logger logrus.FieldLogger

	// OpLog receives one record per stage call; nil discards
	OpLog *oplog.Log

	// Status is called with every status update
	Status StatusFunc

	// Budget is handed uninterpreted to the kernels
	Budget models.ComputeBudget

	Importer      Importer
	Corrector     Corrector
	Centers       CenterFinder
	Reconstructor Reconstructor
	Writer        Writer
}

// Session is one pipeline over one dataset at a time. Its methods may be
// called from any goroutine.
type Session struct {
	opts Options
	log  logrus.FieldLogger

	// busy is the stage lease
	busy atomic.Bool

	// mu guards everything below. Stages read the dataset freely while
	// they hold the lease and write it under mu.
	mu     sync.Mutex
	status string
	state  State
	ds     *models.Dataset

	schedule    []float64
	scheduleFor scheduleKey
}

type scheduleKey struct {
	upper, lower float64
	nAngles      int
}

// NewSession returns an empty session.
func NewSession(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Importer == nil {
		opts.Importer = ImporterFunc(dataio.Import)
	}
	if opts.Corrector == nil {
		opts.Corrector = KernelCorrector{}
	}
	if opts.Centers == nil {
		opts.Centers = SearchCenters{Budget: opts.Budget}
	}
	if opts.Reconstructor == nil {
		opts.Reconstructor = recon.Kernel{}
	}
	if opts.Writer == nil {
		opts.Writer = dataio.Writer{}
	}
	return &Session{opts: opts, log: opts.Logger}
}

// Status returns the last status message.
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// State returns the pipeline state of the volume.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Busy reports whether a stage is running.
func (s *Session) Busy() bool {
	return s.busy.Load()
}

// Dataset returns the current dataset or nil. The caller must not modify
// it, and its volume is only stable while no stage is running.
func (s *Session) Dataset() *models.Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ds
}

// Geometry returns the logical shape of the volume, padding removed.
func (s *Session) Geometry() models.Geometry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ds == nil {
		return models.Geometry{}
	}
	return s.ds.Geometry()
}

// ReportedCenters returns the rotation centers in un-padded column space
// and whether they have been resolved.
func (s *Session) ReportedCenters() (models.CenterPair, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ds == nil {
		return models.CenterPair{}, false
	}
	c := s.ds.Centers
	c.Upper -= float64(s.ds.PadAmount)
	c.Lower -= float64(s.ds.PadAmount)
	return c, s.ds.CentersResolved
}

// CenterSchedule returns a copy of the per-angle center schedule in padded
// column space.
func (s *Session) CenterSchedule() ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ds == nil {
		return nil, &Error{Stage: "schedule", Kind: PreconditionViolation, Err: ErrNoDataset}
	}
	if !s.ds.CentersResolved {
		return nil, &Error{Stage: "schedule", Kind: PreconditionViolation, Err: ErrCentersNotResolved}
	}
	return append([]float64(nil), s.scheduleLocked()...), nil
}

// Schedule interpolates one rotation center per angle from upper towards
// lower: sched[i] = upper + i*(lower-upper)/nAngles.
func Schedule(upper, lower float64, nAngles int) []float64 {
	sched := make([]float64, nAngles)
	if nAngles == 0 {
		return sched
	}
	step := (lower - upper) / float64(nAngles)
	for i := range sched {
		sched[i] = upper + float64(i)*step
	}
	return sched
}

// scheduleLocked regenerates the cached schedule when the centers or the
// angle count changed.
func (s *Session) scheduleLocked() []float64 {
	key := scheduleKey{upper: s.ds.Centers.Upper, lower: s.ds.Centers.Lower, nAngles: len(s.ds.Theta)}
	if s.schedule == nil || s.scheduleFor != key {
		s.schedule = Schedule(key.upper, key.lower, key.nAngles)
		s.scheduleFor = key
	}
	return s.schedule
}

func (s *Session) setStatus(status string) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
	if s.opts.Status != nil {
		s.opts.Status(status)
	}
}

// commit applies a dataset update under the lock.
func (s *Session) commit(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// call is one running stage.
type call struct {
	s      *Session
	stage  string
	log    logrus.FieldLogger
	status string
}

// run takes the lease, shows running as the status and runs fn. The status
// fn leaves in c.status becomes the terminal status.
func (s *Session) run(stage, running string, fn func(c *call) error) error {
	if !s.busy.CompareAndSwap(false, true) {
		err := &Error{Stage: stage, Kind: PreconditionViolation, Err: ErrBusy}
		s.log.WithField("stage", stage).Warn(err)
		return err
	}
	defer s.busy.Store(false)

	c := &call{s: s, stage: stage, log: s.log.WithField("stage", stage)}
	s.setStatus(running)
	start := time.Now()
	err := fn(c)

	log := c.log.WithFields(logrus.Fields{
		"state":    s.State(),
		"duration": time.Since(start).Round(time.Millisecond),
	})
	if err != nil {
		if c.status == "" {
			c.status = failureStatus(err)
		}
		s.setStatus(c.status)
		log.WithError(err).Error("stage failed")
		return err
	}
	s.setStatus(c.status)
	log.Info(c.status)
	return nil
}

func failureStatus(err error) string {
	if e, ok := err.(*Error); ok {
		return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
	}
	return err.Error()
}

// record writes the resolved parameters to the operation log and the
// stage logger.
func (c *call) record(params ...oplog.Param) {
	fields := make(logrus.Fields, len(params))
	for _, p := range params {
		fields[p.Key] = p.Value
	}
	c.log = c.log.WithFields(fields)
	if err := c.s.opts.OpLog.Record(c.stage, params...); err != nil {
		c.log.WithError(err).Warn("operation log write failed")
	}
}

// coerced reports a kernel size raised to an odd value on the status
// channel.
func (c *call) coerced(what string, from, to int) {
	msg := fmt.Sprintf("%s %d is not odd, using %d", what, from, to)
	c.log.WithFields(logrus.Fields{"requested": from, "used": to}).Info(msg)
	c.s.setStatus(msg)
}

func (c *call) fail(kind Kind, err error) error {
	return &Error{Stage: c.stage, Kind: kind, Err: err}
}

// dataset returns the loaded dataset.
func (c *call) dataset() (*models.Dataset, error) {
	if c.s.ds == nil {
		return nil, c.fail(PreconditionViolation, ErrNoDataset)
	}
	return c.s.ds, nil
}

// projections returns the dataset when its volume still holds projections.
func (c *call) projections() (*models.Dataset, error) {
	ds, err := c.dataset()
	if err != nil {
		return nil, err
	}
	if !c.s.state.Projections() {
		return nil, c.fail(PreconditionViolation, fmt.Errorf("%w: volume is %v, want projections", ErrInvalidState, c.s.state))
	}
	return ds, nil
}

// slices returns the dataset when its volume holds reconstructed slices.
func (c *call) slices() (*models.Dataset, error) {
	ds, err := c.dataset()
	if err != nil {
		return nil, err
	}
	if !c.s.state.Slices() {
		return nil, c.fail(PreconditionViolation, fmt.Errorf("%w: volume is %v, want reconstructed slices", ErrInvalidState, c.s.state))
	}
	return ds, nil
}

// Import loads an acquisition into an empty session.
func (s *Session) Import(path string) error {
	return s.run("import", "Please wait. Reading in the data.", func(c *call) error {
		c.record(oplog.P("path", path))
		if s.ds != nil {
			return c.fail(PreconditionViolation, ErrDatasetLoaded)
		}

		acq, err := s.opts.Importer.Import(path)
		if err != nil {
			return c.fail(ExternalKernelFailure, err)
		}
		ds := models.NewDataset(acq)

		s.commit(func() {
			s.ds = ds
			s.state = Raw
			s.schedule = nil
		})
		c.log.WithFields(logrus.Fields{
			"angles":  acq.NAngles,
			"rows":    acq.NRows,
			"columns": acq.NCols,
		}).Debug("acquisition loaded")
		c.status = "Data Imported"
		return nil
	})
}

// Free drops the dataset and everything derived from it.
func (s *Session) Free() error {
	return s.run("free", "Clearing memory", func(c *call) error {
		c.record()
		s.commit(func() {
			s.ds = nil
			s.state = Empty
			s.schedule = nil
		})
		c.status = "Memory Cleared"
		return nil
	})
}
