package pipeline

import (
	"tomorecon/internal/models"
	"tomorecon/pkg/center"
	"tomorecon/pkg/dataio"
	"tomorecon/pkg/export"
	"tomorecon/pkg/kernels"
	"tomorecon/pkg/recon"
)

// Importer reads an acquisition from disk.
type Importer interface {
	Import(path string) (*models.Acquisition, error)
}

// ImporterFunc adapts a function to Importer.
type ImporterFunc func(path string) (*models.Acquisition, error)

// Import calls f(path).
func (f ImporterFunc) Import(path string) (*models.Acquisition, error) { return f(path) }

// Corrector runs the correction and filter kernels. Every method consumes
// v and returns the result, which may share its buffer.
type Corrector interface {
	RemoveOutliers(v *models.Volume, threshold float64, size int, budget models.ComputeBudget) (*models.Volume, int, error)
	RemoveStripes(v *models.Volume, width int, budget models.ComputeBudget) (*models.Volume, error)
	RemoveRings(v *models.Volume, width int, budget models.ComputeBudget) (*models.Volume, error)
	Normalize(v, flat, dark *models.Volume, budget models.ComputeBudget) (*models.Volume, error)
	NormalizeBackground(v *models.Volume, air int, budget models.ComputeBudget) (*models.Volume, error)
	Rotate(v *models.Volume, angle float64, budget models.ComputeBudget) (*models.Volume, error)
	PostFilter(v *models.Volume, f kernels.PostFilter, p kernels.FilterParams, budget models.ComputeBudget) (*models.Volume, error)
}

// CenterFinder runs the rotation center searches. Every method returns a
// column coordinate in the space of its input.
type CenterFinder interface {
	Entropy(sino []float64, nCols int, theta []float64, init, tol float64) (float64, error)
	Correlate0180(proj, partner []float64, nRows, nCols int, tol float64) (float64, error)
	Vo(sino []float64, nAngles, nCols int, tol float64) (float64, error)
}

// Reconstructor is satisfied by recon.Kernel.
type Reconstructor interface {
	Reconstruct(v *models.Volume, theta []float64, c recon.Centers, opts recon.Options) (*models.Volume, error)
	ReconstructSlice(sino []float64, nCols int, theta []float64, c recon.Centers, opts recon.Options) ([]float64, error)
}

// Writer is satisfied by dataio.Writer.
type Writer interface {
	Write(c *export.Converted, format export.Format, base string) ([]string, error)
}

// KernelCorrector runs the in-process kernels of package kernels.
type KernelCorrector struct{}

func (KernelCorrector) RemoveOutliers(v *models.Volume, threshold float64, size int, budget models.ComputeBudget) (*models.Volume, int, error) {
	return kernels.RemoveOutliers(v, threshold, size, budget)
}

func (KernelCorrector) RemoveStripes(v *models.Volume, width int, budget models.ComputeBudget) (*models.Volume, error) {
	return kernels.RemoveStripes(v, width, budget)
}

func (KernelCorrector) RemoveRings(v *models.Volume, width int, budget models.ComputeBudget) (*models.Volume, error) {
	return kernels.RemoveRings(v, width, budget)
}

func (KernelCorrector) Normalize(v, flat, dark *models.Volume, budget models.ComputeBudget) (*models.Volume, error) {
	return kernels.Normalize(v, flat, dark, budget)
}

func (KernelCorrector) NormalizeBackground(v *models.Volume, air int, budget models.ComputeBudget) (*models.Volume, error) {
	return kernels.NormalizeBackground(v, air, budget)
}

func (KernelCorrector) Rotate(v *models.Volume, angle float64, budget models.ComputeBudget) (*models.Volume, error) {
	return kernels.Rotate(v, angle, budget)
}

func (KernelCorrector) PostFilter(v *models.Volume, f kernels.PostFilter, p kernels.FilterParams, budget models.ComputeBudget) (*models.Volume, error) {
	return kernels.ApplyPostFilter(v, f, p, budget)
}

// SearchCenters runs the searches of package center.
type SearchCenters struct {
	// Budget is handed to the reconstructions of the entropy search
	Budget models.ComputeBudget
}

func (s SearchCenters) Entropy(sino []float64, nCols int, theta []float64, init, tol float64) (float64, error) {
	return center.EntropySearch{Minimize: center.NelderMead, Budget: s.Budget}.Find(sino, nCols, theta, init, tol)
}

func (SearchCenters) Correlate0180(proj, partner []float64, nRows, nCols int, tol float64) (float64, error) {
	return center.Correlate0180(proj, partner, nRows, nCols, tol)
}

func (SearchCenters) Vo(sino []float64, nAngles, nCols int, tol float64) (float64, error) {
	return center.VoSearch(sino, nAngles, nCols, tol)
}

var (
	_ Corrector     = KernelCorrector{}
	_ CenterFinder  = SearchCenters{}
	_ Reconstructor = recon.Kernel{}
	_ Writer        = dataio.Writer{}
	_ Importer      = ImporterFunc(dataio.Import)
)
