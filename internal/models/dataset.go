package models

// ComputeBudget holds resource hints handed uninterpreted to the kernels.
type ComputeBudget struct {
	// CoreCount is the number of workers a kernel may run in parallel
	CoreCount int

	// ChunkCount is the number of rows a kernel may process per work item
	ChunkCount int
}

// CenterPair holds the two reference rotation centers and the detector rows
// they were measured at. Centers are column coordinates in padded space.
type CenterPair struct {
	UpperSlice int
	LowerSlice int
	Upper      float64
	Lower      float64
}

// Acquisition is what an import collaborator hands to the pipeline.
type Acquisition struct {
	Path     string
	Filename string

	NCols   int
	NRows   int
	NAngles int

	DataMax float64
	DataMin float64

	// Volume holds the raw projections with ProjectionAxes
	Volume *Volume

	// Flat and Dark hold one or more reference frames each (frame, row, column)
	Flat *Volume
	Dark *Volume

	// Theta holds one projection angle in radians per projection
	Theta []float64
}

// Dataset is the state of one imported acquisition.
type Dataset struct {
	Path     string
	Filename string

	// Volume is the current volume; every stage replaces or mutates it
	Volume *Volume

	Flat *Volume
	Dark *Volume

	// Theta is fixed at import time
	Theta []float64

	// PadAmount is the number of columns of padding on each edge, 0 if none
	PadAmount int

	Centers         CenterPair
	CentersResolved bool

	DataMin float64
	DataMax float64
}

// NewDataset seeds a Dataset from an acquisition. Default reference slices
// sit at a quarter and three quarters of the row count and default centers
// at the middle column.
func NewDataset(acq *Acquisition) *Dataset {
	d := &Dataset{
		Path:     acq.Path,
		Filename: acq.Filename,
		Volume:   acq.Volume,
		Flat:     acq.Flat,
		Dark:     acq.Dark,
		Theta:    append([]float64(nil), acq.Theta...),
		DataMin:  acq.DataMin,
		DataMax:  acq.DataMax,
	}
	d.Centers = CenterPair{
		UpperSlice: acq.NRows / 4,
		LowerSlice: 3 * acq.NRows / 4,
		Upper:      float64(acq.NCols) / 2,
		Lower:      float64(acq.NCols) / 2,
	}
	return d
}

// RefreshExtrema recomputes DataMin and DataMax from the current volume.
func (d *Dataset) RefreshExtrema() {
	if d.Volume == nil {
		d.DataMin, d.DataMax = 0, 0
		return
	}
	d.DataMin, d.DataMax = d.Volume.Extrema()
}

// Geometry is the logical extent of the dataset with padding removed.
type Geometry struct {
	Axes Axes

	// Depth is the angle count for projections and the slice count after reconstruction
	Depth int
	Rows  int
	Cols  int
}

// Geometry reports the logical shape of the current volume. Padding is
// removed from columns, and from rows too once the volume holds slices.
func (d *Dataset) Geometry() Geometry {
	if d.Volume == nil {
		return Geometry{}
	}
	s := d.Volume.Shape
	g := Geometry{Axes: d.Volume.Axes, Depth: s[0], Rows: s[1], Cols: s[2] - 2*d.PadAmount}
	if d.Volume.Axes == SliceAxes {
		g.Rows = s[1] - 2*d.PadAmount
	}
	return g
}
