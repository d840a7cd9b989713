package pipeline

import "fmt"

// State is where the session volume is in the pipeline.
type State int

const (
	Empty State = iota
	Raw
	ArtifactCorrected
	Normalized
	Centered
	Reconstructed
	PostFiltered
	Exported
)

var stateNames = [...]string{
	Empty:             "empty",
	Raw:               "raw",
	ArtifactCorrected: "artifact-corrected",
	Normalized:        "normalized",
	Centered:          "centered",
	Reconstructed:     "reconstructed",
	PostFiltered:      "post-filtered",
	Exported:          "exported",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Projections reports whether the volume still holds projections, i.e. it
// has not been reconstructed yet.
func (s State) Projections() bool {
	return s >= Raw && s <= Centered
}

// Slices reports whether the volume holds reconstructed slices.
func (s State) Slices() bool {
	return s >= Reconstructed
}

// normalized reports whether the projections are in absorption units.
func (s State) normalized() bool {
	return s == Normalized || s == Centered
}
