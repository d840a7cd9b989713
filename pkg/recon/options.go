package recon

import (
	"errors"
	"fmt"
	"strings"

	"tomorecon/internal/models"
)

var (
	ErrUnknownAlgorithm = errors.New("unknown reconstruction algorithm")
	ErrUnknownFilter    = errors.New("unknown reconstruction filter")
)

// Algorithm is the closed set of reconstruction algorithms.
type Algorithm int

const (
	ART Algorithm = iota
	BART
	FBP
	Gridrec
	MLEM
	OSEM
	OSPMLHybrid
	OSPMLQuad
	PMLHybrid
	PMLQuad
	SIRT
	TV
	Grad
)

var algorithmNames = [...]string{
	ART:         "art",
	BART:        "bart",
	FBP:         "fbp",
	Gridrec:     "gridrec",
	MLEM:        "mlem",
	OSEM:        "osem",
	OSPMLHybrid: "ospml_hybrid",
	OSPMLQuad:   "ospml_quad",
	PMLHybrid:   "pml_hybrid",
	PMLQuad:     "pml_quad",
	SIRT:        "sirt",
	TV:          "tv",
	Grad:        "grad",
}

// algorithmLabels maps the long operator-facing names onto the tags.
var algorithmLabels = map[string]Algorithm{
	"algebraic":                  ART,
	"block algebraic":            BART,
	"filtered back-projection":   FBP,
	"max-likelihood expectation": MLEM,
	"ordered-subset expectation": OSEM,
	"simultaneous algebraic":     SIRT,
	"total variation":            TV,
	"gradient descent":           Grad,
}

func (a Algorithm) String() string {
	if a < 0 || int(a) >= len(algorithmNames) {
		return fmt.Sprintf("Algorithm(%d)", int(a))
	}
	return algorithmNames[a]
}

// Analytic reports whether the algorithm belongs to the filtered
// back-projection family, the only family that uses a Filter.
func (a Algorithm) Analytic() bool {
	return a == FBP || a == Gridrec
}

// Algorithms lists every algorithm in declaration order.
func Algorithms() []Algorithm {
	out := make([]Algorithm, len(algorithmNames))
	for i := range out {
		out[i] = Algorithm(i)
	}
	return out
}

// ParseAlgorithm accepts a tag such as "sirt" or a label such as
// "Simultaneous Algebraic", case-insensitively.
func ParseAlgorithm(s string) (Algorithm, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for i, n := range algorithmNames {
		if n == key {
			return Algorithm(i), nil
		}
	}
	if a, ok := algorithmLabels[key]; ok {
		return a, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
}

// Filter is the closed set of frequency-domain windows applied by the
// analytic algorithms.
type Filter int

const (
	NoFilter Filter = iota
	Shepp
	Cosine
	Hann
	Hamming
	Ramlak
	Parzen
	Butterworth
)

var filterNames = [...]string{
	NoFilter:    "none",
	Shepp:       "shepp",
	Cosine:      "cosine",
	Hann:        "hann",
	Hamming:     "hamming",
	Ramlak:      "ramlak",
	Parzen:      "parzen",
	Butterworth: "butterworth",
}

func (f Filter) String() string {
	if f < 0 || int(f) >= len(filterNames) {
		return fmt.Sprintf("Filter(%d)", int(f))
	}
	return filterNames[f]
}

// ParseFilter accepts a filter tag, case-insensitively.
func ParseFilter(s string) (Filter, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for i, n := range filterNames {
		if n == key {
			return Filter(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFilter, s)
}

// Centers gives the rotation center used for each projection angle, in
// padded column coordinates.
type Centers struct {
	// Scalar applies to every angle when Schedule is nil
	Scalar float64

	// Schedule holds one center per angle
	Schedule []float64
}

// At returns the center for angle index a.
func (c Centers) At(a int) float64 {
	if c.Schedule == nil {
		return c.Scalar
	}
	return c.Schedule[a]
}

// Options selects how a volume is reconstructed.
type Options struct {
	Algorithm Algorithm
	Filter    Filter

	// Iterations is used by the iterative algorithms only
	Iterations int

	Budget models.ComputeBudget
}
