// Package center locates the rotation axis of a parallel-beam scan.
//
// All centers are detector column coordinates measured from the left edge of
// the detector, so the middle of an nCols wide detector is nCols/2.
package center

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownMethod = errors.New("unknown center method")
	ErrGeometry      = errors.New("center search geometry mismatch")
)

// Method is the closed set of center search algorithms.
type Method int

const (
	// Entropy minimises the entropy of a single-row reconstruction
	Entropy Method = iota

	// Correlation0180 correlates a projection with the mirrored projection
	// half a turn later
	Correlation0180

	// Vo searches the Fourier spectrum of the 360 degree sinogram built from
	// one row (Nghia Vo's method)
	Vo
)

var methodNames = [...]string{
	Entropy:         "entropy",
	Correlation0180: "0-180",
	Vo:              "vo",
}

func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return fmt.Sprintf("Method(%d)", int(m))
	}
	return methodNames[m]
}

// ParseMethod accepts a method tag, or the operator labels "Nghia Vo" and
// "0-180 correlation", case-insensitively.
func ParseMethod(s string) (Method, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for i, n := range methodNames {
		if n == key {
			return Method(i), nil
		}
	}
	switch key {
	case "nghia vo", "fourier":
		return Vo, nil
	case "0-180 correlation", "phase correlation":
		return Correlation0180, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

func nextPow2(n int) int {
	size := 2
	for size < n {
		size <<= 1
	}
	return size
}
