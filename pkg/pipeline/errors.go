package pipeline

import (
	"errors"
	"fmt"

	"tomorecon/pkg/export"
)

// Kind classifies a stage failure.
type Kind int

const (
	// PreconditionViolation means the stage refused to run and nothing was changed
	PreconditionViolation Kind = iota

	// PartialFailure means the stage committed some work before failing
	PartialFailure

	// ExternalKernelFailure means a collaborator returned an error
	ExternalKernelFailure
)

// Kind sentinels, matched with errors.Is.
var (
	ErrPreconditionViolation = errors.New("precondition violation")
	ErrPartialFailure        = errors.New("partial failure")
	ErrExternalKernelFailure = errors.New("external kernel failure")
)

// Causes.
var (
	ErrCentersNotResolved                = errors.New("rotation centers not resolved")
	ErrSliceOutOfRange                   = errors.New("slice out of range")
	ErrUnsupportedFormatDtypeCombination = export.ErrUnsupportedCombination
	ErrPadTooSmall                       = errors.New("pad size too small for dataset")
	ErrBusy                              = errors.New("another stage is running")
	ErrNoDataset                         = errors.New("no dataset loaded")
	ErrDatasetLoaded                     = errors.New("a dataset is already loaded, free memory first")
	ErrNotNormalized                     = errors.New("volume is not normalized")
	ErrInvalidState                      = errors.New("stage not allowed in this state")
	ErrDegenerateSlices                  = errors.New("upper and lower slice are the same row")
)

func (k Kind) String() string {
	switch k {
	case PreconditionViolation:
		return "precondition violation"
	case PartialFailure:
		return "partial failure"
	case ExternalKernelFailure:
		return "external kernel failure"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) sentinel() error {
	switch k {
	case PartialFailure:
		return ErrPartialFailure
	case ExternalKernelFailure:
		return ErrExternalKernelFailure
	}
	return ErrPreconditionViolation
}

// Error is returned by every stage. errors.Is matches both the kind
// sentinel and the cause.
type Error struct {
	Stage string
	Kind  Kind
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind.sentinel(), e.Err}
}
