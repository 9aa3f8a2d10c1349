package cleanerdoc

import (
	"errors"
	"fmt"
)

// Sentinel errors covering the "not found" and "missing input" taxonomy
// from the error handling design: named collections/commons absent, and a
// source yielding None where a value was required.
var (
	ErrNamedSetNotFound       = errors.New("named set not found")
	ErrNamedListNotFound      = errors.New("named list not found")
	ErrNamedMapNotFound       = errors.New("named map not found")
	ErrPartitioningNotFound   = errors.New("named partitioning not found")
	ErrCommonNotFound         = errors.New("common not found")
	ErrCommonArgNotFound      = errors.New("common call arg not found")
	ErrUnexpectedNone         = errors.New("expected a value, got none")
	ErrCachedValueIsNone      = errors.New("cached url is none")
	ErrVarNotFound            = errors.New("var not found")
	ErrFlagRefUnresolved      = errors.New("flag reference could not be resolved")
)

// ExplicitError is produced by Action::Error/Condition::Error/etc. variants
// that carry a literal host-supplied message.
type ExplicitError struct {
	Message string
}

func (e *ExplicitError) Error() string { return e.Message }

// TryElseError is raised by Action::TryElse/StringSource::TryElse when both
// the try and else branches fail; it preserves both child errors.
type TryElseError struct {
	Try  error
	Else error
}

func (e *TryElseError) Error() string {
	return fmt.Sprintf("try branch failed (%v) and else branch also failed (%v)", e.Try, e.Else)
}

func (e *TryElseError) Unwrap() []error { return []error{e.Try, e.Else} }

// FirstNotErrorErrors is raised by Action::FirstNotError/StringSource::FirstNotError
// when every candidate failed; it preserves every attempt's error in order.
type FirstNotErrorErrors struct {
	Errors []error
}

func (e *FirstNotErrorErrors) Error() string {
	return fmt.Sprintf("all %d alternatives failed: %v", len(e.Errors), errors.Join(e.Errors...))
}

func (e *FirstNotErrorErrors) Unwrap() []error { return e.Errors }

// InvalidIndexError is returned by string-modification operations that
// index into a string at an invalid position (out of bounds or not on a
// UTF-8 boundary).
type InvalidIndexError struct {
	Index int
}

func (e *InvalidIndexError) Error() string {
	return fmt.Sprintf("invalid index %d", e.Index)
}

// InvalidSliceError is returned when a [start, end) range is invalid.
type InvalidSliceError struct {
	Start, End int
}

func (e *InvalidSliceError) Error() string {
	return fmt.Sprintf("invalid slice [%d, %d)", e.Start, e.End)
}

// NotFoundError is returned when a required prefix/suffix/segment/substring
// pivot is absent from the haystack.
type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string { return e.What + " not found" }
