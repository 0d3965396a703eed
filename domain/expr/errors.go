package expr

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors - centralized definitions for the validation boundary
var (
	ErrSampleMismatch   = errors.New("sample identifiers do not match counts columns")
	ErrConditionMissing = errors.New("sample sheet has no condition column")
	ErrEmptyCounts      = errors.New("counts matrix has no genes")
	ErrEmptySamples     = errors.New("sample sheet has no rows")
)

// SampleMismatchError carries the exact metadata identifiers absent from the
// counts matrix columns, for actionable user display.
type SampleMismatchError struct {
	Missing []SampleID
}

func (e *SampleMismatchError) Error() string {
	ids := make([]string, len(e.Missing))
	for i, id := range e.Missing {
		ids[i] = string(id)
	}
	return fmt.Sprintf("%v: %s", ErrSampleMismatch, strings.Join(ids, ", "))
}

func (e *SampleMismatchError) Unwrap() error { return ErrSampleMismatch }

// MissingStrings returns the offending identifiers as plain strings.
func (e *SampleMismatchError) MissingStrings() []string {
	out := make([]string, len(e.Missing))
	for i, id := range e.Missing {
		out[i] = string(id)
	}
	return out
}

// IsSampleMismatch checks whether an error is a sample mismatch failure.
func IsSampleMismatch(err error) bool {
	return errors.Is(err, ErrSampleMismatch)
}
