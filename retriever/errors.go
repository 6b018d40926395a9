package retriever

import (
	"errors"
	"fmt"
)

var ErrInvalidK = errors.New("k must not be negative")

// DimensionMismatchError means two vectors in one similarity query have
// different lengths. It is a configuration fault and is never recovered
// by truncation.
type DimensionMismatchError struct {
	Ref      string
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	if len(e.Ref) > 0 {
		return fmt.Sprintf("dimension mismatch for %q: expected %d, got %d", e.Ref, e.Expected, e.Actual)
	}
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}
