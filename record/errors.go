package record

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownField = errors.New("unknown field")
	ErrLabelAbsent  = errors.New("label is absent")
)

// SerializationError reports a numeric field whose stored text cannot be
// read as a number.
type SerializationError struct {
	ID    string
	Field string
	Raw   string
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("record %q: field %q is not numeric: %q", e.ID, e.Field, e.Raw)
}
