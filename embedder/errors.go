package embedder

import (
	"errors"
	"fmt"
)

// EncodingError reports a failure inside the encoder itself.
type EncodingError struct {
	Model string
	Err   error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoder %s: %v", e.Model, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// Wrap returns err as an *EncodingError unless it already carries one.
func Wrap(model string, err error) error {
	if err == nil {
		return nil
	}
	var eerr *EncodingError
	if errors.As(err, &eerr) {
		return err
	}
	return &EncodingError{Model: model, Err: err}
}
