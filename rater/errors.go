package rater

import (
	"errors"
	"fmt"
)

var ErrInvalidConfig = errors.New("invalid training configuration")

type InsufficientDataError struct {
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient training data: %d labeled records, need at least %d", e.Have, e.Need)
}

type ModelNotFoundError struct {
	Dir string
}

func (e *ModelNotFoundError) Error() string {
	if len(e.Dir) > 0 {
		return fmt.Sprintf("no trained model in %s", e.Dir)
	}
	return "no trained model"
}
