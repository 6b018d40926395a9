package storer

import (
	"errors"
	"fmt"
)

var (
	ErrRecordNotFound     = errors.New("record not found")
	ErrDuplicateID        = errors.New("duplicate record id")
	ErrMalformedEmbedding = errors.New("malformed embedding cell")
)

// StoreReadError wraps any failure to read from the backing store.
type StoreReadError struct {
	Store string
	Err   error
}

func (e *StoreReadError) Error() string {
	return fmt.Sprintf("%s store read: %v", e.Store, e.Err)
}

func (e *StoreReadError) Unwrap() error { return e.Err }

// StoreWriteError wraps any failure to write to the backing store. ID is
// empty when the failure is not tied to one record.
type StoreWriteError struct {
	Store string
	ID    string
	Err   error
}

func (e *StoreWriteError) Error() string {
	if len(e.ID) > 0 {
		return fmt.Sprintf("%s store write %q: %v", e.Store, e.ID, e.Err)
	}
	return fmt.Sprintf("%s store write: %v", e.Store, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }
