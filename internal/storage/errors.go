package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors for storage operations. Callers match with errors.Is.
var (
	ErrNotFound           = errors.New("object not found")
	ErrKeyExists          = errors.New("object already exists")
	ErrTooLarge           = errors.New("object exceeds size limit")
	ErrInvalidKey         = errors.New("invalid storage key")
	ErrInvalidContentType = errors.New("content type not allowed")
)

// StorageError wraps a provider failure with the operation and key for
// logging. Unwraps to the underlying error so sentinel matching still works.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func newError(op, key string, err error) *StorageError {
	return &StorageError{Op: op, Key: key, Err: err}
}
