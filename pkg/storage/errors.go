package storage

import (
	"errors"
	"fmt"
)

var (
	ErrKeyNotFound   = errors.New("storage: key not found")
	ErrKeyIsEmpty    = errors.New("storage: key is empty")
	ErrValueTooLarge = errors.New("storage: value too large")
	ErrMissingHeader = errors.New("storage: log file is missing its header")
	ErrReadOnly      = errors.New("storage: store is read-only")
	ErrClosed        = errors.New("storage: store is closed")

	// ErrBroken is returned once the read view could not follow the file.
	// The store refuses all further work after that.
	ErrBroken = errors.New("storage: read view out of sync with log file")
)

// IOError is an I/O failure from the underlying file. It is surfaced to the
// caller as-is and never retried by the store.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IsIOError reports whether err is, or wraps, an *IOError.
func IsIOError(err error) bool {
	var ioe *IOError
	return errors.As(err, &ioe)
}
