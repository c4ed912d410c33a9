package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// CreateLogFile writes a new, empty log: just the reserved header. It fails
// with fs.ErrExist if path is already there.
func CreateLogFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &IOError{Op: "mkdir", Err: err}
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	var header [HeaderSize]byte
	if _, err := f.Write(header[:]); err != nil {
		f.Close()
		os.Remove(path)
		return &IOError{Op: "write header", Err: err}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return &IOError{Op: "sync header", Err: err}
	}
	return f.Close()
}

// EnsureLogFile creates the log at path unless it already exists.
func EnsureLogFile(path string) (created bool, err error) {
	err = CreateLogFile(path)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	return err == nil, err
}
