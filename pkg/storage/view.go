package storage

import (
	"errors"
	"fmt"
	"io"

	"sunsetdb/pkg/mmap"
)

// readView is the memory-resident copy of the log that Get scans. It must be
// refreshed after every append, before the next read.
type readView struct {
	data   []byte
	mapped bool
}

func (v *readView) bytes() []byte { return v.data }

// refresh makes the view cover exactly [0, size) of f. It prefers a shared
// read-only mapping and falls back to reading the file where mmap is not
// available.
func (v *readView) refresh(f logFile, size int64) error {
	if v.mapped {
		if err := mmap.Unmap(v.data); err != nil {
			return fmt.Errorf("unmap: %w", err)
		}
		v.data = nil
		v.mapped = false
	}

	data, err := mmap.Map(f.Fd(), int(size))
	if err == nil {
		v.data = data
		v.mapped = true
		return nil
	}
	if !errors.Is(err, mmap.ErrNotSupported) {
		return fmt.Errorf("mmap: %w", err)
	}

	cur := int64(len(v.data))
	if size <= cur {
		v.data = v.data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, v.data)
	if _, err := f.ReadAt(grown[cur:], cur); err != nil && err != io.EOF {
		return fmt.Errorf("read: %w", err)
	}
	v.data = grown
	return nil
}

func (v *readView) close() error {
	var err error
	if v.mapped {
		err = mmap.Unmap(v.data)
	}
	v.data = nil
	v.mapped = false
	return err
}
