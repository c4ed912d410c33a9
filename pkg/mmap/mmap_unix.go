//go:build unix

package mmap

import (
	"errors"

	"golang.org/x/sys/unix"
)

var ErrNotSupported = errors.New("mmap not supported on this platform")

// Map maps [0, size) of fd read-only. The mapping is shared, so bytes written
// through the file handle inside that range are visible without remapping.
func Map(fd uintptr, size int) ([]byte, error) {
	if size <= 0 {
		return nil, nil
	}
	return unix.Mmap(int(fd), 0, size, unix.PROT_READ, unix.MAP_SHARED)
}

// Unmap releases a mapping returned by Map.
func Unmap(data []byte) error {
	if data == nil {
		return nil
	}
	return unix.Munmap(data)
}
