//go:build !unix

package mmap

import "errors"

var ErrNotSupported = errors.New("mmap not supported on this platform")

func Map(fd uintptr, size int) ([]byte, error) {
	return nil, ErrNotSupported
}

func Unmap(data []byte) error {
	return nil
}
