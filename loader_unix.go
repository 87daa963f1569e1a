//go:build unix

package main

import (
	"os"

	"golang.org/x/sys/unix"
)

// loadBinary maps the file read-only instead of copying it into the heap,
// since a binary under analysis can be large and the reader never writes
// to it. The returned closer must be called once the caller is done with
// the returned slice.
func loadBinary(path string) ([]byte, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	if info.Size() == 0 {
		return nil, func() error { return nil }, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, err
	}

	closer := func() error { return unix.Munmap(data) }
	return data, closer, nil
}
