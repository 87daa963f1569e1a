//go:build !unix

package main

import "os"

// loadBinary falls back to a plain read on platforms where mmap isn't
// wired (golang.org/x/sys/unix only covers unix targets); the closer is a
// no-op since there's no mapping to release.
func loadBinary(path string) ([]byte, func() error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return data, func() error { return nil }, nil
}
