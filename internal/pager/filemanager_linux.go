//go:build linux

package pager

import (
	"os"

	"golang.org/x/sys/unix"
)

// fallocatePreallocate uses Fallocate to reserve disk space for the file
// up front and set its length to n, so later AllocateBlock calls within
// that length write into reserved space instead of changing the file's
// size on every single block. If Fallocate fails it falls back to a plain
// truncate.
func fallocatePreallocate(f *os.File, n int64) error {
	if err := unix.Fallocate(int(f.Fd()), 0, 0, n); err != nil {
		return fallbackPreallocate(f, n)
	}
	return nil
}
