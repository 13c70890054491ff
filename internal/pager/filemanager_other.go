//go:build !linux

package pager

import "os"

// fallocatePreallocate has no portable equivalent outside Linux; callers
// fall back to a plain truncate.
func fallocatePreallocate(f *os.File, n int64) error {
	return fallbackPreallocate(f, n)
}
