package linechunk

import (
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

// MinFileSizeForParallel is the default size threshold below which
// parallel mode isn't worth the coordination overhead.
const MinFileSizeForParallel = 100 * 1024 * 1024

// ShouldUseParallel reports whether the parallel pipeline should be
// used for f: f must be a regular, seekable file larger than minSize,
// more than one CPU must be available, and the caller must not have
// forced serial mode. minSize <= 0 selects MinFileSizeForParallel.
func ShouldUseParallel(f *os.File, forceSerial bool, minSize int64) bool {
	if minSize <= 0 {
		minSize = MinFileSizeForParallel
	}
	if forceSerial || f == nil {
		return false
	}
	if runtime.NumCPU() < 2 {
		return false
	}
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return false
	}
	if st.Mode&unix.S_IFMT != unix.S_IFREG {
		return false
	}
	return st.Size > minSize
}

// WorkerCount returns the worker pool size for parallel mode:
// max(2, min(8, cores/2)).
func WorkerCount() int {
	cores := runtime.NumCPU()
	n := cores / 2
	if n > 8 {
		n = 8
	}
	if n < 2 {
		n = 2
	}
	return n
}
