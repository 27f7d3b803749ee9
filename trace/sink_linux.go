//go:build linux

package trace

import (
	"os"

	"golang.org/x/sys/unix"
)

// syncData flushes file data without forcing a metadata update.
func syncData(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
