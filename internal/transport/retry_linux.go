//go:build linux

package transport

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

// init overrides errnoIsContention on Linux to inspect the underlying
// syscall.Errno gousb/libusb wraps, rather than relying on the text
// libusb happens to attach to it. This catches contention even when an
// error's message doesn't contain any of accessContentionMarkers.
func init() {
	errnoIsContention = func(err error) bool {
		var errno syscall.Errno
		if !errors.As(err, &errno) {
			return false
		}
		switch errno {
		case unix.EBUSY, unix.EACCES, unix.EPERM, unix.EAGAIN:
			return true
		default:
			return false
		}
	}
}
